// ==============================================
// File: internal/program/locktier/locktier.go
// ==============================================
package locktier

import (
	"encoding/binary"
	"time"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/blake3"
)

// Tier is a payment-size bucket with an inclusive lock range.
// Below is an exclusive upper bound in lamports; zero means unbounded.
type Tier struct {
	Below uint64
	Min   time.Duration
	Max   time.Duration
}

// Table is ordered by ascending Below with the unbounded tier last.
type Table []Tier

// DefaultTable: smaller buys lock longer.
var DefaultTable = Table{
	{Below: 100_000_000, Min: 5 * time.Minute, Max: 5 * time.Hour},
	{Below: 500_000_000, Min: 4 * time.Minute, Max: 4 * time.Hour},
	{Below: 1_000_000_000, Min: 3 * time.Minute, Max: 3 * time.Hour},
	{Below: 0, Min: 1 * time.Minute, Max: 1 * time.Hour},
}

// For returns the tier matching payment.
func (t Table) For(payment uint64) Tier {
	for _, tier := range t {
		if tier.Below == 0 || payment < tier.Below {
			return tier
		}
	}
	return t[len(t)-1]
}

// Seed is 32 bytes of mixed entropy.
type Seed [32]byte

// Entropy mixes the slot hash committed for the transaction with the buyer
// and purchase timestamp. The slot hash is unknown until the transaction is
// ordered, so the buyer cannot steer the lock toward its minimum.
func Entropy(slotHash [32]byte, buyer solana.PublicKey, timestamp int64, slot uint64) Seed {
	buf := make([]byte, 0, 32+32+8+8)
	buf = append(buf, slotHash[:]...)
	buf = append(buf, buyer[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	buf = binary.LittleEndian.AppendUint64(buf, slot)
	return Seed(blake3.Sum256(buf))
}

// Sample draws a whole-second duration from [tier.Min, tier.Max].
func Sample(tier Tier, seed Seed) time.Duration {
	lo := int64(tier.Min / time.Second)
	hi := int64(tier.Max / time.Second)
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	span := uint64(hi-lo) + 1
	off := binary.LittleEndian.Uint64(seed[:8]) % span
	return time.Duration(lo+int64(off)) * time.Second
}
