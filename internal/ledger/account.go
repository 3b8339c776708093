// ==============================================
// File: internal/ledger/account.go
// ==============================================
package ledger

import (
	"bytes"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInUse         = errors.New("account already in use")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrInsufficientLamports = errors.New("insufficient lamports")
	ErrIllegalOwner         = errors.New("account not owned by the executing program")
	ErrInvalidSeeds         = errors.New("seeds do not derive the account address")
	ErrUnknownProgram       = errors.New("unknown program id")
	// ErrStoreUnavailable wraps failures of the backing store. They are the
	// only ledger errors a caller may retry.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

const (
	// LamportsPerByteYear and ExemptionYears follow the cluster defaults.
	LamportsPerByteYear uint64 = 3480
	ExemptionYears      uint64 = 2
	// AccountStorageOverhead is charged on top of the data length.
	AccountStorageOverhead uint64 = 128
)

// MinimumBalance is the rent-exempt balance for space bytes of data.
func MinimumBalance(space int) uint64 {
	return (AccountStorageOverhead + uint64(space)) * LamportsPerByteYear * ExemptionYears
}

// Account is one addressable record on the ledger.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Clone returns a deep copy so that callers never alias store memory.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// Filter narrows a Scan. A zero DataSize matches any size.
type Filter struct {
	Offset   int
	Bytes    []byte
	DataSize int
}

// Match reports whether data satisfies the filter.
func (f Filter) Match(data []byte) bool {
	if f.DataSize > 0 && len(data) != f.DataSize {
		return false
	}
	if len(f.Bytes) == 0 {
		return true
	}
	end := f.Offset + len(f.Bytes)
	if f.Offset < 0 || end > len(data) {
		return false
	}
	return bytes.Equal(data[f.Offset:end], f.Bytes)
}

// MatchAll applies every filter.
func MatchAll(data []byte, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(data) {
			return false
		}
	}
	return true
}
