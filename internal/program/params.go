// ==============================================
// File: internal/program/params.go
// ==============================================
package program

import (
	"fmt"
	"time"

	"github.com/fossr-labs/fossr/internal/program/curve"
	"github.com/fossr-labs/fossr/internal/program/locktier"
)

// PotFunding selects how the airdrop pot is filled.
type PotFunding string

const (
	// PotAccumulate adds the pot fee of every buy to the pot and empties it on payout.
	PotAccumulate PotFunding = "accumulate"
	// PotAdmin leaves the pot to update_airdrop_settings. Buys and payouts do not touch it.
	PotAdmin PotFunding = "admin"
)

// ParsePotFunding validates a configured mode.
func ParsePotFunding(s string) (PotFunding, error) {
	switch PotFunding(s) {
	case PotAccumulate, PotAdmin:
		return PotFunding(s), nil
	case "":
		return PotAccumulate, nil
	}
	return "", fmt.Errorf("unknown pot funding mode %q", s)
}

// Params are fixed per deployment.
type Params struct {
	AirdropInterval    time.Duration
	MinBuy             uint64
	MaxBuy             uint64
	MinSell            uint64
	MinAirdropEligible uint64
	PriceStep          uint64
	Tiers              locktier.Table
	PotFunding         PotFunding
}

// DefaultParams match the deployed program.
func DefaultParams() Params {
	return Params{
		AirdropInterval:    5 * time.Minute,
		MinBuy:             10_000_000,
		MaxBuy:             100_000_000_000,
		MinSell:            curve.UnitsPerToken,
		MinAirdropEligible: 10_000 * curve.UnitsPerToken,
		PriceStep:          curve.DefaultPriceStep,
		Tiers:              locktier.DefaultTable,
		PotFunding:         PotAccumulate,
	}
}

func (p Params) Validate() error {
	if p.AirdropInterval < time.Second {
		return fmt.Errorf("airdrop interval must be at least 1s, got %s", p.AirdropInterval)
	}
	if p.MinBuy == 0 || p.MaxBuy < p.MinBuy {
		return fmt.Errorf("invalid buy bounds [%d, %d]", p.MinBuy, p.MaxBuy)
	}
	if p.PriceStep == 0 {
		return fmt.Errorf("price step must be positive")
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("lock tier table is empty")
	}
	if _, err := ParsePotFunding(string(p.PotFunding)); err != nil {
		return err
	}
	return nil
}

func (p Params) intervalSeconds() int64 {
	return int64(p.AirdropInterval / time.Second)
}

// NextAirdropTime aligns now up to the next interval boundary. A time already
// on a boundary moves a full interval ahead.
func (p Params) NextAirdropTime(now int64) int64 {
	interval := p.intervalSeconds()
	rem := now % interval
	if rem < 0 {
		rem += interval
	}
	return now - rem + interval
}
