package main

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	solDecimals   = 9
	tokenDecimals = 9
)

// parseUnits converts a human amount such as "1.5" into base units.
func parseUnits(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimals", s, decimals)
	}
	n := scaled.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount %s is too large", s)
	}
	return n.Uint64(), nil
}

func formatUnits(units uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -decimals).String()
}

func parseSOL(s string) (uint64, error) { return parseUnits(s, solDecimals) }

func formatSOL(lamports uint64) string { return formatUnits(lamports, solDecimals) }

func parseTokens(s string) (uint64, error) { return parseUnits(s, tokenDecimals) }

func formatTokens(units uint64) string { return formatUnits(units, tokenDecimals) }
