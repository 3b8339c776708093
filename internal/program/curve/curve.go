// ==============================================
// File: internal/program/curve/curve.go
// ==============================================
package curve

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

const (
	// FeeDenominator is 100% in fee units.
	FeeDenominator uint64 = 100_000
	// BurnFee is 0.069% of a buy, burned.
	BurnFee uint64 = 69
	// PotFee is 0.621% of a buy, routed to the airdrop pot.
	PotFee uint64 = 621
	// SellBurnFee is 0.01% of a sell, burned.
	SellBurnFee uint64 = 10

	// TokenDecimals of the sold mint. Price is lamports per whole token.
	TokenDecimals = 9
	// UnitsPerToken is 10^TokenDecimals.
	UnitsPerToken uint64 = 1_000_000_000

	// DefaultPriceStep is the price increase per purchase.
	DefaultPriceStep uint64 = 1
	// MinPrice is the lowest accepted base price.
	MinPrice uint64 = 100
)

var (
	ErrZeroPayment = errors.New("payment must be positive")
	ErrZeroAmount  = errors.New("amount must be positive")
	ErrOverflow    = errors.New("arithmetic overflow")
	ErrPriceFloor  = errors.New("price below floor")
)

// Curve is a linear bonding curve: Price(n) = Base + Step*n.
type Curve struct {
	Base uint64
	Step uint64
}

// New returns a curve with the default step.
func New(base uint64) (Curve, error) {
	if base < MinPrice {
		return Curve{}, ErrPriceFloor
	}
	return Curve{Base: base, Step: DefaultPriceStep}, nil
}

// FromState reconstructs the curve from the stored current price and the
// purchase counter that produced it.
func FromState(currentPrice, totalBuys, step uint64) (Curve, error) {
	shift, err := mul(step, totalBuys)
	if err != nil {
		return Curve{}, err
	}
	if shift > currentPrice {
		return Curve{}, ErrOverflow
	}
	return Curve{Base: currentPrice - shift, Step: step}, nil
}

// Price returns the unit price after totalBuys purchases.
func (c Curve) Price(totalBuys uint64) (uint64, error) {
	shift, err := mul(c.Step, totalBuys)
	if err != nil {
		return 0, err
	}
	return add(c.Base, shift)
}

// Quote is the result of pricing a buy.
type Quote struct {
	Price uint64
	Gross uint64
	Burn  uint64
	Pot   uint64
	Net   uint64
}

// Fees is the sum of burn and pot components.
func (q Quote) Fees() uint64 {
	return q.Burn + q.Pot
}

// TokensForPayment prices a payment of lamports at the current price
// (the price after totalBuys purchases) and splits the fee.
func (c Curve) TokensForPayment(payment, totalBuys uint64) (Quote, error) {
	if payment == 0 {
		return Quote{}, ErrZeroPayment
	}
	price, err := c.Price(totalBuys)
	if err != nil {
		return Quote{}, err
	}
	if price == 0 {
		return Quote{}, ErrPriceFloor
	}
	gross, err := MulDiv(payment, UnitsPerToken, price)
	if err != nil {
		return Quote{}, err
	}
	burn, pot, err := SplitBuyFees(gross)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Price: price,
		Gross: gross,
		Burn:  burn,
		Pot:   pot,
		Net:   gross - burn - pot,
	}, nil
}

// SplitBuyFees floors each component independently.
func SplitBuyFees(gross uint64) (burn, pot uint64, err error) {
	if burn, err = MulDiv(gross, BurnFee, FeeDenominator); err != nil {
		return 0, 0, err
	}
	if pot, err = MulDiv(gross, PotFee, FeeDenominator); err != nil {
		return 0, 0, err
	}
	return burn, pot, nil
}

// SellQuote is the result of pricing a sell.
type SellQuote struct {
	Burn   uint64
	Net    uint64
	Payout uint64
}

// QuoteSell converts a token amount to lamports at price after the sell burn.
func QuoteSell(amount, price uint64) (SellQuote, error) {
	if amount == 0 {
		return SellQuote{}, ErrZeroAmount
	}
	burn, err := MulDiv(amount, SellBurnFee, FeeDenominator)
	if err != nil {
		return SellQuote{}, err
	}
	net := amount - burn
	payout, err := MulDiv(net, price, UnitsPerToken)
	if err != nil {
		return SellQuote{}, err
	}
	return SellQuote{Burn: burn, Net: net, Payout: payout}, nil
}

// MulDiv computes floor(a*b/d) with a 256-bit intermediate and fails if the
// result does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

func mul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}

func add(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, ErrOverflow
	}
	return a + b, nil
}
