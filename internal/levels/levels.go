// ==============================================
// File: internal/levels/levels.go
// ==============================================
package levels

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// UnitsPerPoint converts base token units into points (one point per whole token).
const UnitsPerPoint = 1_000_000_000

// Level represents a holder tier in the points table
type Level struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Emoji          string `json:"emoji"`
	PointsRequired uint64 `json:"points_required"`
}

// Levels is ordered by PointsRequired, ascending. The first entry must require zero points.
var Levels = []Level{
	{ID: 1, Name: "Invisible Guppy", Emoji: "🐟", PointsRequired: 0},
	{ID: 2, Name: "Chained Shark", Emoji: "🦈", PointsRequired: 50_000},
	{ID: 3, Name: "Ghost Whale", Emoji: "🐋", PointsRequired: 500_000},
	{ID: 4, Name: "Reserve Phantom", Emoji: "🔥", PointsRequired: 2_500_000},
	{ID: 5, Name: "Unchained Titan", Emoji: "⚡", PointsRequired: 10_000_000},
}

// Projection is the level view of one holder, recomputed on every query.
type Projection struct {
	Current  Level  `json:"current"`
	Next     *Level `json:"next,omitempty"`
	Points   uint64 `json:"points"`
	Progress int    `json:"progress"` // 0-100 to Next
}

// Points converts an unlocked token balance in base units into points.
func Points(unlockedUnits uint64) uint64 {
	return unlockedUnits / UnitsPerPoint
}

// For returns the highest level whose requirement is met.
func For(points uint64) Level {
	current := Levels[0]
	for _, l := range Levels {
		if points < l.PointsRequired {
			break
		}
		current = l
	}
	return current
}

// Next returns the level after current, if any
func Next(current Level) (Level, bool) {
	for i, l := range Levels {
		if l.ID == current.ID && i < len(Levels)-1 {
			return Levels[i+1], true
		}
	}
	return Level{}, false
}

// Progress returns the floored percentage from current towards next.
func Progress(points uint64, current Level, next *Level) int {
	if next == nil {
		return 100
	}
	if points <= current.PointsRequired {
		return 0
	}
	span := next.PointsRequired - current.PointsRequired
	if span == 0 {
		return 100
	}
	into := points - current.PointsRequired
	if into >= span {
		return 100
	}
	// into < span, so into*100 only overflows for spans near the uint64 limit
	if into > ^uint64(0)/100 {
		return int(into / (span / 100))
	}
	return int(into * 100 / span)
}

// Project builds the level view for an unlocked balance in base units.
func Project(unlockedUnits uint64) Projection {
	points := Points(unlockedUnits)
	current := For(points)
	p := Projection{Current: current, Points: points}
	if next, ok := Next(current); ok {
		p.Next = &next
	}
	p.Progress = Progress(points, current, p.Next)
	return p
}

// FormatPoints renders points as 950, 12.5K or 3.2M.
func FormatPoints(points uint64) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(points), 0)
	switch {
	case points >= 1_000_000:
		return d.Div(decimal.NewFromInt(1_000_000)).StringFixed(1) + "M"
	case points >= 1_000:
		return d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "K"
	}
	return d.String()
}

func (l Level) String() string {
	return fmt.Sprintf("%s %s", l.Emoji, l.Name)
}
