package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPicksHighestReachedLevel(t *testing.T) {
	tests := []struct {
		points uint64
		want   string
	}{
		{0, "Invisible Guppy"},
		{49_999, "Invisible Guppy"},
		{50_000, "Chained Shark"},
		{499_999, "Chained Shark"},
		{500_000, "Ghost Whale"},
		{2_500_000, "Reserve Phantom"},
		{10_000_000, "Unchained Titan"},
		{1 << 60, "Unchained Titan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, For(tt.points).Name, "points=%d", tt.points)
	}
}

func TestLevelsAscending(t *testing.T) {
	require.Zero(t, Levels[0].PointsRequired)
	for i := 1; i < len(Levels); i++ {
		assert.Greater(t, Levels[i].PointsRequired, Levels[i-1].PointsRequired)
	}
}

func TestProgress(t *testing.T) {
	guppy, shark := Levels[0], Levels[1]

	assert.Equal(t, 0, Progress(0, guppy, &shark))
	assert.Equal(t, 50, Progress(25_000, guppy, &shark))
	// Округление вниз: 49_999 / 50_000 = 99.998%
	assert.Equal(t, 99, Progress(49_999, guppy, &shark))
	assert.Equal(t, 100, Progress(60_000, guppy, &shark))
	assert.Equal(t, 100, Progress(1, Levels[4], nil))
}

func TestProject(t *testing.T) {
	p := Project(75_000 * UnitsPerPoint)
	assert.Equal(t, uint64(75_000), p.Points)
	assert.Equal(t, "Chained Shark", p.Current.Name)
	require.NotNil(t, p.Next)
	assert.Equal(t, "Ghost Whale", p.Next.Name)
	// (75_000 - 50_000) / 450_000 = 5.55%
	assert.Equal(t, 5, p.Progress)

	top := Project(20_000_000 * UnitsPerPoint)
	assert.Nil(t, top.Next)
	assert.Equal(t, 100, top.Progress)

	// Дробные токены не дают очков
	assert.Equal(t, uint64(0), Project(UnitsPerPoint-1).Points)
}

func TestNext(t *testing.T) {
	next, ok := Next(Levels[2])
	require.True(t, ok)
	assert.Equal(t, 4, next.ID)

	_, ok = Next(Levels[len(Levels)-1])
	assert.False(t, ok)
}

func TestFormatPoints(t *testing.T) {
	assert.Equal(t, "950", FormatPoints(950))
	assert.Equal(t, "12.5K", FormatPoints(12_500))
	assert.Equal(t, "3.2M", FormatPoints(3_200_000))
}
