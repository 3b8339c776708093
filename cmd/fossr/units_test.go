package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1", 1_000_000_000},
		{"0.01", 10_000_000},
		{"1.5", 1_500_000_000},
		{"0.000000001", 1},
		{"100", 100_000_000_000},
	}
	for _, tc := range cases {
		got, err := parseSOL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "0", "-1", "0.0000000001", "99999999999999999999"} {
		_, err := parseSOL(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1.5", formatSOL(1_500_000_000))
	assert.Equal(t, "99310", formatTokens(99_310_000_000_000))
	assert.Equal(t, "0", formatTokens(0))
	assert.Equal(t, "0.000000001", formatSOL(1))
}
