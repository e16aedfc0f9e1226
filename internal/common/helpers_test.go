package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralizeCoins(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "монет"},
		{1, "монета"},
		{2, "монеты"},
		{4, "монеты"},
		{5, "монет"},
		{10, "монет"},
		{11, "монет"},
		{12, "монет"},
		{14, "монет"},
		{21, "монета"},
		{22, "монеты"},
		{25, "монет"},
		{100, "монет"},
		{101, "монета"},
		{111, "монет"},
		{-1, "монета"},
		{-5, "монет"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PluralizeCoins(tc.n), "n=%d", tc.n)
	}
}

func TestPluralizePrizes(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{1, "приз"},
		{2, "приза"},
		{5, "призов"},
		{11, "призов"},
		{21, "приз"},
		{23, "приза"},
		{113, "призов"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PluralizePrizes(tc.n), "n=%d", tc.n)
	}
}

func TestFormatCoins(t *testing.T) {
	assert.Equal(t, "150 монет", FormatCoins(150))
	assert.Equal(t, "1 монета", FormatCoins(1))
	assert.Equal(t, "3 монеты", FormatCoins(3))
}

func TestFormatCoinsDelta(t *testing.T) {
	assert.Equal(t, "+10 монет", FormatCoinsDelta(10))
	assert.Equal(t, "+0 монет", FormatCoinsDelta(0))
	assert.Equal(t, "-50 монет", FormatCoinsDelta(-50))
	assert.Equal(t, "+21 монета", FormatCoinsDelta(21))
}
