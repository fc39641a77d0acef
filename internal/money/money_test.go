package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"1.004":  "1",
		"2.345":  "2.35",
		"10":     "10",
		"0.125":  "0.13",
		"99.995": "100",
	}
	for in, want := range cases {
		got := Round(decimal.RequireFromString(in))
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "Round(%s) = %s, want %s", in, got, want)
	}
}

func TestDecimalIsExact(t *testing.T) {
	total := decimal.Zero
	for i := 0; i < 10; i++ {
		total = total.Add(decimal.RequireFromString("0.1"))
	}
	assert.True(t, total.Equal(decimal.NewFromInt(1)))
}

func TestNonNegativeAndPositive(t *testing.T) {
	require.NoError(t, NonNegative(decimal.Zero))
	require.True(t, errors.Is(NonNegative(decimal.NewFromInt(-1)), ErrInvalidAmount))

	require.NoError(t, Positive(decimal.RequireFromString("0.01")))
	require.True(t, errors.Is(Positive(decimal.Zero), ErrInvalidAmount))
}

func TestSubRejectsNegativeResult(t *testing.T) {
	_, err := Sub(decimal.NewFromInt(5), decimal.NewFromInt(6))
	require.ErrorIs(t, err, ErrInvalidAmount)

	out, err := Sub(decimal.NewFromInt(6), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.NewFromInt(1)))
}

func TestPercentAndClamp(t *testing.T) {
	got := Percent(decimal.NewFromInt(300), decimal.NewFromInt(10))
	assert.True(t, got.Equal(decimal.NewFromInt(30)))

	assert.True(t, ClampZero(decimal.NewFromInt(-4)).IsZero())
	assert.True(t, Min(decimal.NewFromInt(3), decimal.NewFromInt(2)).Equal(decimal.NewFromInt(2)))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.String())

	_, err = Parse("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.ErrorIs(t, Quantity(0), ErrInvalidAmount)
}
