package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.Equal(t, "0.13", Round(decimal.RequireFromString("0.125")).String())
	require.Equal(t, "2.68", Round(decimal.RequireFromString("2.675")).String())
	require.Equal(t, "-0.13", Round(decimal.RequireFromString("-0.125")).String())
}

func TestParse(t *testing.T) {
	v, err := Parse(" 600.50 ")
	require.NoError(t, err)
	require.True(t, v.Equal(decimal.RequireFromString("600.5")))

	_, err = Parse("1.005")
	require.Error(t, err)

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestAtLeastPercent(t *testing.T) {
	price := decimal.NewFromInt(1000)
	require.False(t, AtLeastPercent(decimal.NewFromInt(400), price, 50))
	require.True(t, AtLeastPercent(decimal.NewFromInt(500), price, 50))
	require.True(t, AtLeastPercent(decimal.NewFromInt(600), price, 50))
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(60050), ToMinorUnits(decimal.RequireFromString("600.50")))
	require.Equal(t, int64(3), ToMinorUnits(decimal.RequireFromString("0.025")))
	require.True(t, FromMinorUnits(3000).Equal(decimal.NewFromInt(30)))
	require.Equal(t, "30.00", Format(FromMinorUnits(3000)))
}
