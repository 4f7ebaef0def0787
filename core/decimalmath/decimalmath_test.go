package decimalmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulDivDecimal(t *testing.T) {
	one := UnitD18()
	half := new(big.Int).Quo(UnitD18(), big.NewInt(2))

	require.Equal(t, 0, MulDecimal(FromUint64(3), half).Cmp(mustParse(t, "1.5")))
	require.Equal(t, 0, DivDecimal(FromUint64(3), FromUint64(2)).Cmp(mustParse(t, "1.5")))
	require.Equal(t, 0, DivDecimal(one, big.NewInt(0)).Sign())

	// Truncation goes towards zero for negative values as well.
	require.Equal(t, "-3", MulDecimal(big.NewInt(-7), half).String())
}

func TestPreciseConversions(t *testing.T) {
	x := FromUint64(42)
	require.Equal(t, 0, DownscaleD27ToD18(UpscaleD18ToD27(x)).Cmp(x))
	require.Equal(t, 0, MulDecimalD27(FromUint64(10), UnitD27()).Cmp(FromUint64(10)))
	require.Equal(t, 0, DivDecimalD27(FromUint64(1), FromUint64(4)).Cmp(mustBig("250000000000000000000000000")))
}

func TestRatioInfinity(t *testing.T) {
	require.True(t, IsInfinity(Ratio(FromUint64(1000), big.NewInt(0))))
	require.True(t, IsInfinity(Ratio(FromUint64(1000), FromInt64(-5))))
	require.Equal(t, 0, Ratio(FromUint64(1000), FromUint64(100)).Cmp(FromUint64(10)))
	require.Equal(t, "inf", FormatD18(Infinity()))
}

func TestParseAndFormat(t *testing.T) {
	v, err := ParseD18("1.5")
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", v.String())
	require.Equal(t, "1.5", FormatD18(v))

	v, err = ParseD18(" -20 ")
	require.NoError(t, err)
	require.Equal(t, 0, v.Cmp(FromInt64(-20)))

	// trailing zeros beyond 18 decimals carry no precision
	v, err = ParseD18("1.5000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", v.String())

	_, err = ParseD18("0.0000000000000000001")
	require.Error(t, err)
	_, err = ParseD18("1.0000000000000000001")
	require.Error(t, err)
	_, err = ParseD18("")
	require.Error(t, err)
	_, err = ParseD18("abc")
	require.Error(t, err)
}

func TestMaxUint128(t *testing.T) {
	expected := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	require.Equal(t, 0, MaxUint128().Cmp(expected))
}

func mustParse(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := ParseD18(s)
	require.NoError(t, err)
	return v
}

func mustBig(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}
