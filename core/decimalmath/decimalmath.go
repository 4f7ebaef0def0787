package decimalmath

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DecimalsD18 is the precision of D18 values. D27 ("precise") values carry
// nine more decimals and are used for per-share accumulators where
// truncation would otherwise compound.
const DecimalsD18 = 18

var (
	unitD18     = mustBigInt("1000000000000000000")
	unitD27     = mustBigInt("1000000000000000000000000000")
	d18ToD27    = mustBigInt("1000000000")
	maxUint256  = new(uint256.Int).SetAllOne()
	maxUint128  = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 128)
	infinityInt = maxUint256.ToBig()
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// UnitD18 returns a fresh copy of 1e18.
func UnitD18() *big.Int { return new(big.Int).Set(unitD18) }

// UnitD27 returns a fresh copy of 1e27.
func UnitD27() *big.Int { return new(big.Int).Set(unitD27) }

// Infinity is the sentinel returned for ratios with a zero denominator. It is
// the largest unsigned 256-bit value.
func Infinity() *big.Int { return new(big.Int).Set(infinityInt) }

// IsInfinity reports whether x equals the infinity sentinel.
func IsInfinity(x *big.Int) bool { return x != nil && x.Cmp(infinityInt) == 0 }

// MaxUint128 returns 2^128-1, the largest identifier value accepted by the
// ledger.
func MaxUint128() *big.Int { return maxUint128.ToBig() }

// Zero returns a new zero value.
func Zero() *big.Int { return new(big.Int) }

// Clone returns a copy of x, treating nil as zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// FromUint64 returns v scaled to D18.
func FromUint64(v uint64) *big.Int {
	out := new(big.Int).SetUint64(v)
	return out.Mul(out, unitD18)
}

// FromInt64 returns v scaled to D18.
func FromInt64(v int64) *big.Int {
	out := big.NewInt(v)
	return out.Mul(out, unitD18)
}

// MulDecimal multiplies two D18 values. The result is truncated towards zero.
func MulDecimal(x, y *big.Int) *big.Int {
	if x == nil || y == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, y)
	return out.Quo(out, unitD18)
}

// DivDecimal divides two D18 values. Division by zero yields zero; callers that
// need a different policy must check the divisor first.
func DivDecimal(x, y *big.Int) *big.Int {
	if x == nil || y == nil || y.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, unitD18)
	return out.Quo(out, y)
}

// MulDecimalD27 multiplies two D27 values, or a D18 by a D27 producing a D18.
func MulDecimalD27(x, y *big.Int) *big.Int {
	if x == nil || y == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, y)
	return out.Quo(out, unitD27)
}

// DivDecimalD27 divides x by y returning a D27 scaled quotient.
func DivDecimalD27(x, y *big.Int) *big.Int {
	if x == nil || y == nil || y.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, unitD27)
	return out.Quo(out, y)
}

// MulDiv computes x*y/z truncating towards zero. A zero divisor yields zero.
func MulDiv(x, y, z *big.Int) *big.Int {
	if x == nil || y == nil || z == nil || z.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, y)
	return out.Quo(out, z)
}

// UpscaleD18ToD27 converts a D18 value to D27.
func UpscaleD18ToD27(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(x, d18ToD27)
}

// DownscaleD27ToD18 converts a D27 value to D18, truncating towards zero.
func DownscaleD27ToD18(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Quo(x, d18ToD27)
}

// Ratio returns numerator/denominator as D18, or Infinity when the denominator
// is zero or negative.
func Ratio(numerator, denominator *big.Int) *big.Int {
	if denominator == nil || denominator.Sign() <= 0 {
		return Infinity()
	}
	return DivDecimal(numerator, denominator)
}

// Min returns the smaller of x and y.
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return Clone(x)
	}
	return Clone(y)
}

// ClampZero returns max(x, 0).
func ClampZero(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// ParseD18 parses a human readable decimal ("1.5", "-20") into a D18 integer.
// Digits beyond the 18th decimal are rejected rather than silently truncated.
func ParseD18(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("decimal: empty value")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decimal: parse %q: %w", trimmed, err)
	}
	if !parsed.Truncate(DecimalsD18).Equal(parsed) {
		return nil, fmt.Errorf("decimal: %q exceeds %d decimals", trimmed, DecimalsD18)
	}
	return parsed.Shift(DecimalsD18).BigInt(), nil
}

// FormatD18 renders a D18 integer as a decimal string without trailing zeros.
func FormatD18(value *big.Int) string {
	if value == nil {
		return "0"
	}
	if IsInfinity(value) {
		return "inf"
	}
	return decimal.NewFromBigInt(value, -DecimalsD18).String()
}
