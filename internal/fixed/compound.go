package fixed

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// ApproxSqrtCompound approximates sqrt(1+x) - 1 for a Q16.48 growth rate x
// using the two-term Taylor expansion x/2 - x^2/8. Valid only below 1.0;
// always rounds down, so compounded growth is never overstated.
func ApproxSqrtCompound(x uint64) (uint64, error) {
	if x >= Q48 {
		return 0, ErrGrowthCap
	}
	hi, lo := bits.Mul64(x, x)
	xSq := hi<<16 | lo>>48
	linear := x >> 1
	quad := xSq >> 3
	return linear - quad, nil
}

// CompoundStack combines two Q16.48 growth rates: (1+x)(1+y) - 1.
// Rounds down.
func CompoundStack(x, y uint64) uint64 {
	hi, lo := bits.Mul64(x, y)
	cross := hi<<16 | lo>>48
	return x + y + cross
}

// CompoundShrink deflates a Q16.48 value by a growth rate: val / (1+deflator).
// Rounds down.
func CompoundShrink(val, deflator uint64) uint64 {
	denom := Q48 + deflator
	quo, _ := bits.Div64(val>>16, val<<48, denom)
	return quo
}

// CompoundDivide computes the Q16.48 growth rate x/y for x <= y. Rounds down.
func CompoundDivide(x, y *uint256.Int) (uint64, error) {
	if y.IsZero() || x.Cmp(y) > 0 {
		return 0, ErrOverflow
	}
	num := new(uint256.Int).Lsh(x, 48)
	num.Div(num, y)
	return num.Uint64(), nil
}

// CompoundPrice scales a Q64.64 price by a Q16.48 growth rate. When shiftUp
// is set the price is multiplied by (1+growth) and rounded up, keeping the
// collateral requirement conservative; otherwise it is divided and rounded
// down.
func CompoundPrice(price *uint256.Int, growth uint64, shiftUp bool) (*uint256.Int, error) {
	mult := uint256.NewInt(Q48 + growth)
	if shiftUp {
		num := new(uint256.Int).Mul(price, mult)
		rem := new(uint256.Int).And(num, uint256.NewInt(Q48-1))
		num.Rsh(num, 48)
		if !rem.IsZero() {
			num.AddUint64(num, 1)
		}
		return CheckUint128(num)
	}
	num := new(uint256.Int).Lsh(price, 48)
	num.Div(num, mult)
	return CheckUint128(num)
}

// InflateSeed converts pre-deflation ambient seeds to live liquidity by
// applying the cumulative growth rate. Rounds down.
func InflateSeed(seed *uint256.Int, deflator uint64) (*uint256.Int, error) {
	mult := uint256.NewInt(Q48 + deflator)
	num := new(uint256.Int).Mul(seed, mult)
	num.Rsh(num, 48)
	return CheckUint128(num)
}

// DeflateSeed converts live ambient liquidity back into seed units. Rounds
// down, so round-tripping through inflate never mints liquidity.
func DeflateSeed(liq *uint256.Int, deflator uint64) *uint256.Int {
	denom := uint256.NewInt(Q48 + deflator)
	num := new(uint256.Int).Lsh(liq, 48)
	return num.Div(num, denom)
}
