package fixed

import (
	"errors"

	"github.com/holiman/uint256"
)

// Q64.64 values are unsigned 128-bit fixed point numbers with 64 fractional
// bits, carried in uint256.Int words. Q16.48 growth rates are uint64 with 48
// fractional bits.

const (
	// Q48 is one in Q16.48 fixed point.
	Q48 = uint64(1) << 48
)

var (
	ErrOverflow  = errors.New("fixed point overflow")
	ErrDivZero   = errors.New("division by zero")
	ErrGrowthCap = errors.New("growth rate exceeds cap")
)

var (
	maxUint128 = mustU256("0xffffffffffffffffffffffffffffffff")
	oneQ64     = new(uint256.Int).Lsh(uint256.NewInt(1), 64)
)

func mustU256(hex string) *uint256.Int {
	v, err := uint256.FromHex(hex)
	if err != nil {
		panic(err)
	}
	return v
}

// FitsUint128 reports whether x can be stored in a 128-bit field.
func FitsUint128(x *uint256.Int) bool {
	return x.Cmp(maxUint128) <= 0
}

// CheckUint128 narrows x into a 128-bit field, failing on overflow.
func CheckUint128(x *uint256.Int) (*uint256.Int, error) {
	if !FitsUint128(x) {
		return nil, ErrOverflow
	}
	return x, nil
}

// CheckUint96 narrows x into a 96-bit field, failing on overflow.
func CheckUint96(x *uint256.Int) (*uint256.Int, error) {
	if x.BitLen() > 96 {
		return nil, ErrOverflow
	}
	return x, nil
}

// MulQ64 multiplies two Q64.64 values. Both operands must fit 128 bits, so
// the 256-bit product is exact before the shift. Truncates.
func MulQ64(x, y *uint256.Int) *uint256.Int {
	prod := new(uint256.Int).Mul(x, y)
	return prod.Rsh(prod, 64)
}

// DivQ64 divides two Q64.64 values. The numerator must fit 192 bits so the
// pre-shift cannot wrap. Truncates.
func DivQ64(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivZero
	}
	num := new(uint256.Int).Lsh(x, 64)
	return num.Div(num, y), nil
}

// RecipQ64 computes the Q64.64 reciprocal 2^128/x. Fails if the result
// does not fit 128 bits, i.e. if x < 1.0 in fixed point.
func RecipQ64(x *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, ErrDivZero
	}
	num := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	out := num.Div(num, x)
	return CheckUint128(out)
}

// OneQ64 returns 1.0 in Q64.64.
func OneQ64() *uint256.Int {
	return new(uint256.Int).Set(oneQ64)
}
