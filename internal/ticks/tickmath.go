package ticks

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// MinTick and MaxTick bound the price grid. Prices follow 1.0001^tick.
	MinTick = int32(-665454)
	MaxTick = int32(831818)
)

var (
	ErrTickOutOfRange  = errors.New("tick out of range")
	ErrPriceOutOfRange = errors.New("sqrt price out of range")
)

var (
	// MinSqrtPrice and MaxSqrtPrice bound the Q64.64 square-root price.
	MinSqrtPrice = uint256.NewInt(65538)
	MaxSqrtPrice = mustDec("21267430153580247136652501917186561137")

	maxUint256Big = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// ratioTable[i] is sqrt(1/1.0001^(2^i)) in Q128.128, selected by bit i
	// of |tick| and folded in by repeated squaring.
	ratioTable = [20]*big.Int{
		mustHex("fffcb933bd6fad37aa2d162d1a594001"),
		mustHex("fff97272373d413259a46990580e213a"),
		mustHex("fff2e50f5f656932ef12357cf3c7fdcc"),
		mustHex("ffe5caca7e10e4e61c3624eaa0941cd0"),
		mustHex("ffcb9843d60f6159c9db58835c926644"),
		mustHex("ff973b41fa98c081472e6896dfb254c0"),
		mustHex("ff2ea16466c96a3843ec78b326b52861"),
		mustHex("fe5dee046a99a2a811c461f1969c3053"),
		mustHex("fcbe86c7900a88aedcffc83b479aa3a4"),
		mustHex("f987a7253ac413176f2b074cf7815e54"),
		mustHex("f3392b0822b70005940c7a398e4b70f3"),
		mustHex("e7159475a2c29b7443b29c7fa6e889d9"),
		mustHex("d097f3bdfd2022b8845ad8f792aa5825"),
		mustHex("a9f746462d870fdf8a65dc1f90e061e5"),
		mustHex("70d869a156d2a1b890bb3df62baf32f7"),
		mustHex("31be135f97d08fd981231505542fcfa6"),
		mustHex("9aa508b5b7a84e1c677de54f3e99bc9"),
		mustHex("5d6af8dedb81196699c329225ee604"),
		mustHex("2216e584f5fa1ea926041bedfe98"),
		mustHex("48a170391f7dc42444e8fa2"),
	}

	logSqrt10001   = mustDec("255738958999603826347141")
	tickLowOffset  = mustDecBig("3402992956809132418596140100660247210")
	tickHighOffset = mustDecBig("291339464771989622907027621153398088495")
)

func mustHex(h string) *big.Int {
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		panic("bad hex constant: " + h)
	}
	return v
}

func mustDec(d string) *uint256.Int {
	v, ok := new(big.Int).SetString(d, 10)
	if !ok {
		panic("bad decimal constant: " + d)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		panic("constant overflows uint256: " + d)
	}
	return out
}

func mustDecBig(d string) *big.Int {
	v, ok := new(big.Int).SetString(d, 10)
	if !ok {
		panic("bad decimal constant: " + d)
	}
	return v
}

// TickToSqrtPrice converts a price tick to its Q64.64 square-root price.
// The Q128.128 intermediate rounds up into Q64.64 so a boundary price never
// lands below its tick.
func TickToSqrtPrice(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfRange
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(ratioTable[0])
	}
	for i := 1; i < len(ratioTable); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, ratioTable[i])
			ratio.Rsh(ratio, 128)
		}
	}

	// The table encodes negative powers, so positive ticks invert.
	if tick > 0 {
		ratio.Div(maxUint256Big, ratio)
	}

	rem := new(big.Int).And(ratio, new(big.Int).SetUint64(1<<64-1))
	ratio.Rsh(ratio, 64)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}

	out, overflow := uint256.FromBig(ratio)
	if overflow {
		return nil, ErrPriceOutOfRange
	}
	return out, nil
}

// SqrtPriceToTick converts a Q64.64 square-root price to the highest tick
// whose price is at or below it. Valid on [MinSqrtPrice, MaxSqrtPrice).
// Uses a binary-logarithm approximation: msb position plus 14 rounds of
// squaring refinement, then disambiguates the two candidate ticks produced
// by the log_sqrt10001 transform.
func SqrtPriceToTick(price *uint256.Int) (int32, error) {
	if price.Cmp(MinSqrtPrice) < 0 || price.Cmp(MaxSqrtPrice) >= 0 {
		return 0, ErrPriceOutOfRange
	}

	ratio := new(big.Int).Lsh(price.ToBig(), 64)
	msb := ratio.BitLen() - 1

	r := new(big.Int)
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	log2 := big.NewInt(int64(msb) - 128)
	log2.Lsh(log2, 64)

	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f := new(big.Int).Rsh(r, 128)
		if f.Sign() != 0 {
			log2.Or(log2, new(big.Int).Lsh(f, uint(63-i)))
			r.Rsh(r, 1)
		}
	}

	logPrice := new(big.Int).Mul(log2, logSqrt10001.ToBig())

	tickLow := new(big.Int).Sub(logPrice, tickLowOffset)
	tickLow.Rsh(tickLow, 128)
	tickHigh := new(big.Int).Add(logPrice, tickHighOffset)
	tickHigh.Rsh(tickHigh, 128)

	low := int32(tickLow.Int64())
	high := int32(tickHigh.Int64())
	if low == high {
		return low, nil
	}

	highPrice, err := TickToSqrtPrice(high)
	if err != nil {
		return low, nil
	}
	if highPrice.Cmp(price) <= 0 {
		return high, nil
	}
	return low, nil
}
