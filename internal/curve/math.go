package curve

import (
	"math/big"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
)

// ActiveLiquidity returns the total liquidity currently supporting the
// curve: inflated ambient seeds plus in-range concentrated liquidity.
// Rounds down.
func ActiveLiquidity(c *CurveState) (*uint256.Int, error) {
	ambient, err := fixed.InflateSeed(c.AmbientSeeds, c.SeedDeflator)
	if err != nil {
		return nil, err
	}
	total := new(uint256.Int).Add(ambient, c.ConcLiq)
	return fixed.CheckUint128(total)
}

// DeltaBase computes the base-token reserve change for moving a
// constant-product curve between two prices at fixed liquidity. A single
// Q64.64 multiply; rounds down.
func DeltaBase(liq, priceX, priceY *uint256.Int) (*uint256.Int, error) {
	delta := new(uint256.Int)
	if priceX.Cmp(priceY) >= 0 {
		delta.Sub(priceX, priceY)
	} else {
		delta.Sub(priceY, priceX)
	}
	return fixed.CheckUint128(fixed.MulQ64(liq, delta))
}

// DeltaQuote computes the quote-token reserve change between two prices at
// fixed liquidity. Evaluated as two stacked divisions of
// L*(pBig-pSmall)<<64 by pBig then pSmall, which is bounded to at most 2
// units of rounding loss against the real-valued L*d/(P*P'). That 2-unit
// bound is relied on by the roll and swap layers and must hold for every
// input in range.
func DeltaQuote(liq, priceX, priceY *uint256.Int) (*uint256.Int, error) {
	if priceX.Cmp(priceY) >= 0 {
		return calcQuoteDelta(liq, priceX, priceY)
	}
	return calcQuoteDelta(liq, priceY, priceX)
}

func calcQuoteDelta(liq, priceBig, priceSmall *uint256.Int) (*uint256.Int, error) {
	priceDelta := new(big.Int).Sub(priceBig.ToBig(), priceSmall.ToBig())

	// Wide intermediate: up to 320 bits before the divisions.
	num := new(big.Int).Mul(liq.ToBig(), priceDelta)
	num.Lsh(num, 64)
	num.Quo(num, priceBig.ToBig())
	num.Quo(num, priceSmall.ToBig())

	out, overflow := uint256.FromBig(num)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return fixed.CheckUint128(out)
}

// ReserveAtPrice computes the virtual reserve of one token side at a given
// price. Rounds down.
func ReserveAtPrice(liq, price *uint256.Int, inBase bool) (*uint256.Int, error) {
	if inBase {
		return fixed.CheckUint128(fixed.MulQ64(liq, price))
	}
	out, err := fixed.DivQ64(liq, price)
	if err != nil {
		return nil, err
	}
	return fixed.CheckUint128(out)
}

// CalcLimitFlows returns the token flow for one swap leg: the flow needed
// to move the curve to the limit price, capped at the remaining swap
// quantity. The second return is true when the limit binds before the
// quantity is exhausted.
func CalcLimitFlows(c *CurveState, swapQty *uint256.Int, inBaseQty bool, limitPrice *uint256.Int) (*uint256.Int, bool, error) {
	liq, err := ActiveLiquidity(c)
	if err != nil {
		return nil, false, err
	}

	var limitFlow *uint256.Int
	if inBaseQty {
		limitFlow, err = DeltaBase(liq, c.PriceRoot, limitPrice)
	} else {
		limitFlow, err = DeltaQuote(liq, c.PriceRoot, limitPrice)
	}
	if err != nil {
		return nil, false, err
	}

	if limitFlow.Cmp(swapQty) <= 0 {
		return limitFlow, true, nil
	}
	return new(uint256.Int).Set(swapQty), false, nil
}

// AmbientLiquiditySupported returns the liquidity on the full-range curve
// supported by a fixed collateral amount at a given price. Rounds down.
func AmbientLiquiditySupported(collateral *uint256.Int, inBase bool, price *uint256.Int) (*uint256.Int, error) {
	if inBase {
		out, err := fixed.DivQ64(collateral, price)
		if err != nil {
			return nil, err
		}
		return fixed.CheckUint128(out)
	}
	return fixed.CheckUint128(fixed.MulQ64(collateral, price))
}

// ConcLiquiditySupported inverts DeltaBase/DeltaQuote: the concentrated
// liquidity a fixed collateral supports over a price range. Rounds down
// always, so minted liquidity never exceeds what the collateral backs.
func ConcLiquiditySupported(collateral *uint256.Int, inBase bool, priceX, priceY *uint256.Int) (*uint256.Int, error) {
	big1, small := priceX, priceY
	if priceY.Cmp(priceX) > 0 {
		big1, small = priceY, priceX
	}
	priceDelta := new(big.Int).Sub(big1.ToBig(), small.ToBig())
	if priceDelta.Sign() == 0 {
		return nil, fixed.ErrDivZero
	}

	num := collateral.ToBig()
	var liq *big.Int
	if inBase {
		liq = new(big.Int).Lsh(num, 64)
		liq.Quo(liq, priceDelta)
	} else {
		liq = new(big.Int).Mul(num, big1.ToBig())
		liq.Mul(liq, small.ToBig())
		quoDelta := new(big.Int).Lsh(priceDelta, 64)
		liq.Quo(liq, quoDelta)
	}

	out, overflow := uint256.FromBig(liq)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return fixed.CheckUint128(out)
}

// PriceToTokenPrecision returns the minimum token buffer needed to absorb
// one unit of price rounding error at the given liquidity. The base side is
// a simple shift; the quote side takes the explicit difference of two
// reserve computations to stay safe against the curve's non-linearity.
func PriceToTokenPrecision(liq, price *uint256.Int, inBase bool) (*uint256.Int, error) {
	if inBase {
		out := new(uint256.Int).Rsh(liq, 64)
		return out.AddUint64(out, 1), nil
	}

	atPrice, err := fixed.DivQ64(liq, price)
	if err != nil {
		return nil, err
	}
	bumped := new(uint256.Int).AddUint64(price, 1)
	atBump, err := fixed.DivQ64(liq, bumped)
	if err != nil {
		return nil, err
	}
	out := new(uint256.Int).Sub(atPrice, atBump)
	return out.AddUint64(out, 1), nil
}
