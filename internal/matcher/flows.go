package matcher

import (
	"math/big"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/curve"
	"liquidityEngine/internal/fixed"
	"liquidityEngine/internal/ticks"
)

// ambientCollateral values full-range liquidity at the current curve price.
// Mints round up by one token unit on each side so the pool never credits
// more than it collects; burns round down.
func ambientCollateral(cs *curve.CurveState, liq *uint256.Int, roundUp bool) (base, quote *uint256.Int, err error) {
	base = fixed.MulQ64(liq, cs.PriceRoot)
	quote, err = fixed.DivQ64(liq, cs.PriceRoot)
	if err != nil {
		return nil, nil, err
	}
	if roundUp {
		base.AddUint64(base, 1)
		quote.AddUint64(quote, 1)
	}
	return base, quote, nil
}

// rangeCollateral values concentrated liquidity over [priceBid, priceAsk).
// Below the range the position is held entirely in quote tokens, above it
// entirely in base, and in range it splits at the curve price.
func rangeCollateral(cs *curve.CurveState, liq, priceBid, priceAsk *uint256.Int, roundUp bool) (base, quote *uint256.Int, err error) {
	base = new(uint256.Int)
	quote = new(uint256.Int)

	switch {
	case cs.PriceRoot.Cmp(priceBid) < 0:
		quote, err = curve.DeltaQuote(liq, priceBid, priceAsk)
	case cs.PriceRoot.Cmp(priceAsk) >= 0:
		base, err = curve.DeltaBase(liq, priceBid, priceAsk)
	default:
		base, err = curve.DeltaBase(liq, cs.PriceRoot, priceBid)
		if err == nil {
			quote, err = curve.DeltaQuote(liq, cs.PriceRoot, priceAsk)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if roundUp {
		if !base.IsZero() {
			base.AddUint64(base, 1)
		}
		if !quote.IsZero() {
			quote.AddUint64(quote, 1)
		}
	}
	return base, quote, nil
}

// tickRange resolves a range order's boundary prices.
func tickRange(bidTick, askTick int32) (priceBid, priceAsk *uint256.Int, err error) {
	priceBid, err = ticks.TickToSqrtPrice(bidTick)
	if err != nil {
		return nil, nil, err
	}
	priceAsk, err = ticks.TickToSqrtPrice(askTick)
	if err != nil {
		return nil, nil, err
	}
	return priceBid, priceAsk, nil
}

// inRange reports whether the curve price sits inside [priceBid, priceAsk),
// meaning the order's liquidity is active on the curve.
func inRange(cs *curve.CurveState, priceBid, priceAsk *uint256.Int) bool {
	return cs.PriceRoot.Cmp(priceBid) >= 0 && cs.PriceRoot.Cmp(priceAsk) < 0
}

// rewardPayout converts accumulated fee mileage on concentrated liquidity
// into an ambient liquidity payout: the reward liquidity is valued at the
// current price, rounded down, and the matching seeds are retired from the
// curve's ambient stock.
func rewardPayout(cs *curve.CurveState, liq *uint256.Int, mileage uint64) (base, quote *uint256.Int, err error) {
	if mileage == 0 || liq.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	rewardLiq := new(uint256.Int).Mul(liq, uint256.NewInt(mileage))
	rewardLiq.Rsh(rewardLiq, 48)
	if rewardLiq.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	base, quote, err = ambientCollateral(cs, rewardLiq, false)
	if err != nil {
		return nil, nil, err
	}

	seeds := fixed.DeflateSeed(rewardLiq, cs.SeedDeflator)
	if seeds.Cmp(cs.AmbientSeeds) > 0 {
		seeds.Set(cs.AmbientSeeds)
	}
	cs.AmbientSeeds.Sub(cs.AmbientSeeds, seeds)
	return base, quote, nil
}

// debitFlows marks collateral as owed to the pool.
func debitFlows(base, quote *uint256.Int) (*big.Int, *big.Int) {
	return base.ToBig(), quote.ToBig()
}

// creditFlows marks collateral as owed to the caller.
func creditFlows(base, quote *uint256.Int) (*big.Int, *big.Int) {
	return new(big.Int).Neg(base.ToBig()), new(big.Int).Neg(quote.ToBig())
}

// addFlows accumulates a settlement leg into running totals.
func addFlows(accBase, accQuote, base, quote *big.Int) (*big.Int, *big.Int) {
	return new(big.Int).Add(accBase, base), new(big.Int).Add(accQuote, quote)
}
