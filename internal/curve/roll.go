package curve

import (
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
	"liquidityEngine/internal/ticks"
)

// rollCushion is the fixed number of token units added to every derived
// counter-flow, keeping a swap leg safely over-collateralized against
// accumulated rounding.
const rollCushion = 4

// RollFlow executes a swap leg with a fixed token flow on the quantity
// side. The end price is derived from the flow first (base-denominated
// flows round the price down regardless of direction, quote-denominated
// flows round it up), then the counter-flow is computed at that exact
// rounded price, never independently.
func RollFlow(c *CurveState, flow *uint256.Int, accum *SwapAccum, inBaseQty, isBuy bool) error {
	if flow.IsZero() {
		return nil
	}
	if flow.Cmp(accum.QtyLeft) > 0 {
		return ErrInfeasibleQty
	}

	liq, err := ActiveLiquidity(c)
	if err != nil {
		return err
	}
	if liq.IsZero() {
		return ErrInfeasibleQty
	}

	endPrice, err := deriveFlowPrice(c.PriceRoot, liq, flow, inBaseQty, isBuy)
	if err != nil {
		return err
	}

	var counter *uint256.Int
	if inBaseQty {
		counter, err = DeltaQuote(liq, c.PriceRoot, endPrice)
	} else {
		counter, err = DeltaBase(liq, c.PriceRoot, endPrice)
	}
	if err != nil {
		return err
	}
	counter.AddUint64(counter, rollCushion)

	if inBaseQty {
		accum.accumFlows(flow, counter, isBuy)
	} else {
		accum.accumFlows(counter, flow, isBuy)
	}
	accum.QtyLeft.Sub(accum.QtyLeft, flow)
	c.PriceRoot = endPrice
	return nil
}

// RollPrice executes a swap leg to a fixed target price. Both flows are
// floating, so both carry the rounding cushion.
func RollPrice(c *CurveState, target *uint256.Int, accum *SwapAccum, inBaseQty, isBuy bool) error {
	liq, err := ActiveLiquidity(c)
	if err != nil {
		return err
	}

	baseFlow, err := DeltaBase(liq, c.PriceRoot, target)
	if err != nil {
		return err
	}
	quoteFlow, err := DeltaQuote(liq, c.PriceRoot, target)
	if err != nil {
		return err
	}
	baseFlow.AddUint64(baseFlow, rollCushion)
	quoteFlow.AddUint64(quoteFlow, rollCushion)

	qtyFlow := quoteFlow
	if inBaseQty {
		qtyFlow = baseFlow
	}
	if qtyFlow.Cmp(accum.QtyLeft) > 0 {
		accum.QtyLeft.Clear()
	} else {
		accum.QtyLeft.Sub(accum.QtyLeft, qtyFlow)
	}

	accum.accumFlows(baseFlow, quoteFlow, isBuy)
	c.PriceRoot = new(uint256.Int).Set(target)
	return nil
}

// ShaveAtBump nudges the price by exactly one fixed-point unit into the
// next tick when a leg terminates precisely on a bump boundary, charging a
// minimal precision burn on the quantity side. Fails unless the remaining
// swap quantity strictly exceeds the burn.
func ShaveAtBump(c *CurveState, accum *SwapAccum, inBaseQty, isBuy bool) error {
	liq, err := ActiveLiquidity(c)
	if err != nil {
		return err
	}
	burnDown, err := PriceToTokenPrecision(liq, c.PriceRoot, inBaseQty)
	if err != nil {
		return err
	}
	if accum.QtyLeft.Cmp(burnDown) <= 0 {
		return ErrInfeasibleQty
	}

	next := new(uint256.Int).Set(c.PriceRoot)
	if isBuy {
		next.AddUint64(next, 1)
	} else {
		next.SubUint64(next, 1)
	}
	if next.Cmp(ticks.MinSqrtPrice) < 0 || next.Cmp(ticks.MaxSqrtPrice) >= 0 {
		return ticks.ErrPriceOutOfRange
	}

	// The burn is forfeited to the pool side, no counter-flow credited.
	accum.chargeQtySide(burnDown, inBaseQty)
	accum.QtyLeft.Sub(accum.QtyLeft, burnDown)
	c.PriceRoot = next
	return nil
}

// deriveFlowPrice computes the end price implied by a fixed flow at fixed
// liquidity. Rounding always lands on the side of the fixed flow: base
// flows floor the resulting price, quote flows ceil it.
func deriveFlowPrice(price, liq, flow *uint256.Int, inBaseQty, isBuy bool) (*uint256.Int, error) {
	var end *uint256.Int
	if inBaseQty {
		delta, err := fixed.DivQ64(flow, liq)
		if err != nil {
			return nil, err
		}
		if isBuy {
			end = new(uint256.Int).Add(price, delta)
		} else {
			// Ceiling the delta floors the end price.
			rem := new(uint256.Int).Lsh(flow, 64)
			if !rem.Mod(rem, liq).IsZero() {
				delta.AddUint64(delta, 1)
			}
			if delta.Cmp(price) >= 0 {
				return nil, ErrInfeasibleQty
			}
			end = new(uint256.Int).Sub(price, delta)
		}
	} else {
		reserve, err := fixed.DivQ64(liq, price)
		if err != nil {
			return nil, err
		}
		next := new(uint256.Int)
		if isBuy {
			if flow.Cmp(reserve) >= 0 {
				return nil, ErrInfeasibleQty
			}
			next.Sub(reserve, flow)
		} else {
			next.Add(reserve, flow)
		}
		end, err = divQ64RoundUp(liq, next)
		if err != nil {
			return nil, err
		}
	}

	if end.Cmp(ticks.MinSqrtPrice) < 0 || end.Cmp(ticks.MaxSqrtPrice) >= 0 {
		return nil, ticks.ErrPriceOutOfRange
	}
	return fixed.CheckUint128(end)
}

func divQ64RoundUp(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, fixed.ErrDivZero
	}
	num := new(uint256.Int).Lsh(x, 64)
	rem := new(uint256.Int)
	num.DivMod(num, y, rem)
	if !rem.IsZero() {
		num.AddUint64(num, 1)
	}
	return num, nil
}
