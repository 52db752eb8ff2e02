package curve

import (
	"math/big"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/ticks"
)

// SwapAccum carries the running result of a multi-leg swap. Paid flows are
// signed: positive is owed to the pool, negative is owed to the caller.
type SwapAccum struct {
	QtyLeft   *uint256.Int
	PaidBase  *big.Int
	PaidQuote *big.Int
	PaidProto *uint256.Int
}

func NewSwapAccum(qty *uint256.Int) *SwapAccum {
	return &SwapAccum{
		QtyLeft:   new(uint256.Int).Set(qty),
		PaidBase:  new(big.Int),
		PaidQuote: new(big.Int),
		PaidProto: new(uint256.Int),
	}
}

// accumFlows folds one leg's unsigned flow magnitudes into the signed
// totals. A buy pays base into the pool and draws quote out; a sell is the
// mirror image.
func (a *SwapAccum) accumFlows(baseMag, quoteMag *uint256.Int, isBuy bool) {
	base := baseMag.ToBig()
	quote := quoteMag.ToBig()
	if isBuy {
		a.PaidBase.Add(a.PaidBase, base)
		a.PaidQuote.Sub(a.PaidQuote, quote)
	} else {
		a.PaidBase.Sub(a.PaidBase, base)
		a.PaidQuote.Add(a.PaidQuote, quote)
	}
}

// chargeQtySide adds a pool-favoring charge on the quantity-denominated
// side, independent of swap direction.
func (a *SwapAccum) chargeQtySide(amount *uint256.Int, inBaseQty bool) {
	if inBaseQty {
		a.PaidBase.Add(a.PaidBase, amount.ToBig())
	} else {
		a.PaidQuote.Add(a.PaidQuote, amount.ToBig())
	}
}

// SwapToLimit executes one stable-range swap leg: fees are estimated on the
// pre-fee curve, assimilated into liquidity, then the remaining real flow
// rolls the curve to whichever binds first, quantity or limit price. The
// bump price caps the leg at the next liquidity boundary.
func SwapToLimit(c *CurveState, accum *SwapAccum, isBuy, inBaseQty bool, userLimit, bumpPrice *uint256.Int, feeRate uint16, protoTake uint8) error {
	limit := determineLimit(isBuy, userLimit, bumpPrice)

	// Fee estimate uses the pre-fee flow to the limit. Fees are a strict
	// sub-fraction of that flow, so charging them first can never push the
	// leg past the limit.
	preFlow, _, err := CalcLimitFlows(c, accum.QtyLeft, inBaseQty, limit)
	if err != nil {
		return err
	}

	liqFee, protoFee := CalcFeeOverSwap(preFlow, feeRate, protoTake)
	totalFee := new(uint256.Int).Add(liqFee, protoFee)
	if !totalFee.IsZero() {
		if totalFee.Cmp(accum.QtyLeft) > 0 {
			return ErrInfeasibleQty
		}
		accum.chargeQtySide(totalFee, inBaseQty)
		accum.QtyLeft.Sub(accum.QtyLeft, totalFee)
		accum.PaidProto.Add(accum.PaidProto, protoFee)

		if err := AssimilateLiq(c, liqFee, inBaseQty); err != nil {
			return err
		}
	}

	flow, atLimit, err := CalcLimitFlows(c, accum.QtyLeft, inBaseQty, limit)
	if err != nil {
		return err
	}

	if atLimit {
		if err := RollPrice(c, limit, accum, inBaseQty, isBuy); err != nil {
			return err
		}
		return assertPriceEndStable(c, limit)
	}

	if err := RollFlow(c, flow, accum, inBaseQty, isBuy); err != nil {
		return err
	}
	return assertFlowEndStable(c, accum, isBuy, limit)
}

// CalcFeeOverSwap splits the exchange fee on a leg's flow into the
// liquidity-provider share and the protocol take. FeeRate is in 0.0001%
// units, protoTake in 1/256ths of the collected fee.
func CalcFeeOverSwap(flow *uint256.Int, feeRate uint16, protoTake uint8) (liqFee, protoFee *uint256.Int) {
	totalFee := new(uint256.Int).Mul(flow, uint256.NewInt(uint64(feeRate)))
	totalFee.Div(totalFee, uint256.NewInt(1_000_000))

	protoFee = new(uint256.Int).Mul(totalFee, uint256.NewInt(uint64(protoTake)))
	protoFee.Rsh(protoFee, 8)

	liqFee = new(uint256.Int).Sub(totalFee, protoFee)
	return liqFee, protoFee
}

// determineLimit bounds a leg's limit price by the user limit, the curve's
// numeric price range, and the bump boundary. The upper side shaves one
// unit below the bump price because liquidity activates at the bottom of
// its tick, so the leg must stop just under the boundary.
func determineLimit(isBuy bool, userLimit, bumpPrice *uint256.Int) *uint256.Int {
	limit := new(uint256.Int)
	if isBuy {
		limit.Sub(bumpPrice, uint256.NewInt(1))
		if userLimit != nil && userLimit.Cmp(limit) < 0 {
			limit.Set(userLimit)
		}
		ceiling := new(uint256.Int).SubUint64(ticks.MaxSqrtPrice, 1)
		if limit.Cmp(ceiling) > 0 {
			limit.Set(ceiling)
		}
		return limit
	}

	limit.Set(bumpPrice)
	if userLimit != nil && userLimit.Cmp(limit) > 0 {
		limit.Set(userLimit)
	}
	if limit.Cmp(ticks.MinSqrtPrice) < 0 {
		limit.Set(ticks.MinSqrtPrice)
	}
	return limit
}

// assertFlowEndStable checks the post-conditions of a quantity-bound leg:
// the swap quantity fully exhausted without the price escaping the limit.
// A violation indicates a pathological curve state and aborts the whole
// transaction.
func assertFlowEndStable(c *CurveState, accum *SwapAccum, isBuy bool, limit *uint256.Int) error {
	if !accum.QtyLeft.IsZero() {
		return ErrCurveUnstable
	}
	if isBuy && c.PriceRoot.Cmp(limit) > 0 {
		return ErrCurveUnstable
	}
	if !isBuy && c.PriceRoot.Cmp(limit) < 0 {
		return ErrCurveUnstable
	}
	return nil
}

// assertPriceEndStable checks the post-conditions of a limit-bound leg: the
// curve must sit exactly on the limit price.
func assertPriceEndStable(c *CurveState, limit *uint256.Int) error {
	if c.PriceRoot.Cmp(limit) != 0 {
		return ErrCurveUnstable
	}
	return nil
}
