package matcher

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/book"
	"liquidityEngine/internal/curve"
	"liquidityEngine/internal/knockout"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/state"
	"liquidityEngine/internal/ticks"
)

var ErrKnockoutOffGrid = errors.New("knockout tick off pool grid")

// MintKnockout posts a knockout order: a concentrated range order that is
// automatically retired when the market trades through its outer tick.
// Bid orders sit fully below the current price and knock out on the way
// down, ask orders fully above and knock out on the way up.
func (s *Sequencer) MintKnockout(pool common.Hash, spec model.PoolSpec, owner common.Address, isBid bool, tick int32, liq *uint256.Int, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !spec.KnockoutOK {
		return nil, ErrKnockoutDisabled
	}
	if tick%int32(spec.TickSize) != 0 {
		return nil, ErrKnockoutOffGrid
	}
	lots, err := book.LiqToLots(liq)
	if err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	lower, upper := koRange(isBid, tick, int32(spec.KnockoutWidth))
	priceLower, priceUpper, err := tickRange(lower, upper)
	if err != nil {
		return nil, err
	}
	if isBid && ps.Curve.PriceRoot.Cmp(priceUpper) < 0 {
		return nil, ErrKnockoutInRange
	}
	if !isBid && ps.Curve.PriceRoot.Cmp(priceLower) >= 0 {
		return nil, ErrKnockoutInRange
	}

	midTick, err := ticks.SqrtPriceToTick(ps.Curve.PriceRoot)
	if err != nil {
		return nil, err
	}
	mileage, err := ps.Book.AddBookLiq(midTick, lower, upper, lots, ps.Curve.ConcGrowth)
	if err != nil {
		return nil, err
	}
	if err := ps.Book.MarkKnockout(tick, isBid); err != nil {
		return nil, err
	}

	key := knockout.PivotKey{IsBid: isBid, Tick: tick}
	pivotTime, created, err := ps.Knockouts.MintPivot(key, owner, lots, spec.KnockoutWidth, mileage, now)
	if err != nil {
		return nil, err
	}

	base, quote, err := rangeCollateral(ps.Curve, liq, priceLower, priceUpper, true)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	s.logger.Debug("knockout minted",
		zap.String("pool", pool.Hex()),
		zap.Bool("is_bid", isBid),
		zap.Int32("tick", tick),
		zap.Uint32("pivot_time", pivotTime),
		zap.Bool("fresh_pivot", created),
	)
	flowBase, flowQuote := debitFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// BurnKnockout cancels a live knockout order before it is struck, paying
// back collateral at the current price plus accrued fee rewards.
func (s *Sequencer) BurnKnockout(pool common.Hash, spec model.PoolSpec, owner common.Address, isBid bool, tick int32, liq *uint256.Int, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	lots, err := book.LiqToLots(liq)
	if err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}
	midTick, err := ticks.SqrtPriceToTick(ps.Curve.PriceRoot)
	if err != nil {
		return nil, err
	}

	key := knockout.PivotKey{IsBid: isBid, Tick: tick}
	pivot := ps.Knockouts.Pivot(key)
	if pivot == nil {
		return nil, knockout.ErrPivotMissing
	}
	lower, upper := koRange(isBid, tick, int32(pivot.RangeTicks))

	mileage := ps.Book.ClockFeeOdometer(midTick, lower, upper, ps.Curve.ConcGrowth)
	rewards, emptied, err := ps.Knockouts.BurnPivot(key, owner, lots, mileage)
	if err != nil {
		return nil, err
	}
	if emptied {
		if err := ps.Book.UnmarkKnockout(tick, isBid); err != nil {
			return nil, err
		}
	}
	if _, err := ps.Book.RemoveBookLiq(midTick, lower, upper, lots, ps.Curve.ConcGrowth); err != nil {
		return nil, err
	}

	priceLower, priceUpper, err := tickRange(lower, upper)
	if err != nil {
		return nil, err
	}
	if inRange(ps.Curve, priceLower, priceUpper) {
		if ps.Curve.ConcLiq.Cmp(liq) < 0 {
			return nil, ErrPoolCorrupt
		}
		ps.Curve.ConcLiq = new(uint256.Int).Sub(ps.Curve.ConcLiq, liq)
	}

	base, quote, err := rangeCollateral(ps.Curve, liq, priceLower, priceUpper, false)
	if err != nil {
		return nil, err
	}
	rewardBase, rewardQuote, err := rewardPayout(ps.Curve, liq, rewards)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := creditFlows(base.Add(base, rewardBase), quote.Add(quote, rewardQuote))
	return s.result(ps, flowBase, flowQuote, nil)
}

// ClaimKnockout redeems a knocked-out position against the pivot's chained
// history. The proof is the sequence of links from the claimed commitment
// forward to the current head; a zero-length proof claims the head itself.
// Principal pays out fully converted at the knockout range, rewards as
// ambient collateral at the current price.
func (s *Sequencer) ClaimKnockout(pool common.Hash, spec model.PoolSpec, owner common.Address, isBid bool, tick int32, root *uint256.Int, proof []*uint256.Int) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	key := knockout.PivotKey{IsBid: isBid, Tick: tick}
	lots, rewards, err := ps.Knockouts.ClaimPost(key, owner, root, proof)
	if err != nil {
		return nil, err
	}

	liq := book.LotsToLiq(lots)
	base, quote, err := knockoutPayout(isBid, tick, int32(spec.KnockoutWidth), liq)
	if err != nil {
		return nil, err
	}
	rewardBase, rewardQuote, err := rewardPayout(ps.Curve, liq, rewards)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := creditFlows(base.Add(base, rewardBase), quote.Add(quote, rewardQuote))
	return s.result(ps, flowBase, flowQuote, nil)
}

// RecoverKnockout redeems a knocked-out position by pivot time alone,
// without a history proof. The position forfeits all fee rewards.
func (s *Sequencer) RecoverKnockout(pool common.Hash, spec model.PoolSpec, owner common.Address, isBid bool, tick int32, pivotTime uint32) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	key := knockout.PivotKey{IsBid: isBid, Tick: tick}
	lots, err := ps.Knockouts.RecoverPost(key, owner, pivotTime)
	if err != nil {
		return nil, err
	}

	liq := book.LotsToLiq(lots)
	base, quote, err := knockoutPayout(isBid, tick, int32(spec.KnockoutWidth), liq)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := creditFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// crossKnockout retires a struck pivot during a sweep: clocks the fee
// odometer over the pivot's range, commits the tranche into the chained
// history, and pulls the dead liquidity off the book.
func (s *Sequencer) crossKnockout(ps *state.PoolState, pool common.Hash, bumpTick int32, isBuy bool, newMid int32, now uint64) error {
	key := knockout.PivotKey{IsBid: !isBuy, Tick: bumpTick}
	pivot := ps.Knockouts.Pivot(key)
	if pivot == nil {
		return ErrPoolCorrupt
	}

	lower, upper := koRange(key.IsBid, bumpTick, int32(pivot.RangeTicks))
	feeRange := ps.Book.ClockFeeOdometer(newMid, lower, upper, ps.Curve.ConcGrowth)
	entropy := crossEntropy(pool, bumpTick, pivot.PivotTime, now)

	lots, _, err := ps.Knockouts.CrossPivot(key, entropy, feeRange)
	if err != nil {
		return err
	}
	if err := ps.Book.UnmarkKnockout(bumpTick, key.IsBid); err != nil {
		return err
	}
	if _, err := ps.Book.RemoveBookLiq(newMid, lower, upper, lots, ps.Curve.ConcGrowth); err != nil {
		return err
	}
	return nil
}

// koRange maps a pivot to its range boundaries. A bid pivot's knockout
// tick is the bottom of its range, an ask pivot's is the top.
func koRange(isBid bool, tick, width int32) (lower, upper int32) {
	if isBid {
		return tick, tick + width
	}
	return tick - width, tick
}

// knockoutPayout values a struck position's principal. Knockout converts
// the full range one-sided at its boundary prices, so the payout does not
// depend on the current curve price.
func knockoutPayout(isBid bool, tick, width int32, liq *uint256.Int) (base, quote *uint256.Int, err error) {
	lower, upper := koRange(isBid, tick, width)
	priceLower, priceUpper, err := tickRange(lower, upper)
	if err != nil {
		return nil, nil, err
	}

	base = new(uint256.Int)
	quote = new(uint256.Int)
	if isBid {
		// Struck on the way down: principal fully in quote tokens.
		quote, err = curve.DeltaQuote(liq, priceLower, priceUpper)
	} else {
		base, err = curve.DeltaBase(liq, priceLower, priceUpper)
	}
	if err != nil {
		return nil, nil, err
	}
	return base, quote, nil
}
