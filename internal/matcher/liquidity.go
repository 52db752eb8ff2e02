package matcher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/book"
	"liquidityEngine/internal/curve"
	"liquidityEngine/internal/fixed"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/ticks"
)

// MintAmbient adds full-range liquidity. The liquidity is converted to
// seeds at the current deflator, so the position accrues ambient fee
// compounding automatically.
func (s *Sequencer) MintAmbient(pool common.Hash, spec model.PoolSpec, owner common.Address, liq *uint256.Int, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	seeds := fixed.DeflateSeed(liq, ps.Curve.SeedDeflator)
	if err := ps.Positions.MintAmbient(owner, seeds, now); err != nil {
		return nil, err
	}

	total := new(uint256.Int).Add(ps.Curve.AmbientSeeds, seeds)
	if _, err := fixed.CheckUint128(total); err != nil {
		return nil, err
	}
	ps.Curve.AmbientSeeds = total

	base, quote, err := ambientCollateral(ps.Curve, liq, true)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := debitFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// BurnAmbient removes full-range liquidity and pays out the backing
// collateral. Positions minted within the JIT threshold cannot burn yet.
func (s *Sequencer) BurnAmbient(pool common.Hash, spec model.PoolSpec, owner common.Address, liq *uint256.Int, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	seeds := fixed.DeflateSeed(liq, ps.Curve.SeedDeflator)
	if err := ps.Positions.BurnAmbient(owner, seeds, now, spec.JITThresh); err != nil {
		return nil, err
	}
	if ps.Curve.AmbientSeeds.Cmp(seeds) < 0 {
		return nil, ErrPoolCorrupt
	}
	ps.Curve.AmbientSeeds.Sub(ps.Curve.AmbientSeeds, seeds)

	// Pay out on the deflated-then-inflated liquidity so rounding always
	// lands in the pool's favor.
	payLiq, err := fixed.InflateSeed(seeds, ps.Curve.SeedDeflator)
	if err != nil {
		return nil, err
	}
	base, quote, err := ambientCollateral(ps.Curve, payLiq, false)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := creditFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// MintRange adds concentrated liquidity over [bidTick, askTick). Orders
// whose boundaries sit off the pool's tick grid are accepted but flagged
// atomic, and must carry nonzero collateral.
func (s *Sequencer) MintRange(pool common.Hash, spec model.PoolSpec, owner common.Address, bidTick, askTick int32, liq *uint256.Int, now uint64) (*Result, error) {
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

	mileage, err := ps.Book.AddBookLiq(midTick, bidTick, askTick, lots, ps.Curve.ConcGrowth)
	if err != nil {
		return nil, err
	}

	atomic := offGrid(spec.TickSize, bidTick, askTick)
	key := book.RangeKey{Owner: owner, BidTick: bidTick, AskTick: askTick}
	if err := ps.Positions.MintRange(key, liq, mileage, now, atomic); err != nil {
		return nil, err
	}

	priceBid, priceAsk, err := tickRange(bidTick, askTick)
	if err != nil {
		return nil, err
	}
	if inRange(ps.Curve, priceBid, priceAsk) {
		conc := new(uint256.Int).Add(ps.Curve.ConcLiq, liq)
		if _, err := fixed.CheckUint128(conc); err != nil {
			return nil, err
		}
		ps.Curve.ConcLiq = conc
	}

	base, quote, err := rangeCollateral(ps.Curve, liq, priceBid, priceAsk, true)
	if err != nil {
		return nil, err
	}
	if atomic && base.IsZero() && quote.IsZero() {
		return nil, ErrZeroCollateral
	}

	s.keeper.Commit(pool, ps)
	s.logger.Debug("range minted",
		zap.String("pool", pool.Hex()),
		zap.Int32("bid_tick", bidTick),
		zap.Int32("ask_tick", askTick),
		zap.String("liq", liq.Dec()),
	)
	flowBase, flowQuote := debitFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// BurnRange removes concentrated liquidity and settles both the collateral
// and the fee rewards accrued since the position's checkpoint.
func (s *Sequencer) BurnRange(pool common.Hash, spec model.PoolSpec, owner common.Address, bidTick, askTick int32, liq *uint256.Int, now uint64) (*Result, error) {
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

	mileage := ps.Book.ClockFeeOdometer(midTick, bidTick, askTick, ps.Curve.ConcGrowth)
	key := book.RangeKey{Owner: owner, BidTick: bidTick, AskTick: askTick}
	rewards, err := ps.Positions.BurnRange(key, liq, mileage, now, spec.JITThresh)
	if err != nil {
		return nil, err
	}
	if _, err := ps.Book.RemoveBookLiq(midTick, bidTick, askTick, lots, ps.Curve.ConcGrowth); err != nil {
		return nil, err
	}

	priceBid, priceAsk, err := tickRange(bidTick, askTick)
	if err != nil {
		return nil, err
	}
	if inRange(ps.Curve, priceBid, priceAsk) {
		if ps.Curve.ConcLiq.Cmp(liq) < 0 {
			return nil, ErrPoolCorrupt
		}
		ps.Curve.ConcLiq = new(uint256.Int).Sub(ps.Curve.ConcLiq, liq)
	}

	base, quote, err := rangeCollateral(ps.Curve, liq, priceBid, priceAsk, false)
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

// Harvest pays out a range position's accrued fee rewards without touching
// its principal, and resets the fee checkpoint to the current odometer.
func (s *Sequencer) Harvest(pool common.Hash, spec model.PoolSpec, owner common.Address, bidTick, askTick int32, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
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

	mileage := ps.Book.ClockFeeOdometer(midTick, bidTick, askTick, ps.Curve.ConcGrowth)
	key := book.RangeKey{Owner: owner, BidTick: bidTick, AskTick: askTick}
	liq, rewards, err := ps.Positions.HarvestRange(key, mileage, now, spec.JITThresh)
	if err != nil {
		return nil, err
	}

	base, quote, err := rewardPayout(ps.Curve, liq, rewards)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	flowBase, flowQuote := creditFlows(base, quote)
	return s.result(ps, flowBase, flowQuote, nil)
}

// offGrid reports whether either boundary misses the pool's tick grid.
func offGrid(gridSize uint16, bidTick, askTick int32) bool {
	grid := int32(gridSize)
	return bidTick%grid != 0 || askTick%grid != 0
}
