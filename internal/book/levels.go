package book

import (
	"errors"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
	"liquidityEngine/internal/ticks"
)

var (
	ErrBadRange        = errors.New("malformed tick range")
	ErrOddLots         = errors.New("liquidity not a lot multiple")
	ErrInsufficientLiq = errors.New("insufficient liquidity at level")
	ErrLevelMissing    = errors.New("book level missing")
)

// lotGrain is the liquidity granularity of one lot. The lowest bit of a lot
// count is reserved as the knockout-presence flag and never counts as
// liquidity.
const lotGrain = 10

// BookLevel aggregates the liquidity bumps anchored at one tick: lots from
// range orders opening here (bid side) and closing here (ask side), plus
// the fee-growth odometer checkpointed at every cross. Odometer values are
// only meaningful as wrapping differences over time, never standalone.
type BookLevel struct {
	BidLots     *uint256.Int
	AskLots     *uint256.Int
	FeeOdometer uint64
}

func newBookLevel() *BookLevel {
	return &BookLevel{
		BidLots: new(uint256.Int),
		AskLots: new(uint256.Int),
	}
}

func (lv *BookLevel) clone() *BookLevel {
	return &BookLevel{
		BidLots:     new(uint256.Int).Set(lv.BidLots),
		AskLots:     new(uint256.Int).Set(lv.AskLots),
		FeeOdometer: lv.FeeOdometer,
	}
}

func (lv *BookLevel) isEmpty() bool {
	return lv.BidLots.IsZero() && lv.AskLots.IsZero()
}

// sideLiq converts one side's lots to liquidity, masking off the knockout
// flag bit.
func sideLiq(lots *uint256.Int) *uint256.Int {
	out := new(uint256.Int).Rsh(lots, 1)
	out.Lsh(out, 1)
	return out.Lsh(out, lotGrain)
}

// hasKnockoutLiq reports the knockout-presence flag on a lot count.
func hasKnockoutLiq(lots *uint256.Int) bool {
	return lots[0]&1 == 1
}

// LiqToLots converts raw liquidity into lots. Vanilla liquidity must leave
// the flag bit clear, so it has to be a multiple of two lot grains.
func LiqToLots(liq *uint256.Int) (*uint256.Int, error) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), lotGrain+1)
	mask.SubUint64(mask, 1)
	if !new(uint256.Int).And(liq, mask).IsZero() {
		return nil, ErrOddLots
	}
	lots := new(uint256.Int).Rsh(liq, lotGrain)
	return fixed.CheckUint96(lots)
}

// LotsToLiq converts a lot count back to raw liquidity, excluding the flag
// bit.
func LotsToLiq(lots *uint256.Int) *uint256.Int {
	return sideLiq(lots)
}

// LevelBook tracks the liquidity bump levels of a single pool together
// with the tick census that indexes them.
type LevelBook struct {
	levels map[int32]*BookLevel
	census *ticks.Census
}

func NewLevelBook() *LevelBook {
	return &LevelBook{
		levels: make(map[int32]*BookLevel),
		census: ticks.NewCensus(),
	}
}

// Census exposes the pool's tick index for boundary queries.
func (b *LevelBook) Census() *ticks.Census {
	return b.census
}

// Level returns the book level at a tick, or nil.
func (b *LevelBook) Level(tick int32) *BookLevel {
	return b.levels[tick]
}

// Ticks returns the populated level ticks in ascending order.
func (b *LevelBook) Ticks() []int32 {
	out := make([]int32, 0, len(b.levels))
	for tick := range b.levels {
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone deep-copies the book for transactional snapshots.
func (b *LevelBook) Clone() *LevelBook {
	out := &LevelBook{
		levels: make(map[int32]*BookLevel, len(b.levels)),
		census: b.census.Clone(),
	}
	for tick, lv := range b.levels {
		out.levels[tick] = lv.clone()
	}
	return out
}

// AddBookLiq adds a range order's lots to its boundary levels, creating
// levels and census bookmarks lazily, and returns the range's fee mileage
// clock at entry.
func (b *LevelBook) AddBookLiq(midTick, bidTick, askTick int32, lots *uint256.Int, feeGlobal uint64) (uint64, error) {
	if bidTick >= askTick {
		return 0, ErrBadRange
	}
	if bidTick < ticks.MinTick || askTick > ticks.MaxTick {
		return 0, ticks.ErrTickOutOfRange
	}

	if err := b.addToSide(midTick, bidTick, lots, feeGlobal, true); err != nil {
		return 0, err
	}
	if err := b.addToSide(midTick, askTick, lots, feeGlobal, false); err != nil {
		return 0, err
	}
	return b.ClockFeeOdometer(midTick, bidTick, askTick, feeGlobal), nil
}

// RemoveBookLiq removes a range order's lots, tearing down levels whose
// last liquidity disappears, and returns the range's exit fee mileage.
func (b *LevelBook) RemoveBookLiq(midTick, bidTick, askTick int32, lots *uint256.Int, feeGlobal uint64) (uint64, error) {
	if bidTick >= askTick {
		return 0, ErrBadRange
	}
	mileage := b.ClockFeeOdometer(midTick, bidTick, askTick, feeGlobal)

	if err := b.removeFromSide(bidTick, lots, true); err != nil {
		return 0, err
	}
	if err := b.removeFromSide(askTick, lots, false); err != nil {
		return 0, err
	}
	return mileage, nil
}

func (b *LevelBook) addToSide(midTick, tick int32, lots *uint256.Int, feeGlobal uint64, isBid bool) error {
	lv := b.levels[tick]
	if lv == nil {
		lv = newBookLevel()
		// Fresh levels at or below the curve checkpoint all prior growth
		// as below-tick growth; levels above start with none marked above.
		if tick <= midTick {
			lv.FeeOdometer = feeGlobal
		}
		b.levels[tick] = lv
	}

	side := lv.AskLots
	if isBid {
		side = lv.BidLots
	}
	next := new(uint256.Int).Add(side, lots)
	if _, err := fixed.CheckUint96(next); err != nil {
		return err
	}
	side.Set(next)

	b.census.BookmarkTick(tick)
	return nil
}

func (b *LevelBook) removeFromSide(tick int32, lots *uint256.Int, isBid bool) error {
	lv := b.levels[tick]
	if lv == nil {
		return ErrLevelMissing
	}

	side := lv.AskLots
	if isBid {
		side = lv.BidLots
	}
	if side.Cmp(lots) < 0 {
		return ErrInsufficientLiq
	}
	side.Sub(side, lots)

	if lv.isEmpty() {
		delete(b.levels, tick)
		b.census.ForgetTick(tick)
	}
	return nil
}

// CrossLevel adjusts the book when the curve price crosses a tick: the net
// concentrated-liquidity delta to apply to the curve, the odometer flip,
// and whether the crossed side carries knockout liquidity.
func (b *LevelBook) CrossLevel(tick int32, isBuy bool, feeGlobal uint64) (*big.Int, bool, error) {
	lv := b.levels[tick]
	if lv == nil {
		return nil, false, ErrLevelMissing
	}

	bidLiq := sideLiq(lv.BidLots).ToBig()
	askLiq := sideLiq(lv.AskLots).ToBig()

	delta := new(big.Int)
	var knockout bool
	if isBuy {
		// Entering from below: bid-anchored ranges activate, ask-anchored
		// ranges expire. Rising price triggers ask-side knockouts.
		delta.Sub(bidLiq, askLiq)
		knockout = hasKnockoutLiq(lv.AskLots)
	} else {
		delta.Sub(askLiq, bidLiq)
		knockout = hasKnockoutLiq(lv.BidLots)
	}

	lv.FeeOdometer = feeGlobal - lv.FeeOdometer
	return delta, knockout, nil
}

// ClockFeeOdometer reads the cumulative in-range fee growth for a tick
// range as the wrapping difference of the two boundary checkpoints.
// Absolute checkpoint values carry no meaning; only differences between
// two reads over time do, which is why the subtraction deliberately wraps.
func (b *LevelBook) ClockFeeOdometer(midTick, bidTick, askTick int32, feeGlobal uint64) uint64 {
	feeLower := b.pivotFeeBelow(bidTick, midTick, feeGlobal)
	feeUpper := b.pivotFeeBelow(askTick, midTick, feeGlobal)
	return feeUpper - feeLower
}

// pivotFeeBelow reads the cumulative fee growth below a tick. The stored
// odometer always holds the side the price is away from: growth below for
// levels at or under the curve, growth above for levels over it.
func (b *LevelBook) pivotFeeBelow(tick, midTick int32, feeGlobal uint64) uint64 {
	lv := b.levels[tick]
	if lv == nil {
		// Matches what a fresh level would checkpoint: all prior growth
		// canonically below the tick.
		return feeGlobal
	}
	if tick <= midTick {
		return lv.FeeOdometer
	}
	return feeGlobal - lv.FeeOdometer
}

// MarkKnockout sets the knockout-presence flag on one side of a level. The
// level must already hold the pivot's lots.
func (b *LevelBook) MarkKnockout(tick int32, isBid bool) error {
	lv := b.levels[tick]
	if lv == nil {
		return ErrLevelMissing
	}
	side := lv.AskLots
	if isBid {
		side = lv.BidLots
	}
	side.Or(side, uint256.NewInt(1))
	return nil
}

// UnmarkKnockout clears the knockout-presence flag on one side of a level.
func (b *LevelBook) UnmarkKnockout(tick int32, isBid bool) error {
	lv := b.levels[tick]
	if lv == nil {
		return ErrLevelMissing
	}
	side := lv.AskLots
	if isBid {
		side = lv.BidLots
	}
	mask := uint256.NewInt(1)
	side.And(side, mask.Not(mask))
	if lv.isEmpty() {
		delete(b.levels, tick)
		b.census.ForgetTick(tick)
	}
	return nil
}
