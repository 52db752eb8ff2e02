package matcher

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityEngine/internal/curve"
	"liquidityEngine/internal/fixed"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/state"
	"liquidityEngine/internal/ticks"
)

var (
	ErrPoolCorrupt      = errors.New("pool state corrupted")
	ErrZeroCollateral   = errors.New("off-grid mint carries zero collateral")
	ErrKnockoutDisabled = errors.New("knockout liquidity disabled on pool")
	ErrKnockoutInRange  = errors.New("knockout range overlaps current price")
)

// initLockAnte is the ambient seed quantity permanently locked on pool
// initialization. It can never be burned, so the curve always carries a
// liquidity floor.
const initLockAnte = 10_000

// Result is the settlement outcome of one engine operation. Flows are
// signed: positive is owed to the pool, negative to the caller.
type Result struct {
	BaseFlow  *big.Int
	QuoteFlow *big.Int
	ProtoFee  *uint256.Int

	PriceRoot    *uint256.Int
	PriceTick    int32
	AmbientSeeds *uint256.Int
	ConcLiq      *uint256.Int
}

// Sequencer is the top-level market sequencer: it owns the transactional
// boundary around every engine operation and drives the tick-crossing
// sweep loop for swaps.
type Sequencer struct {
	keeper *state.Keeper
	logger *zap.Logger
}

func NewSequencer(keeper *state.Keeper, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{keeper: keeper, logger: logger}
}

// Keeper exposes the underlying state for read-only inspection.
func (s *Sequencer) Keeper() *state.Keeper {
	return s.keeper
}

// InitPool opens a pool at the given price and locks the ambient liquidity
// ante. Returns the collateral flows backing the ante.
func (s *Sequencer) InitPool(pool common.Hash, spec model.PoolSpec, price *uint256.Int) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if err := ps.Curve.InitPrice(price); err != nil {
		return nil, err
	}

	ante := uint256.NewInt(initLockAnte)
	ps.Curve.AmbientSeeds.Set(ante)

	base, quote, err := ambientCollateral(ps.Curve, ante, true)
	if err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	s.logger.Info("pool initialized",
		zap.String("pool", pool.Hex()),
		zap.String("price", price.Dec()),
	)
	return s.result(ps, base.ToBig(), quote.ToBig(), nil)
}

// Swap executes a multi-leg tick-crossing swap. The limit price may be nil
// for an unconstrained swap. Completes partially by quantity when the
// limit or the edge of liquidity is reached first.
func (s *Sequencer) Swap(pool common.Hash, spec model.PoolSpec, isBuy, inBaseQty bool, qty, limitPrice *uint256.Int, now uint64) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ps := s.keeper.Snapshot(pool)
	if !ps.Curve.Initialized() {
		return nil, curve.ErrUninitCurve
	}

	accum := curve.NewSwapAccum(qty)
	if err := s.sweepSwap(ps, pool, spec, isBuy, inBaseQty, limitPrice, accum, now); err != nil {
		return nil, err
	}

	s.keeper.Commit(pool, ps)
	res, err := s.result(ps, accum.PaidBase, accum.PaidQuote, accum.PaidProto)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("swap executed",
		zap.String("pool", pool.Hex()),
		zap.Bool("is_buy", isBuy),
		zap.String("base_flow", res.BaseFlow.String()),
		zap.String("quote_flow", res.QuoteFlow.String()),
		zap.Int32("end_tick", res.PriceTick),
	)
	return res, nil
}

// sweepSwap is the tick-crossing loop. Each iteration pins the nearest
// boundary in the local bitmap neighborhood, swaps up to it, and either
// terminates (quantity exhausted or limit reached), crosses the level, or
// escalates a bitmap-horizon spill to the full census before continuing.
func (s *Sequencer) sweepSwap(ps *state.PoolState, pool common.Hash, spec model.PoolSpec, isBuy, inBaseQty bool, limitPrice *uint256.Int, accum *curve.SwapAccum, now uint64) error {
	census := ps.Book.Census()
	midTick, err := ticks.SqrtPriceToTick(ps.Curve.PriceRoot)
	if err != nil {
		return err
	}

	for {
		if swapDone(ps.Curve, accum, isBuy, limitPrice) {
			return nil
		}

		bumpTick, spill := census.PinBitmap(isBuy, midTick)
		if spill {
			seekTick := census.SeekMezzSpill(bumpTick, isBuy)
			if seekTick == ticks.SentinelLow || seekTick == ticks.SentinelHigh {
				// No liquidity boundary left in this direction; the final
				// leg runs to the limit or the curve's price range edge.
				bound := ticks.MinSqrtPrice
				if isBuy {
					bound = ticks.MaxSqrtPrice
				}
				return curve.SwapToLimit(ps.Curve, accum, isBuy, inBaseQty, limitPrice, bound, spec.FeeRate, spec.ProtocolTake)
			}
			bumpTick = seekTick
		}

		bumpPrice, err := ticks.TickToSqrtPrice(bumpTick)
		if err != nil {
			return err
		}
		if err := curve.SwapToLimit(ps.Curve, accum, isBuy, inBaseQty, limitPrice, bumpPrice, spec.FeeRate, spec.ProtocolTake); err != nil {
			return err
		}
		if swapDone(ps.Curve, accum, isBuy, limitPrice) {
			return nil
		}

		// The leg terminated exactly on the bump boundary: burn across the
		// single price unit into the next tick, then cross the level.
		if err := curve.ShaveAtBump(ps.Curve, accum, inBaseQty, isBuy); err != nil {
			return err
		}
		midTick, err = s.applyCross(ps, pool, bumpTick, isBuy, now)
		if err != nil {
			return err
		}
	}
}

// applyCross crosses a book level: adjusts concentrated liquidity by the
// level's net lot delta, and triggers the knockout path when the crossed
// side carries the knockout flag. Returns the tick the curve now sits in.
func (s *Sequencer) applyCross(ps *state.PoolState, pool common.Hash, bumpTick int32, isBuy bool, now uint64) (int32, error) {
	delta, hasKnockout, err := ps.Book.CrossLevel(bumpTick, isBuy, ps.Curve.ConcGrowth)
	if err != nil {
		return 0, err
	}

	newConc := new(big.Int).Add(ps.Curve.ConcLiq.ToBig(), delta)
	if newConc.Sign() < 0 {
		return 0, ErrPoolCorrupt
	}
	conc, overflow := uint256.FromBig(newConc)
	if overflow {
		return 0, fixed.ErrOverflow
	}
	if _, err := fixed.CheckUint128(conc); err != nil {
		return 0, err
	}
	ps.Curve.ConcLiq = conc

	newMid := bumpTick
	if !isBuy {
		newMid = bumpTick - 1
	}

	if hasKnockout {
		if err := s.crossKnockout(ps, pool, bumpTick, isBuy, newMid, now); err != nil {
			return 0, err
		}
	}
	return newMid, nil
}

// swapDone reports the sweep's terminal condition: quantity exhausted, the
// user limit reached, or the curve pinned at its representable price edge.
func swapDone(cs *curve.CurveState, accum *curve.SwapAccum, isBuy bool, limitPrice *uint256.Int) bool {
	if accum.QtyLeft.IsZero() {
		return true
	}
	if limitPrice != nil {
		if isBuy && cs.PriceRoot.Cmp(limitPrice) >= 0 {
			return true
		}
		if !isBuy && cs.PriceRoot.Cmp(limitPrice) <= 0 {
			return true
		}
	}
	if isBuy {
		ceiling := new(uint256.Int).SubUint64(ticks.MaxSqrtPrice, 1)
		return cs.PriceRoot.Cmp(ceiling) >= 0
	}
	return cs.PriceRoot.Cmp(ticks.MinSqrtPrice) <= 0
}

// crossEntropy derives the salt folded into a knockout's chain link.
func crossEntropy(pool common.Hash, tick int32, pivotTime uint32, now uint64) common.Hash {
	var buf [16]byte
	for i := 0; i < 4; i++ {
		buf[3-i] = byte(uint32(tick) >> (8 * i))
		buf[7-i] = byte(pivotTime >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		buf[15-i] = byte(now >> (8 * i))
	}
	return crypto.Keccak256Hash(pool.Bytes(), buf[:])
}

func (s *Sequencer) result(ps *state.PoolState, base, quote *big.Int, proto *uint256.Int) (*Result, error) {
	tick, err := ticks.SqrtPriceToTick(ps.Curve.PriceRoot)
	if err != nil {
		return nil, fmt.Errorf("post-op price out of range: %w", err)
	}
	if proto == nil {
		proto = new(uint256.Int)
	}
	return &Result{
		BaseFlow:     base,
		QuoteFlow:    quote,
		ProtoFee:     proto,
		PriceRoot:    new(uint256.Int).Set(ps.Curve.PriceRoot),
		PriceTick:    tick,
		AmbientSeeds: new(uint256.Int).Set(ps.Curve.AmbientSeeds),
		ConcLiq:      new(uint256.Int).Set(ps.Curve.ConcLiq),
	}, nil
}
