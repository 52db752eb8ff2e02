package curve

import (
	"errors"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/ticks"
)

var (
	ErrUninitCurve   = errors.New("curve not initialized")
	ErrReinitCurve   = errors.New("curve already initialized")
	ErrCurveUnstable = errors.New("curve reached unstable end state")
	ErrInfeasibleQty = errors.New("swap quantity infeasible at current liquidity")
)

// CurveState is the full AMM state of one pool: the Q64.64 square-root
// price, pre-deflation ambient seeds, in-range concentrated liquidity, and
// the two Q16.48 cumulative growth accumulators. SeedDeflator and
// ConcGrowth are monotonically non-decreasing for the life of the pool.
type CurveState struct {
	PriceRoot    *uint256.Int
	AmbientSeeds *uint256.Int
	ConcLiq      *uint256.Int
	SeedDeflator uint64
	ConcGrowth   uint64
}

func NewCurveState() *CurveState {
	return &CurveState{
		PriceRoot:    new(uint256.Int),
		AmbientSeeds: new(uint256.Int),
		ConcLiq:      new(uint256.Int),
	}
}

// InitPrice sets the curve's opening price. Allowed exactly once per pool.
func (c *CurveState) InitPrice(price *uint256.Int) error {
	if !c.PriceRoot.IsZero() {
		return ErrReinitCurve
	}
	if price.Cmp(ticks.MinSqrtPrice) < 0 || price.Cmp(ticks.MaxSqrtPrice) >= 0 {
		return ticks.ErrPriceOutOfRange
	}
	c.PriceRoot.Set(price)
	return nil
}

// Initialized reports whether the curve price has been set.
func (c *CurveState) Initialized() bool {
	return !c.PriceRoot.IsZero()
}

// Clone deep-copies the curve for transactional snapshots.
func (c *CurveState) Clone() *CurveState {
	return &CurveState{
		PriceRoot:    new(uint256.Int).Set(c.PriceRoot),
		AmbientSeeds: new(uint256.Int).Set(c.AmbientSeeds),
		ConcLiq:      new(uint256.Int).Set(c.ConcLiq),
		SeedDeflator: c.SeedDeflator,
		ConcGrowth:   c.ConcGrowth,
	}
}
