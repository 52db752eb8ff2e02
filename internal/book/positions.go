package book

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
)

var (
	ErrPositionMissing = errors.New("position does not exist")
	ErrJITHold         = errors.New("position inside JIT hold window")
	ErrAtomicBurn      = errors.New("atomic position cannot be partially burned")
)

// RangeKey identifies a concentrated position within one pool.
type RangeKey struct {
	Owner   common.Address
	BidTick int32
	AskTick int32
}

// RangePosition is one owner's concentrated liquidity over a tick range.
// FeeMileage checkpoints the range's fee clock at the last mint or harvest
// so rewards accrue pro rata from that point.
type RangePosition struct {
	Liquidity  *uint256.Int
	FeeMileage uint64
	Timestamp  uint64
	AtomicLiq  bool
}

// AmbientPosition is one owner's full-range liquidity, tracked in deflating
// seed units.
type AmbientPosition struct {
	Seeds     *uint256.Int
	Timestamp uint64
}

// Registrar tracks the liquidity positions of a single pool.
type Registrar struct {
	ranges   map[RangeKey]*RangePosition
	ambients map[common.Address]*AmbientPosition
}

func NewRegistrar() *Registrar {
	return &Registrar{
		ranges:   make(map[RangeKey]*RangePosition),
		ambients: make(map[common.Address]*AmbientPosition),
	}
}

// Clone deep-copies the registrar for transactional snapshots.
func (r *Registrar) Clone() *Registrar {
	out := NewRegistrar()
	for k, p := range r.ranges {
		out.ranges[k] = &RangePosition{
			Liquidity:  new(uint256.Int).Set(p.Liquidity),
			FeeMileage: p.FeeMileage,
			Timestamp:  p.Timestamp,
			AtomicLiq:  p.AtomicLiq,
		}
	}
	for k, p := range r.ambients {
		out.ambients[k] = &AmbientPosition{
			Seeds:     new(uint256.Int).Set(p.Seeds),
			Timestamp: p.Timestamp,
		}
	}
	return out
}

// RangePos returns the concentrated position for a key, or nil.
func (r *Registrar) RangePos(key RangeKey) *RangePosition {
	return r.ranges[key]
}

// AmbientPos returns the ambient position for an owner, or nil.
func (r *Registrar) AmbientPos(owner common.Address) *AmbientPosition {
	return r.ambients[owner]
}

// MintRange credits liquidity to a concentrated position. Topping up an
// existing position blends the fee mileage pro rata and restarts the JIT
// hold clock.
func (r *Registrar) MintRange(key RangeKey, liq *uint256.Int, mileage, now uint64, atomic bool) error {
	pos := r.ranges[key]
	if pos == nil {
		r.ranges[key] = &RangePosition{
			Liquidity:  new(uint256.Int).Set(liq),
			FeeMileage: mileage,
			Timestamp:  now,
			AtomicLiq:  atomic,
		}
		return nil
	}
	if pos.AtomicLiq || atomic {
		return ErrAtomicBurn
	}

	blended := blendMileage(pos.FeeMileage, pos.Liquidity, mileage, liq)
	next := new(uint256.Int).Add(pos.Liquidity, liq)
	next, err := fixed.CheckUint128(next)
	if err != nil {
		return err
	}
	pos.Liquidity = next
	pos.FeeMileage = blended
	pos.Timestamp = now
	return nil
}

// BurnRange debits liquidity from a concentrated position, returning the
// accrued reward mileage on the burned amount. Enforces the JIT hold window
// and full-burn on atomic positions. Deletes the position when emptied.
func (r *Registrar) BurnRange(key RangeKey, liq *uint256.Int, mileage, now, jitThresh uint64) (uint64, error) {
	pos := r.ranges[key]
	if pos == nil {
		return 0, ErrPositionMissing
	}
	if now < pos.Timestamp+jitThresh {
		return 0, ErrJITHold
	}
	if pos.Liquidity.Cmp(liq) < 0 {
		return 0, ErrInsufficientLiq
	}
	if pos.AtomicLiq && pos.Liquidity.Cmp(liq) != 0 {
		return 0, ErrAtomicBurn
	}

	rewards := deltaMileage(mileage, pos.FeeMileage)
	pos.Liquidity = new(uint256.Int).Sub(pos.Liquidity, liq)
	if pos.Liquidity.IsZero() {
		delete(r.ranges, key)
	}
	return rewards, nil
}

// HarvestRange collects the accrued reward mileage without touching the
// principal, resetting the position's checkpoint to the current clock.
func (r *Registrar) HarvestRange(key RangeKey, mileage, now, jitThresh uint64) (*uint256.Int, uint64, error) {
	pos := r.ranges[key]
	if pos == nil {
		return nil, 0, ErrPositionMissing
	}
	if now < pos.Timestamp+jitThresh {
		return nil, 0, ErrJITHold
	}

	rewards := deltaMileage(mileage, pos.FeeMileage)
	pos.FeeMileage = mileage
	return new(uint256.Int).Set(pos.Liquidity), rewards, nil
}

// MintAmbient credits seeds to an owner's ambient position.
func (r *Registrar) MintAmbient(owner common.Address, seeds *uint256.Int, now uint64) error {
	pos := r.ambients[owner]
	if pos == nil {
		r.ambients[owner] = &AmbientPosition{
			Seeds:     new(uint256.Int).Set(seeds),
			Timestamp: now,
		}
		return nil
	}
	next := new(uint256.Int).Add(pos.Seeds, seeds)
	next, err := fixed.CheckUint128(next)
	if err != nil {
		return err
	}
	pos.Seeds = next
	pos.Timestamp = now
	return nil
}

// BurnAmbient debits seeds from an owner's ambient position under the JIT
// hold window. Deletes the position when emptied.
func (r *Registrar) BurnAmbient(owner common.Address, seeds *uint256.Int, now, jitThresh uint64) error {
	pos := r.ambients[owner]
	if pos == nil {
		return ErrPositionMissing
	}
	if now < pos.Timestamp+jitThresh {
		return ErrJITHold
	}
	if pos.Seeds.Cmp(seeds) < 0 {
		return ErrInsufficientLiq
	}
	pos.Seeds = new(uint256.Int).Sub(pos.Seeds, seeds)
	if pos.Seeds.IsZero() {
		delete(r.ambients, owner)
	}
	return nil
}

// blendMileage folds a new tranche's mileage into an existing position as
// the liquidity-weighted average, rounded up. Rounding up means the blend
// can only understate future rewards, never overstate them; the matching
// burn path degrades gracefully to zero when the blend lands above the
// clock.
func blendMileage(mileageA uint64, liqA *uint256.Int, mileageB uint64, liqB *uint256.Int) uint64 {
	if liqA.IsZero() {
		return mileageB
	}
	if liqB.IsZero() {
		return mileageA
	}

	num := new(uint256.Int).Mul(liqA, uint256.NewInt(mileageA))
	termB := new(uint256.Int).Mul(liqB, uint256.NewInt(mileageB))
	num.Add(num, termB)

	denom := new(uint256.Int).Add(liqA, liqB)
	rem := new(uint256.Int)
	num.DivMod(num, denom, rem)
	if !rem.IsZero() {
		num.AddUint64(num, 1)
	}
	return num.Uint64()
}

// deltaMileage is the reward clock accrued since a checkpoint. A blended
// checkpoint can land marginally above the current clock; that clamps to
// zero reward rather than wrapping.
func deltaMileage(current, checkpoint uint64) uint64 {
	if current <= checkpoint {
		return 0
	}
	return current - checkpoint
}
