package knockout

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
)

var (
	ErrPivotMissing  = errors.New("knockout pivot does not exist")
	ErrTrancheWidth  = errors.New("knockout width does not match open tranche")
	ErrPosMissing    = errors.New("knockout position does not exist")
	ErrPosUnderfund  = errors.New("knockout position lots insufficient")
	ErrNotKnockedOut = errors.New("tranche has not been knocked out")
)

// PivotKey locates knockout liquidity within a pool: bid knockouts expire
// when the price falls through the tick, ask knockouts when it rises.
type PivotKey struct {
	IsBid bool
	Tick  int32
}

// Pivot tracks the currently-active knockout tranche at one location. Lots
// are stored flag-free (always even); PivotTime identifies the tranche and
// resets each time the pivot is knocked out; RangeTicks is fixed for the
// tranche's life.
type Pivot struct {
	Lots       *uint256.Int
	PivotTime  uint32
	RangeTicks uint16
}

// Pos is one owner's stake in one knockout tranche.
type Pos struct {
	Lots       *uint256.Int
	FeeMileage uint64
	Timestamp  uint64
}

// PosKey identifies a knockout position by location, owner, and tranche.
type PosKey struct {
	Pivot     PivotKey
	Owner     common.Address
	PivotTime uint32
}

// Ledger tracks the knockout state of a single pool: live pivots, the
// hash-chained history of knockout events, and per-owner tranche positions.
type Ledger struct {
	pivots    map[PivotKey]*Pivot
	merkles   map[PivotKey]*Merkle
	positions map[PosKey]*Pos
}

func NewLedger() *Ledger {
	return &Ledger{
		pivots:    make(map[PivotKey]*Pivot),
		merkles:   make(map[PivotKey]*Merkle),
		positions: make(map[PosKey]*Pos),
	}
}

// Clone deep-copies the ledger for transactional snapshots.
func (l *Ledger) Clone() *Ledger {
	out := NewLedger()
	for k, p := range l.pivots {
		out.pivots[k] = &Pivot{
			Lots:       new(uint256.Int).Set(p.Lots),
			PivotTime:  p.PivotTime,
			RangeTicks: p.RangeTicks,
		}
	}
	for k, m := range l.merkles {
		out.merkles[k] = &Merkle{
			Root:       new(uint256.Int).Set(m.Root),
			PivotTime:  m.PivotTime,
			FeeMileage: m.FeeMileage,
		}
	}
	for k, p := range l.positions {
		out.positions[k] = &Pos{
			Lots:       new(uint256.Int).Set(p.Lots),
			FeeMileage: p.FeeMileage,
			Timestamp:  p.Timestamp,
		}
	}
	return out
}

// Pivot returns the live pivot at a location, or nil.
func (l *Ledger) Pivot(key PivotKey) *Pivot {
	return l.pivots[key]
}

// Merkle returns the knockout history head at a location, or nil.
func (l *Ledger) Merkle(key PivotKey) *Merkle {
	return l.merkles[key]
}

// Position returns a tranche position, or nil.
func (l *Ledger) Position(key PosKey) *Pos {
	return l.positions[key]
}

// MintPivot stakes lots into the pivot at a location, opening a fresh
// tranche if none is live. Joining an open tranche requires the same range
// width; the tranche identity (PivotTime) never changes on a top-up.
// Returns the tranche time and whether the pivot was newly created.
func (l *Ledger) MintPivot(key PivotKey, owner common.Address, lots *uint256.Int, width uint16, feeMileage, now uint64) (uint32, bool, error) {
	pivot := l.pivots[key]
	created := pivot == nil
	if created {
		pivot = &Pivot{
			Lots:       new(uint256.Int),
			PivotTime:  uint32(now),
			RangeTicks: width,
		}
		l.pivots[key] = pivot
	} else if pivot.RangeTicks != width {
		return 0, false, ErrTrancheWidth
	}

	next := new(uint256.Int).Add(pivot.Lots, lots)
	next, err := fixed.CheckUint96(next)
	if err != nil {
		return 0, false, err
	}
	pivot.Lots = next

	posKey := PosKey{Pivot: key, Owner: owner, PivotTime: pivot.PivotTime}
	pos := l.positions[posKey]
	if pos == nil {
		l.positions[posKey] = &Pos{
			Lots:       new(uint256.Int).Set(lots),
			FeeMileage: feeMileage,
			Timestamp:  now,
		}
	} else {
		posLots := new(uint256.Int).Add(pos.Lots, lots)
		if posLots, err = fixed.CheckUint96(posLots); err != nil {
			return 0, false, err
		}
		pos.Lots = posLots
		pos.Timestamp = now
	}
	return pivot.PivotTime, created, nil
}

// BurnPivot withdraws lots from a live tranche before it is knocked out.
// Returns the accrued reward mileage on the burned lots and whether the
// pivot emptied out entirely.
func (l *Ledger) BurnPivot(key PivotKey, owner common.Address, lots *uint256.Int, feeMileage uint64) (uint64, bool, error) {
	pivot := l.pivots[key]
	if pivot == nil {
		return 0, false, ErrPivotMissing
	}

	posKey := PosKey{Pivot: key, Owner: owner, PivotTime: pivot.PivotTime}
	pos := l.positions[posKey]
	if pos == nil {
		return 0, false, ErrPosMissing
	}
	if pos.Lots.Cmp(lots) < 0 {
		return 0, false, ErrPosUnderfund
	}
	if pivot.Lots.Cmp(lots) < 0 {
		return 0, false, ErrPosUnderfund
	}

	rewards := uint64(0)
	if feeMileage > pos.FeeMileage {
		rewards = feeMileage - pos.FeeMileage
	}

	pos.Lots = new(uint256.Int).Sub(pos.Lots, lots)
	if pos.Lots.IsZero() {
		delete(l.positions, posKey)
	}
	pivot.Lots = new(uint256.Int).Sub(pivot.Lots, lots)

	emptied := pivot.Lots.IsZero()
	if emptied {
		delete(l.pivots, key)
	}
	return rewards, emptied, nil
}

// CrossPivot knocks out the live tranche at a location: the previous
// history head is folded into the hash chain under an entropy salt, the
// head is replaced with this tranche's time and accumulated fee range, and
// the pivot is deleted. Returns the knocked-out lots and tranche width so
// the caller can strip the book.
func (l *Ledger) CrossPivot(key PivotKey, entropy common.Hash, feeRange uint64) (*uint256.Int, uint16, error) {
	pivot := l.pivots[key]
	if pivot == nil {
		return nil, 0, ErrPivotMissing
	}

	merkle := l.merkles[key]
	if merkle == nil {
		merkle = &Merkle{Root: new(uint256.Int)}
		l.merkles[key] = merkle
	}
	merkle.commit(entropy, pivot.PivotTime, feeRange)

	lots := pivot.Lots
	width := pivot.RangeTicks
	delete(l.pivots, key)
	return lots, width, nil
}

// ClaimPost redeems a knocked-out position. With a non-empty proof, the
// claimed tranche is decoded from the first chain link and the chain is
// verified back to the committed root; a zero-length proof reads the raw
// history head directly. Returns the claimable lots and the tranche's
// reward mileage net of the position's checkpoint.
func (l *Ledger) ClaimPost(key PivotKey, owner common.Address, root *uint256.Int, proof []*uint256.Int) (*uint256.Int, uint64, error) {
	merkle := l.merkles[key]
	if merkle == nil {
		return nil, 0, ErrNotKnockedOut
	}

	pivotTime, feeMileage, err := merkle.proveHistory(root, proof)
	if err != nil {
		return nil, 0, err
	}
	return l.redeemPos(key, owner, pivotTime, feeMileage)
}

// RecoverPost redeems a knocked-out position without a proof, forfeiting
// all fee rewards. Valid only when the history head shows a knockout at or
// after the claimed tranche.
func (l *Ledger) RecoverPost(key PivotKey, owner common.Address, pivotTime uint32) (*uint256.Int, error) {
	merkle := l.merkles[key]
	if merkle == nil || merkle.PivotTime < pivotTime {
		return nil, ErrNotKnockedOut
	}
	lots, _, err := l.redeemPos(key, owner, pivotTime, 0)
	return lots, err
}

func (l *Ledger) redeemPos(key PivotKey, owner common.Address, pivotTime uint32, feeMileage uint64) (*uint256.Int, uint64, error) {
	// A still-live tranche with the same time cannot be redeemed.
	if pivot := l.pivots[key]; pivot != nil && pivot.PivotTime == pivotTime {
		return nil, 0, ErrNotKnockedOut
	}

	posKey := PosKey{Pivot: key, Owner: owner, PivotTime: pivotTime}
	pos := l.positions[posKey]
	if pos == nil {
		return nil, 0, ErrPosMissing
	}

	rewards := uint64(0)
	if feeMileage > pos.FeeMileage {
		rewards = feeMileage - pos.FeeMileage
	}

	lots := pos.Lots
	delete(l.positions, posKey)
	return lots, rewards, nil
}
