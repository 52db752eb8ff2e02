package state

import (
	"github.com/ethereum/go-ethereum/common"

	"liquidityEngine/internal/book"
	"liquidityEngine/internal/curve"
	"liquidityEngine/internal/knockout"
)

// PoolState is the complete in-memory engine state of one pool. A pool's
// state is exclusively owned for the duration of a transaction; distinct
// pools are independent.
type PoolState struct {
	Curve     *curve.CurveState
	Book      *book.LevelBook
	Positions *book.Registrar
	Knockouts *knockout.Ledger
}

func NewPoolState() *PoolState {
	return &PoolState{
		Curve:     curve.NewCurveState(),
		Book:      book.NewLevelBook(),
		Positions: book.NewRegistrar(),
		Knockouts: knockout.NewLedger(),
	}
}

// Clone deep-copies the pool state.
func (p *PoolState) Clone() *PoolState {
	return &PoolState{
		Curve:     p.Curve.Clone(),
		Book:      p.Book.Clone(),
		Positions: p.Positions.Clone(),
		Knockouts: p.Knockouts.Clone(),
	}
}

// Keeper holds the engine state of every pool and hands out transactional
// working copies. An operation mutates a snapshot and either commits it
// back atomically or abandons it, so a failed operation leaves no partial
// state behind.
type Keeper struct {
	pools map[common.Hash]*PoolState
}

func NewKeeper() *Keeper {
	return &Keeper{pools: make(map[common.Hash]*PoolState)}
}

// Snapshot returns a mutable deep copy of a pool's state, creating a fresh
// one for unknown pools.
func (k *Keeper) Snapshot(pool common.Hash) *PoolState {
	ps, ok := k.pools[pool]
	if !ok {
		return NewPoolState()
	}
	return ps.Clone()
}

// Commit atomically replaces a pool's state with a mutated snapshot.
func (k *Keeper) Commit(pool common.Hash, ps *PoolState) {
	k.pools[pool] = ps
}

// Peek returns the live pool state for read-only use, or nil for unknown
// pools. Callers must not mutate through it.
func (k *Keeper) Peek(pool common.Hash) *PoolState {
	return k.pools[pool]
}

// Pools lists every pool hash with committed state.
func (k *Keeper) Pools() []common.Hash {
	out := make([]common.Hash, 0, len(k.pools))
	for hash := range k.pools {
		out = append(out, hash)
	}
	return out
}
