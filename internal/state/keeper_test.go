package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestSnapshotIsolation(t *testing.T) {
	keeper := NewKeeper()
	pool := common.HexToHash("0x01")

	ps := keeper.Snapshot(pool)
	ps.Curve.PriceRoot = new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	keeper.Commit(pool, ps)

	// An abandoned snapshot never reaches the committed state.
	scratch := keeper.Snapshot(pool)
	scratch.Curve.PriceRoot.SetUint64(1)
	if _, err := scratch.Book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("add on snapshot: %v", err)
	}

	live := keeper.Peek(pool)
	if live.Curve.PriceRoot.Cmp(new(uint256.Int).Lsh(uint256.NewInt(1), 64)) != 0 {
		t.Fatalf("committed price mutated through snapshot: %v", live.Curve.PriceRoot)
	}
	if live.Book.Level(-100) != nil {
		t.Fatalf("committed book mutated through snapshot")
	}
}

func TestCommitVisibility(t *testing.T) {
	keeper := NewKeeper()
	pool := common.HexToHash("0x02")

	ps := keeper.Snapshot(pool)
	if _, err := ps.Book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	keeper.Commit(pool, ps)

	if lv := keeper.Peek(pool).Book.Level(-100); lv == nil || lv.BidLots.Uint64() != 2 {
		t.Fatalf("committed level = %+v", lv)
	}

	next := keeper.Snapshot(pool)
	if lv := next.Book.Level(-100); lv == nil || lv.BidLots.Uint64() != 2 {
		t.Fatalf("later snapshot missed committed level: %+v", lv)
	}
}

func TestUnknownPool(t *testing.T) {
	keeper := NewKeeper()
	pool := common.HexToHash("0x03")

	if keeper.Peek(pool) != nil {
		t.Fatalf("peek on unknown pool returned state")
	}
	ps := keeper.Snapshot(pool)
	if ps == nil || !ps.Curve.PriceRoot.IsZero() {
		t.Fatalf("fresh snapshot = %+v", ps)
	}
	// Snapshots of unknown pools do not implicitly register them.
	if len(keeper.Pools()) != 0 {
		t.Fatalf("pools = %v, want empty", keeper.Pools())
	}

	keeper.Commit(pool, ps)
	if len(keeper.Pools()) != 1 || keeper.Pools()[0] != pool {
		t.Fatalf("pools after commit = %v", keeper.Pools())
	}
}
