package book

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func rangeKey(owner common.Address, bid, ask int32) RangeKey {
	return RangeKey{Owner: owner, BidTick: bid, AskTick: ask}
}

func TestMintBurnRange(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)

	if err := reg.MintRange(key, uint256.NewInt(5000), 2000, 10, false); err != nil {
		t.Fatalf("mint: %v", err)
	}
	pos := reg.RangePos(key)
	if pos == nil || pos.Liquidity.Uint64() != 5000 || pos.FeeMileage != 2000 {
		t.Fatalf("position = %+v", pos)
	}

	rewards, err := reg.BurnRange(key, uint256.NewInt(2000), 4500, 100, 10)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if rewards != 2500 {
		t.Fatalf("rewards = %d, want 2500", rewards)
	}
	if reg.RangePos(key).Liquidity.Uint64() != 3000 {
		t.Fatalf("remaining = %d, want 3000", reg.RangePos(key).Liquidity.Uint64())
	}

	if _, err := reg.BurnRange(key, uint256.NewInt(3000), 4500, 200, 10); err != nil {
		t.Fatalf("final burn: %v", err)
	}
	if reg.RangePos(key) != nil {
		t.Fatalf("emptied position not deleted")
	}

	if _, err := reg.BurnRange(key, uint256.NewInt(1), 0, 200, 0); err != ErrPositionMissing {
		t.Fatalf("burn missing err = %v, want ErrPositionMissing", err)
	}
}

func TestBurnRangeErrors(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)
	if err := reg.MintRange(key, uint256.NewInt(5000), 0, 100, false); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := reg.BurnRange(key, uint256.NewInt(5000), 0, 105, 10); err != ErrJITHold {
		t.Fatalf("early burn err = %v, want ErrJITHold", err)
	}
	if _, err := reg.BurnRange(key, uint256.NewInt(6000), 0, 200, 10); err != ErrInsufficientLiq {
		t.Fatalf("over-burn err = %v, want ErrInsufficientLiq", err)
	}
	// The hold boundary itself is eligible.
	if _, err := reg.BurnRange(key, uint256.NewInt(1000), 0, 110, 10); err != nil {
		t.Fatalf("boundary burn: %v", err)
	}
}

func TestAtomicRange(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)
	if err := reg.MintRange(key, uint256.NewInt(5000), 0, 0, true); err != nil {
		t.Fatalf("mint atomic: %v", err)
	}

	if err := reg.MintRange(key, uint256.NewInt(1000), 0, 50, false); err != ErrAtomicBurn {
		t.Fatalf("top-up atomic err = %v, want ErrAtomicBurn", err)
	}
	if _, err := reg.BurnRange(key, uint256.NewInt(1000), 0, 100, 0); err != ErrAtomicBurn {
		t.Fatalf("partial atomic burn err = %v, want ErrAtomicBurn", err)
	}
	if _, err := reg.BurnRange(key, uint256.NewInt(5000), 0, 100, 0); err != nil {
		t.Fatalf("full atomic burn: %v", err)
	}

	// The flag also blocks vanilla positions from atomic top-ups.
	plain := rangeKey(bob, -100, 100)
	if err := reg.MintRange(plain, uint256.NewInt(1000), 0, 0, false); err != nil {
		t.Fatalf("mint plain: %v", err)
	}
	if err := reg.MintRange(plain, uint256.NewInt(1000), 0, 0, true); err != ErrAtomicBurn {
		t.Fatalf("atomic top-up err = %v, want ErrAtomicBurn", err)
	}
}

func TestMintRangeBlendsMileage(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)

	if err := reg.MintRange(key, uint256.NewInt(1000), 100, 0, false); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.MintRange(key, uint256.NewInt(3000), 500, 50, false); err != nil {
		t.Fatalf("top-up: %v", err)
	}

	pos := reg.RangePos(key)
	if pos.Liquidity.Uint64() != 4000 {
		t.Fatalf("liquidity = %d, want 4000", pos.Liquidity.Uint64())
	}
	// (1000*100 + 3000*500) / 4000 = 400 exactly.
	if pos.FeeMileage != 400 {
		t.Fatalf("blended mileage = %d, want 400", pos.FeeMileage)
	}
	if pos.Timestamp != 50 {
		t.Fatalf("timestamp = %d, want 50", pos.Timestamp)
	}
}

func TestBlendMileageRoundsUp(t *testing.T) {
	// (1000*100 + 1000*101) / 2000 = 100.5 rounds to 101.
	got := blendMileage(100, uint256.NewInt(1000), 101, uint256.NewInt(1000))
	if got != 101 {
		t.Fatalf("blend = %d, want 101", got)
	}
	if got := blendMileage(7, new(uint256.Int), 42, uint256.NewInt(5)); got != 42 {
		t.Fatalf("blend with empty base = %d, want 42", got)
	}
	if got := blendMileage(7, uint256.NewInt(5), 42, new(uint256.Int)); got != 7 {
		t.Fatalf("blend with empty tranche = %d, want 7", got)
	}
}

func TestDeltaMileageClamps(t *testing.T) {
	if got := deltaMileage(500, 200); got != 300 {
		t.Fatalf("delta = %d, want 300", got)
	}
	// A rounded-up blend can sit above the clock; that reads as zero.
	if got := deltaMileage(200, 201); got != 0 {
		t.Fatalf("clamped delta = %d, want 0", got)
	}
}

func TestHarvestRange(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)
	if err := reg.MintRange(key, uint256.NewInt(5000), 1000, 0, false); err != nil {
		t.Fatalf("mint: %v", err)
	}

	liq, rewards, err := reg.HarvestRange(key, 1600, 100, 10)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if liq.Uint64() != 5000 {
		t.Fatalf("harvest liq = %d, want 5000", liq.Uint64())
	}
	if rewards != 600 {
		t.Fatalf("harvest rewards = %d, want 600", rewards)
	}

	// The checkpoint resets; a second harvest only sees new growth.
	_, rewards, err = reg.HarvestRange(key, 1650, 200, 10)
	if err != nil {
		t.Fatalf("second harvest: %v", err)
	}
	if rewards != 50 {
		t.Fatalf("second harvest rewards = %d, want 50", rewards)
	}

	if _, _, err := reg.HarvestRange(rangeKey(bob, -100, 100), 0, 200, 0); err != ErrPositionMissing {
		t.Fatalf("harvest missing err = %v, want ErrPositionMissing", err)
	}
}

func TestMintBurnAmbient(t *testing.T) {
	reg := NewRegistrar()

	if err := reg.MintAmbient(alice, uint256.NewInt(9000), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.MintAmbient(alice, uint256.NewInt(1000), 5); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	if reg.AmbientPos(alice).Seeds.Uint64() != 10000 {
		t.Fatalf("seeds = %d, want 10000", reg.AmbientPos(alice).Seeds.Uint64())
	}

	if err := reg.BurnAmbient(alice, uint256.NewInt(4000), 6, 10); err != ErrJITHold {
		t.Fatalf("early burn err = %v, want ErrJITHold", err)
	}
	if err := reg.BurnAmbient(alice, uint256.NewInt(20000), 100, 10); err != ErrInsufficientLiq {
		t.Fatalf("over-burn err = %v, want ErrInsufficientLiq", err)
	}
	if err := reg.BurnAmbient(alice, uint256.NewInt(10000), 100, 10); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if reg.AmbientPos(alice) != nil {
		t.Fatalf("emptied ambient position not deleted")
	}
	if err := reg.BurnAmbient(bob, uint256.NewInt(1), 100, 0); err != ErrPositionMissing {
		t.Fatalf("burn missing err = %v, want ErrPositionMissing", err)
	}
}

func TestRegistrarClone(t *testing.T) {
	reg := NewRegistrar()
	key := rangeKey(alice, -100, 100)
	if err := reg.MintRange(key, uint256.NewInt(5000), 0, 0, false); err != nil {
		t.Fatalf("mint range: %v", err)
	}
	if err := reg.MintAmbient(alice, uint256.NewInt(9000), 0); err != nil {
		t.Fatalf("mint ambient: %v", err)
	}

	snap := reg.Clone()
	reg.RangePos(key).Liquidity.SetUint64(1)
	reg.AmbientPos(alice).Seeds.SetUint64(1)
	if err := reg.MintRange(rangeKey(bob, -5, 5), uint256.NewInt(100), 0, 0, false); err != nil {
		t.Fatalf("mint after clone: %v", err)
	}

	if snap.RangePos(key).Liquidity.Uint64() != 5000 {
		t.Fatalf("clone range mutated: %d", snap.RangePos(key).Liquidity.Uint64())
	}
	if snap.AmbientPos(alice).Seeds.Uint64() != 9000 {
		t.Fatalf("clone ambient mutated: %d", snap.AmbientPos(alice).Seeds.Uint64())
	}
	if snap.RangePos(rangeKey(bob, -5, 5)) != nil {
		t.Fatalf("clone saw post-snapshot position")
	}
}
