package book

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
)

func TestLiqToLots(t *testing.T) {
	lots, err := LiqToLots(uint256.NewInt(2048))
	if err != nil {
		t.Fatalf("convert 2048: %v", err)
	}
	if lots.Uint64() != 2 {
		t.Fatalf("lots = %d, want 2", lots.Uint64())
	}

	lots, err = LiqToLots(uint256.NewInt(10 * 2048))
	if err != nil {
		t.Fatalf("convert 10*2048: %v", err)
	}
	if lots.Uint64() != 20 {
		t.Fatalf("lots = %d, want 20", lots.Uint64())
	}

	if _, err := LiqToLots(uint256.NewInt(1024)); err != ErrOddLots {
		t.Fatalf("1024 err = %v, want ErrOddLots", err)
	}
	if _, err := LiqToLots(uint256.NewInt(2048 + 512)); err != ErrOddLots {
		t.Fatalf("2560 err = %v, want ErrOddLots", err)
	}

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 107)
	if _, err := LiqToLots(huge); err != fixed.ErrOverflow {
		t.Fatalf("oversized err = %v, want ErrOverflow", err)
	}
}

func TestLotsToLiqMasksFlag(t *testing.T) {
	liq := LotsToLiq(uint256.NewInt(3))
	if liq.Uint64() != 2048 {
		t.Fatalf("liq = %d, want 2048", liq.Uint64())
	}
	liq = LotsToLiq(uint256.NewInt(4))
	if liq.Uint64() != 4096 {
		t.Fatalf("liq = %d, want 4096", liq.Uint64())
	}
}

func TestAddBookLiqMileage(t *testing.T) {
	book := NewLevelBook()

	mileage, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 5000)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if mileage != 0 {
		t.Fatalf("entry mileage = %d, want 0", mileage)
	}

	bid := book.Level(-100)
	if bid == nil || bid.BidLots.Uint64() != 2 || bid.AskLots.Uint64() != 0 {
		t.Fatalf("bid level = %+v", bid)
	}
	if bid.FeeOdometer != 5000 {
		t.Fatalf("bid odometer = %d, want 5000", bid.FeeOdometer)
	}
	ask := book.Level(100)
	if ask == nil || ask.AskLots.Uint64() != 2 || ask.BidLots.Uint64() != 0 {
		t.Fatalf("ask level = %+v", ask)
	}
	if ask.FeeOdometer != 0 {
		t.Fatalf("ask odometer = %d, want 0", ask.FeeOdometer)
	}
	if !book.Census().HasBookmark(-100) || !book.Census().HasBookmark(100) {
		t.Fatalf("boundary ticks not bookmarked")
	}

	if _, err := book.AddBookLiq(0, 100, -100, uint256.NewInt(2), 5000); err != ErrBadRange {
		t.Fatalf("inverted range err = %v, want ErrBadRange", err)
	}
}

func TestClockFeeOdometerAccrual(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 5000); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Price stays inside the range while the global clock runs 5000 -> 8000.
	got := book.ClockFeeOdometer(0, -100, 100, 8000)
	if got != 3000 {
		t.Fatalf("in-range accrual = %d, want 3000", got)
	}

	// No accrual at the entry instant.
	if got := book.ClockFeeOdometer(0, -100, 100, 5000); got != 0 {
		t.Fatalf("entry accrual = %d, want 0", got)
	}
}

func TestCrossLevelDelta(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(4), 1000); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Buying through the ask boundary retires the range's liquidity.
	delta, knockout, err := book.CrossLevel(100, true, 2000)
	if err != nil {
		t.Fatalf("cross up: %v", err)
	}
	if delta.Cmp(big.NewInt(-4096)) != 0 {
		t.Fatalf("cross up delta = %v, want -4096", delta)
	}
	if knockout {
		t.Fatalf("unexpected knockout flag on vanilla level")
	}
	if lv := book.Level(100); lv.FeeOdometer != 2000 {
		t.Fatalf("flipped odometer = %d, want 2000", lv.FeeOdometer)
	}

	// Selling back through it reactivates the same liquidity.
	delta, _, err = book.CrossLevel(100, false, 3500)
	if err != nil {
		t.Fatalf("cross down: %v", err)
	}
	if delta.Cmp(big.NewInt(4096)) != 0 {
		t.Fatalf("cross down delta = %v, want 4096", delta)
	}
	if lv := book.Level(100); lv.FeeOdometer != 1500 {
		t.Fatalf("odometer after round trip = %d, want 1500", lv.FeeOdometer)
	}

	if _, _, err := book.CrossLevel(42, true, 0); err != ErrLevelMissing {
		t.Fatalf("cross missing level err = %v, want ErrLevelMissing", err)
	}
}

func TestClockFeeOdometerAcrossCrosses(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 5000); err != nil {
		t.Fatalf("add: %v", err)
	}

	// In range until the clock reads 8000, then the price exits above.
	if _, _, err := book.CrossLevel(100, true, 8000); err != nil {
		t.Fatalf("cross out: %v", err)
	}
	// Fees earned above the range never credit the position.
	if got := book.ClockFeeOdometer(100, -100, 100, 9500); got != 3000 {
		t.Fatalf("above-range accrual = %d, want 3000", got)
	}

	// Price re-enters and the clock runs another 500 in range.
	if _, _, err := book.CrossLevel(100, false, 9500); err != nil {
		t.Fatalf("cross back: %v", err)
	}
	if got := book.ClockFeeOdometer(0, -100, 100, 10000); got != 3500 {
		t.Fatalf("round-trip accrual = %d, want 3500", got)
	}
}

func TestRemoveBookLiq(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 1000); err != nil {
		t.Fatalf("add: %v", err)
	}

	mileage, err := book.RemoveBookLiq(0, -100, 100, uint256.NewInt(2), 4000)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mileage != 3000 {
		t.Fatalf("exit mileage = %d, want 3000", mileage)
	}
	if book.Level(-100) != nil || book.Level(100) != nil {
		t.Fatalf("levels not torn down after last removal")
	}
	if book.Census().HasBookmark(-100) || book.Census().HasBookmark(100) {
		t.Fatalf("census bookmarks not forgotten")
	}

	if _, err := book.RemoveBookLiq(0, -100, 100, uint256.NewInt(2), 4000); err != ErrLevelMissing {
		t.Fatalf("remove missing err = %v, want ErrLevelMissing", err)
	}
}

func TestRemoveBookLiqPartial(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(6), 0); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := book.RemoveBookLiq(0, -100, 100, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("partial remove: %v", err)
	}
	if lv := book.Level(-100); lv == nil || lv.BidLots.Uint64() != 4 {
		t.Fatalf("bid lots after partial = %+v", lv)
	}

	if _, err := book.RemoveBookLiq(0, -100, 100, uint256.NewInt(8), 0); err != ErrInsufficientLiq {
		t.Fatalf("over-remove err = %v, want ErrInsufficientLiq", err)
	}
}

func TestKnockoutFlag(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := book.MarkKnockout(100, false); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// The flag bit never counts as liquidity.
	lv := book.Level(100)
	if lv.AskLots.Uint64() != 3 {
		t.Fatalf("marked ask lots = %d, want 3", lv.AskLots.Uint64())
	}
	if sideLiq(lv.AskLots).Uint64() != 2048 {
		t.Fatalf("marked side liq = %d, want 2048", sideLiq(lv.AskLots).Uint64())
	}

	delta, knockout, err := book.CrossLevel(100, true, 100)
	if err != nil {
		t.Fatalf("cross: %v", err)
	}
	if !knockout {
		t.Fatalf("buy cross missed ask-side knockout flag")
	}
	if delta.Cmp(big.NewInt(-2048)) != 0 {
		t.Fatalf("cross delta = %v, want -2048", delta)
	}

	if err := book.UnmarkKnockout(100, false); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if book.Level(100).AskLots.Uint64() != 2 {
		t.Fatalf("lots after unmark = %d, want 2", book.Level(100).AskLots.Uint64())
	}

	if err := book.MarkKnockout(42, true); err != ErrLevelMissing {
		t.Fatalf("mark missing err = %v, want ErrLevelMissing", err)
	}
}

func TestUnmarkKnockoutTeardown(t *testing.T) {
	book := NewLevelBook()
	if err := book.addToSide(0, -50, uint256.NewInt(0), 0, true); err != nil {
		t.Fatalf("seed level: %v", err)
	}
	if err := book.MarkKnockout(-50, true); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !book.Census().HasBookmark(-50) {
		t.Fatalf("flag-only level not bookmarked")
	}

	// Clearing the last flag empties the level entirely.
	if err := book.UnmarkKnockout(-50, true); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if book.Level(-50) != nil {
		t.Fatalf("flag-only level not torn down")
	}
	if book.Census().HasBookmark(-50) {
		t.Fatalf("census bookmark survived teardown")
	}
}

func TestLevelBookClone(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -100, 100, uint256.NewInt(2), 777); err != nil {
		t.Fatalf("add: %v", err)
	}

	snap := book.Clone()
	if _, err := book.AddBookLiq(0, -200, 200, uint256.NewInt(4), 777); err != nil {
		t.Fatalf("add after clone: %v", err)
	}
	book.Level(-100).BidLots.SetUint64(99)

	if snap.Level(-200) != nil {
		t.Fatalf("clone saw post-snapshot level")
	}
	if snap.Level(-100).BidLots.Uint64() != 2 {
		t.Fatalf("clone lots mutated: %d", snap.Level(-100).BidLots.Uint64())
	}
	if snap.Census().HasBookmark(-200) {
		t.Fatalf("clone census saw post-snapshot bookmark")
	}
}

func TestTicksSorted(t *testing.T) {
	book := NewLevelBook()
	if _, err := book.AddBookLiq(0, -300, 500, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := book.AddBookLiq(0, -700, 100, uint256.NewInt(2), 0); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := book.Ticks()
	want := []int32{-700, -300, 100, 500}
	if len(got) != len(want) {
		t.Fatalf("ticks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", got, want)
		}
	}
}
