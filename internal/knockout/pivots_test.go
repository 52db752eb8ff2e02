package knockout

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	koOwner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	koOther = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func bidPivot(tick int32) PivotKey {
	return PivotKey{IsBid: true, Tick: tick}
}

func entropyAt(n byte) common.Hash {
	var h common.Hash
	h[31] = n
	return h
}

func TestMintPivot(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)

	pivotTime, created, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 500, 1000)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !created || pivotTime != 1000 {
		t.Fatalf("fresh mint = (%d, %v), want (1000, true)", pivotTime, created)
	}

	// Joining the open tranche keeps its identity.
	pivotTime, created, err = ledger.MintPivot(key, koOther, uint256.NewInt(6), 16, 700, 1500)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if created || pivotTime != 1000 {
		t.Fatalf("join = (%d, %v), want (1000, false)", pivotTime, created)
	}
	if ledger.Pivot(key).Lots.Uint64() != 16 {
		t.Fatalf("pivot lots = %d, want 16", ledger.Pivot(key).Lots.Uint64())
	}

	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(2), 32, 0, 1600); err != ErrTrancheWidth {
		t.Fatalf("width mismatch err = %v, want ErrTrancheWidth", err)
	}

	posKey := PosKey{Pivot: key, Owner: koOwner, PivotTime: 1000}
	pos := ledger.Position(posKey)
	if pos == nil || pos.Lots.Uint64() != 10 || pos.FeeMileage != 500 {
		t.Fatalf("position = %+v", pos)
	}
}

func TestBurnPivot(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)
	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 500, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	rewards, emptied, err := ledger.BurnPivot(key, koOwner, uint256.NewInt(4), 800)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if rewards != 300 {
		t.Fatalf("rewards = %d, want 300", rewards)
	}
	if emptied {
		t.Fatalf("pivot reported empty with lots remaining")
	}
	if ledger.Pivot(key).Lots.Uint64() != 6 {
		t.Fatalf("pivot lots = %d, want 6", ledger.Pivot(key).Lots.Uint64())
	}

	if _, _, err := ledger.BurnPivot(key, koOther, uint256.NewInt(1), 0); err != ErrPosMissing {
		t.Fatalf("foreign burn err = %v, want ErrPosMissing", err)
	}
	if _, _, err := ledger.BurnPivot(key, koOwner, uint256.NewInt(7), 0); err != ErrPosUnderfund {
		t.Fatalf("over-burn err = %v, want ErrPosUnderfund", err)
	}

	_, emptied, err = ledger.BurnPivot(key, koOwner, uint256.NewInt(6), 800)
	if err != nil {
		t.Fatalf("final burn: %v", err)
	}
	if !emptied {
		t.Fatalf("final burn did not report empty pivot")
	}
	if ledger.Pivot(key) != nil {
		t.Fatalf("emptied pivot not deleted")
	}
	if _, _, err := ledger.BurnPivot(key, koOwner, uint256.NewInt(1), 0); err != ErrPivotMissing {
		t.Fatalf("burn gone err = %v, want ErrPivotMissing", err)
	}
}

func TestCrossAndClaimLatest(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)
	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 500, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	lots, width, err := ledger.CrossPivot(key, entropyAt(1), 2000)
	if err != nil {
		t.Fatalf("cross: %v", err)
	}
	if lots.Uint64() != 10 || width != 16 {
		t.Fatalf("cross = (%d, %d), want (10, 16)", lots.Uint64(), width)
	}
	if ledger.Pivot(key) != nil {
		t.Fatalf("crossed pivot not deleted")
	}
	head := ledger.Merkle(key)
	if head == nil || head.PivotTime != 1000 || head.FeeMileage != 2000 {
		t.Fatalf("history head = %+v", head)
	}

	if _, _, err := ledger.CrossPivot(key, entropyAt(2), 0); err != ErrPivotMissing {
		t.Fatalf("re-cross err = %v, want ErrPivotMissing", err)
	}

	// The latest knockout redeems with no proof at all.
	lots, rewards, err := ledger.ClaimPost(key, koOwner, new(uint256.Int), nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if lots.Uint64() != 10 {
		t.Fatalf("claim lots = %d, want 10", lots.Uint64())
	}
	if rewards != 1500 {
		t.Fatalf("claim rewards = %d, want 1500", rewards)
	}

	if _, _, err := ledger.ClaimPost(key, koOwner, new(uint256.Int), nil); err != ErrPosMissing {
		t.Fatalf("double claim err = %v, want ErrPosMissing", err)
	}
}

func TestClaimChainedProof(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)

	// First tranche knocks out, then a second one opens and knocks out too.
	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 0, 1000); err != nil {
		t.Fatalf("mint first: %v", err)
	}
	if _, _, err := ledger.CrossPivot(key, entropyAt(1), 2000); err != nil {
		t.Fatalf("cross first: %v", err)
	}
	if _, _, err := ledger.MintPivot(key, koOther, uint256.NewInt(4), 16, 0, 3000); err != nil {
		t.Fatalf("mint second: %v", err)
	}
	if _, _, err := ledger.CrossPivot(key, entropyAt(2), 5000); err != nil {
		t.Fatalf("cross second: %v", err)
	}

	// The first tranche's claim carries the root as it stood after its own
	// knockout, plus the one later chain link.
	rootAtFirst := chainStep(new(uint256.Int), encodeLink(entropyAt(1), 0, 0))
	laterLink := encodeLink(entropyAt(2), 1000, 2000)

	lots, rewards, err := ledger.ClaimPost(key, koOwner, rootAtFirst, []*uint256.Int{laterLink})
	if err != nil {
		t.Fatalf("chained claim: %v", err)
	}
	if lots.Uint64() != 10 {
		t.Fatalf("chained claim lots = %d, want 10", lots.Uint64())
	}
	if rewards != 2000 {
		t.Fatalf("chained claim rewards = %d, want 2000", rewards)
	}

	// A tampered root fails verification.
	badRoot := new(uint256.Int).AddUint64(rootAtFirst, 1)
	if _, _, err := ledger.ClaimPost(key, koOther, badRoot, []*uint256.Int{laterLink}); err != ErrProofInvalid {
		t.Fatalf("tampered root err = %v, want ErrProofInvalid", err)
	}

	// The second tranche is still the head, so its claim needs no proof.
	lots, rewards, err = ledger.ClaimPost(key, koOther, new(uint256.Int), nil)
	if err != nil {
		t.Fatalf("head claim: %v", err)
	}
	if lots.Uint64() != 4 || rewards != 5000 {
		t.Fatalf("head claim = (%d, %d), want (4, 5000)", lots.Uint64(), rewards)
	}
}

func TestClaimGuards(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)

	// Nothing has knocked out yet.
	if _, _, err := ledger.ClaimPost(key, koOwner, new(uint256.Int), nil); err != ErrNotKnockedOut {
		t.Fatalf("premature claim err = %v, want ErrNotKnockedOut", err)
	}

	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 0, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := ledger.CrossPivot(key, entropyAt(1), 100); err != nil {
		t.Fatalf("cross: %v", err)
	}

	// A relaunched tranche sharing the knocked-out tranche's time blocks
	// redemption while it is live.
	if _, _, err := ledger.MintPivot(key, koOther, uint256.NewInt(2), 16, 0, 1000); err != nil {
		t.Fatalf("remint: %v", err)
	}
	if _, _, err := ledger.ClaimPost(key, koOwner, new(uint256.Int), nil); err != ErrNotKnockedOut {
		t.Fatalf("live-tranche claim err = %v, want ErrNotKnockedOut", err)
	}
}

func TestRecoverPost(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)
	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 500, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := ledger.RecoverPost(key, koOwner, 1000); err != ErrNotKnockedOut {
		t.Fatalf("recover live err = %v, want ErrNotKnockedOut", err)
	}

	if _, _, err := ledger.CrossPivot(key, entropyAt(1), 9000); err != nil {
		t.Fatalf("cross: %v", err)
	}

	// A tranche claimed from the future fails the head check.
	if _, err := ledger.RecoverPost(key, koOwner, 2000); err != ErrNotKnockedOut {
		t.Fatalf("future recover err = %v, want ErrNotKnockedOut", err)
	}

	lots, err := ledger.RecoverPost(key, koOwner, 1000)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if lots.Uint64() != 10 {
		t.Fatalf("recover lots = %d, want 10", lots.Uint64())
	}
	if ledger.Position(PosKey{Pivot: key, Owner: koOwner, PivotTime: 1000}) != nil {
		t.Fatalf("recovered position not deleted")
	}
}

func TestLinkCodec(t *testing.T) {
	link := encodeLink(entropyAt(0xAB), 123456, 987654321)
	pivotTime, mileage := decodeLink(link)
	if pivotTime != 123456 || mileage != 987654321 {
		t.Fatalf("decode = (%d, %d), want (123456, 987654321)", pivotTime, mileage)
	}

	// The salt occupies the top 160 bits, clear of the packed fields.
	salt := new(uint256.Int).Rsh(link, 96)
	if salt.Uint64() != 0xAB {
		t.Fatalf("salt = %#x, want 0xab", salt.Uint64())
	}
}

func TestLedgerClone(t *testing.T) {
	ledger := NewLedger()
	key := bidPivot(-1000)
	if _, _, err := ledger.MintPivot(key, koOwner, uint256.NewInt(10), 16, 0, 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	snap := ledger.Clone()
	if _, _, err := ledger.CrossPivot(key, entropyAt(1), 500); err != nil {
		t.Fatalf("cross: %v", err)
	}

	if snap.Pivot(key) == nil || snap.Pivot(key).Lots.Uint64() != 10 {
		t.Fatalf("clone pivot mutated: %+v", snap.Pivot(key))
	}
	if snap.Merkle(key) != nil {
		t.Fatalf("clone saw post-snapshot history")
	}
}
