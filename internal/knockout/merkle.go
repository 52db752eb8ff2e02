package knockout

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var ErrProofInvalid = errors.New("knockout history proof does not verify")

// Merkle is the head of the hash-chained knockout history at one pivot
// location. Root commits every knockout event before the latest one; the
// latest event's tranche time and accumulated fee range are stored raw so
// the freshest claim needs no proof at all.
type Merkle struct {
	Root       *uint256.Int
	PivotTime  uint32
	FeeMileage uint64
}

// commit folds the current head into the chain and replaces it with a new
// knockout event. The chain link carries the previous head's tranche data
// in its low 96 bits under 160 bits of entropy salt, which hardens the
// 160-bit truncated chain against long-range collision grinding.
func (m *Merkle) commit(entropy common.Hash, pivotTime uint32, feeRange uint64) {
	link := encodeLink(entropy, m.PivotTime, m.FeeMileage)
	m.Root = chainStep(m.Root, link)
	m.PivotTime = pivotTime
	m.FeeMileage = feeRange
}

// proveHistory recovers a historical tranche's (pivotTime, feeMileage)
// from a claim. An empty proof claims the latest knockout and reads the
// head directly. Otherwise the caller supplies the root as it stood when
// their tranche was the latest entry, plus every later chain link in
// order; the first link decodes to the claimed tranche, and re-folding the
// links must land exactly on the committed root.
func (m *Merkle) proveHistory(root *uint256.Int, proof []*uint256.Int) (uint32, uint64, error) {
	if len(proof) == 0 {
		return m.PivotTime, m.FeeMileage, nil
	}

	pivotTime, feeMileage := decodeLink(proof[0])
	working := new(uint256.Int).Set(root)
	for _, link := range proof {
		working = chainStep(working, link)
	}
	if working.Cmp(m.Root) != 0 {
		return 0, 0, ErrProofInvalid
	}
	return pivotTime, feeMileage, nil
}

// chainStep hashes a chain link onto a root, truncating the digest to 160
// bits.
func chainStep(root, link *uint256.Int) *uint256.Int {
	rootBytes := root.Bytes32()
	linkBytes := link.Bytes32()
	digest := crypto.Keccak256(rootBytes[:], linkBytes[:])
	return new(uint256.Int).SetBytes(digest[12:])
}

// encodeLink packs (entropy: 160 bits, pivotTime: 32 bits, feeMileage: 64
// bits) into one chain link.
func encodeLink(entropy common.Hash, pivotTime uint32, feeMileage uint64) *uint256.Int {
	salt := new(uint256.Int).SetBytes(entropy[12:])
	link := new(uint256.Int).Lsh(salt, 96)

	packed := uint256.NewInt(uint64(pivotTime))
	packed.Lsh(packed, 64)
	packed.Or(packed, uint256.NewInt(feeMileage))
	return link.Or(link, packed)
}

// decodeLink recovers the packed tranche fields from a chain link.
func decodeLink(link *uint256.Int) (uint32, uint64) {
	mileage := link[0]
	pivotTime := uint32(link[1] & 0xFFFFFFFF)
	return pivotTime, mileage
}
