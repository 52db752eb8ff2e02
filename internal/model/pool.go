package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxProtocolTake caps the protocol's share of collected fees at half, in
// 1/256th units. maxFeeRate caps the pool fee at 5%, in 0.0001% units.
const (
	maxProtocolTake = 128
	maxFeeRate      = 50_000
)

// PoolSpec is the immutable per-pool parameterization the engine reads on
// every call. Fee rate is in 0.0001% units, protocol take in 1/256ths of
// the collected fee, JIT threshold in seconds.
type PoolSpec struct {
	FeeRate       uint16 `json:"fee_rate"`
	ProtocolTake  uint8  `json:"protocol_take"`
	TickSize      uint16 `json:"tick_size"`
	JITThresh     uint64 `json:"jit_thresh"`
	KnockoutOK    bool   `json:"knockout_ok"`
	KnockoutWidth uint16 `json:"knockout_width"`
}

// Validate rejects pool parameterizations outside modeled ranges.
func (p PoolSpec) Validate() error {
	if p.FeeRate > maxFeeRate {
		return fmt.Errorf("fee rate %d exceeds 5%%", p.FeeRate)
	}
	if p.ProtocolTake > maxProtocolTake {
		return fmt.Errorf("protocol take %d exceeds cap %d", p.ProtocolTake, maxProtocolTake)
	}
	if p.TickSize == 0 {
		return fmt.Errorf("tick size must be positive")
	}
	if p.KnockoutOK && p.KnockoutWidth == 0 {
		return fmt.Errorf("knockout width must be positive when knockouts enabled")
	}
	return nil
}

// PoolKey derives the canonical pool hash from the token pair and pool
// type index.
func PoolKey(base, quote common.Address, poolIdx uint64) common.Hash {
	var idx [8]byte
	for i := 0; i < 8; i++ {
		idx[7-i] = byte(poolIdx >> (8 * i))
	}
	return crypto.Keccak256Hash(base.Bytes(), quote.Bytes(), idx[:])
}
