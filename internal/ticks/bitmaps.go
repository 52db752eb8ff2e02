package ticks

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// A tick decomposes into three one-byte layers: lobby (bits 16-23), mezzanine
// (bits 8-15), and terminus (bits 0-7). Shifts are arithmetic, so negative
// ticks floor toward the lower neighborhood and the in-byte remainder is
// always non-negative.

func lobbyKey(tick int32) int8 {
	return int8(tick >> 16)
}

func mezzKey(tick int32) int16 {
	return int16(tick >> 8)
}

func mezzBit(tick int32) uint8 {
	return uint8((tick >> 8) & 0xFF)
}

func termBit(tick int32) uint8 {
	return uint8(tick & 0xFF)
}

// weldMezzTerm reassembles a tick from its mezzanine key and terminus bit.
func weldMezzTerm(mezz int16, term uint8) int32 {
	return int32(mezz)<<8 + int32(term)
}

// weldLobbyMezz reassembles a mezzanine key from its lobby byte and bit.
func weldLobbyMezz(lobby int8, mezz uint8) int16 {
	return int16(lobby)<<8 + int16(mezz)
}

func setBit(word *uint256.Int, bit uint8) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	word.Or(word, mask)
}

func clearBit(word *uint256.Int, bit uint8) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bit))
	word.And(word, mask.Not(mask))
}

func hasBit(word *uint256.Int, bit uint8) bool {
	if word == nil {
		return false
	}
	probe := new(uint256.Int).Rsh(word, uint(bit))
	return probe[0]&1 == 1
}

// lsbPos returns the least significant set bit position. Word must be
// nonzero.
func lsbPos(word *uint256.Int) uint8 {
	for i := 0; i < 4; i++ {
		if word[i] != 0 {
			return uint8(i*64 + bits.TrailingZeros64(word[i]))
		}
	}
	panic("lsb of zero bitmap")
}

// msbPos returns the most significant set bit position. Word must be
// nonzero.
func msbPos(word *uint256.Int) uint8 {
	for i := 3; i >= 0; i-- {
		if word[i] != 0 {
			return uint8(i*64 + 63 - bits.LeadingZeros64(word[i]))
		}
	}
	panic("msb of zero bitmap")
}

// truncLeft keeps only the bits at or above start.
func truncLeft(word *uint256.Int, start uint8) *uint256.Int {
	out := new(uint256.Int).Rsh(word, uint(start))
	return out.Lsh(out, uint(start))
}

// truncRight keeps only the bits at or below start.
func truncRight(word *uint256.Int, start uint8) *uint256.Int {
	if start == 255 {
		return new(uint256.Int).Set(word)
	}
	shift := uint(255 - start)
	out := new(uint256.Int).Lsh(word, shift)
	return out.Rsh(out, shift)
}

// bitAfterTrunc searches for the first set bit at or beyond start in the
// given direction. Returns the bit position and whether any bit was found.
func bitAfterTrunc(word *uint256.Int, start uint16, isUpper bool) (uint8, bool) {
	if word == nil || word.IsZero() {
		return 0, false
	}
	if isUpper {
		if start > 255 {
			return 0, false
		}
		masked := truncLeft(word, uint8(start))
		if masked.IsZero() {
			return 0, false
		}
		return lsbPos(masked), true
	}
	masked := truncRight(word, uint8(start))
	if masked.IsZero() {
		return 0, false
	}
	return msbPos(masked), true
}
