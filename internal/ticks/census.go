package ticks

import (
	"github.com/holiman/uint256"
)

const (
	// SentinelLow and SentinelHigh are the int24 infinities returned by
	// SeekMezzSpill when no bookmarked tick exists in a direction.
	SentinelLow  = int32(-8388608)
	SentinelHigh = int32(8388607)
)

// Census indexes the bookmarked ticks of a single pool in a three-layer
// recursive bitmap. The terminus layer holds one 256-bit word per 8-bit
// tick neighborhood; the mezzanine layer holds one word per lobby byte with
// a bit for every terminus word that has at least one set bit. The lobby
// layer is never materialized: a mezzanine word's presence in the map is
// its lobby bit.
type Census struct {
	terminus  map[int16]*uint256.Int
	mezzanine map[int8]*uint256.Int
}

func NewCensus() *Census {
	return &Census{
		terminus:  make(map[int16]*uint256.Int),
		mezzanine: make(map[int8]*uint256.Int),
	}
}

// Clone deep-copies the census for transactional snapshots.
func (c *Census) Clone() *Census {
	out := NewCensus()
	for k, v := range c.terminus {
		out.terminus[k] = new(uint256.Int).Set(v)
	}
	for k, v := range c.mezzanine {
		out.mezzanine[k] = new(uint256.Int).Set(v)
	}
	return out
}

// BookmarkTick marks a tick as active across the terminus and mezzanine
// layers. Idempotent.
func (c *Census) BookmarkTick(tick int32) {
	mezz := mezzKey(tick)
	word, ok := c.terminus[mezz]
	if !ok {
		word = new(uint256.Int)
		c.terminus[mezz] = word
	}
	setBit(word, termBit(tick))

	lobby := lobbyKey(tick)
	mezzWord, ok := c.mezzanine[lobby]
	if !ok {
		mezzWord = new(uint256.Int)
		c.mezzanine[lobby] = mezzWord
	}
	setBit(mezzWord, mezzBit(tick))
}

// ForgetTick clears a tick's presence bit. The mezzanine bit only cascades
// off once the terminus word is fully zero. Idempotent.
func (c *Census) ForgetTick(tick int32) {
	mezz := mezzKey(tick)
	word, ok := c.terminus[mezz]
	if !ok {
		return
	}
	clearBit(word, termBit(tick))
	if !word.IsZero() {
		return
	}
	delete(c.terminus, mezz)

	lobby := lobbyKey(tick)
	mezzWord, ok := c.mezzanine[lobby]
	if !ok {
		return
	}
	clearBit(mezzWord, mezzBit(tick))
	if mezzWord.IsZero() {
		delete(c.mezzanine, lobby)
	}
}

// HasBookmark reports whether a tick is marked in the census.
func (c *Census) HasBookmark(tick int32) bool {
	word, ok := c.terminus[mezzKey(tick)]
	if !ok {
		return false
	}
	return hasBit(word, termBit(tick))
}

// PinBitmap finds the nearest bookmarked tick in the given direction,
// looking only at the terminus word already containing startTick. The upper
// search starts one past the current bit because a bump activates when the
// price enters a tick from below; the lower search is inclusive of the
// current bit. When no bit exists in the local word, returns the edge of
// the neighborhood with isSpill set.
func (c *Census) PinBitmap(isUpper bool, startTick int32) (int32, bool) {
	mezz := mezzKey(startTick)
	word := c.terminus[mezz]

	shift := uint16(termBit(startTick))
	if isUpper {
		shift++
	}

	bit, found := bitAfterTrunc(word, shift, isUpper)
	if found {
		return weldMezzTerm(mezz, bit), false
	}

	if isUpper {
		return weldMezzTerm(mezz+1, 0), true
	}
	return weldMezzTerm(mezz, 0), true
}

// SeekMezzSpill escalates a spilled bitmap search past the local terminus
// neighborhood: first the adjacent terminus word, then the rest of the
// current mezzanine word, then sibling mezzanine words outward at the lobby
// layer. Returns the int24 sentinel when no bit is set anywhere in the
// direction. The upper seek is inclusive of borderTick, the lower seek
// strictly below it.
func (c *Census) SeekMezzSpill(borderTick int32, isUpper bool) int32 {
	target := borderTick
	if !isUpper {
		if target == SentinelLow {
			return SentinelLow
		}
		target--
	} else if target == SentinelHigh {
		return SentinelHigh
	}

	if tick, ok := c.seekAtTerm(target, isUpper); ok {
		return tick
	}
	if tick, ok := c.seekAtMezz(target, isUpper); ok {
		return tick
	}
	return c.seekOverLobby(target, isUpper)
}

// seekAtTerm checks the terminus word containing the target tick.
func (c *Census) seekAtTerm(target int32, isUpper bool) (int32, bool) {
	mezz := mezzKey(target)
	bit, found := bitAfterTrunc(c.terminus[mezz], uint16(termBit(target)), isUpper)
	if !found {
		return 0, false
	}
	return weldMezzTerm(mezz, bit), true
}

// seekAtMezz checks the remaining terminus neighborhoods in the target's
// mezzanine word, excluding the neighborhood already covered by seekAtTerm.
func (c *Census) seekAtMezz(target int32, isUpper bool) (int32, bool) {
	lobby := lobbyKey(target)
	shift := uint16(mezzBit(target))
	if isUpper {
		shift++
	} else {
		if shift == 0 {
			return 0, false
		}
		shift--
	}

	bit, found := bitAfterTrunc(c.mezzanine[lobby], shift, isUpper)
	if !found {
		return 0, false
	}
	return c.firstInTerm(weldLobbyMezz(lobby, bit), isUpper), true
}

// seekOverLobby scans sibling mezzanine words beyond the target's lobby
// byte, nearest first. The lobby layer is at most 256 rows, bounding the
// scan.
func (c *Census) seekOverLobby(target int32, isUpper bool) int32 {
	lobby := int16(lobbyKey(target))
	if isUpper {
		for row := lobby + 1; row <= 127; row++ {
			if tick, ok := c.firstInMezz(int8(row), isUpper); ok {
				return tick
			}
		}
		return SentinelHigh
	}
	for row := lobby - 1; row >= -128; row-- {
		if tick, ok := c.firstInMezz(int8(row), isUpper); ok {
			return tick
		}
	}
	return SentinelLow
}

// firstInMezz finds the directional extreme bookmarked tick in a lobby row.
func (c *Census) firstInMezz(lobby int8, isUpper bool) (int32, bool) {
	word, ok := c.mezzanine[lobby]
	if !ok || word.IsZero() {
		return 0, false
	}
	var bit uint8
	if isUpper {
		bit = lsbPos(word)
	} else {
		bit = msbPos(word)
	}
	return c.firstInTerm(weldLobbyMezz(lobby, bit), isUpper), true
}

// firstInTerm finds the directional extreme bit in a terminus word known to
// be nonzero by the mezzanine invariant.
func (c *Census) firstInTerm(mezz int16, isUpper bool) int32 {
	word := c.terminus[mezz]
	var bit uint8
	if isUpper {
		bit = lsbPos(word)
	} else {
		bit = msbPos(word)
	}
	return weldMezzTerm(mezz, bit)
}
