// Package bitstate implements the compressed, bit-packed state encoding and
// the content-addressed dedup map described in spec.md §3-4.1: a
// CompressedState is an immutable bitvector packing every model variable
// plus one reserved bit for the synthetic Absorbing flag, and StateIDMap
// deduplicates those bitvectors into dense StateIDs.
package bitstate

import (
	"github.com/cespare/xxhash/v2"
)

// StateID is a dense, permanent identifier assigned in order of first
// discovery. Index 0 is reserved for the synthetic absorbing state.
type StateID uint32

// AbsorbingID is the reserved id of the single absorbing state.
const AbsorbingID StateID = 0

const bitsPerWord = 64

// CompressedState is an immutable, fixed-width bitvector. Construct with
// NewCompressedState and mutate only via a fresh copy from SetBits (which
// returns a new vector, never mutates in place), so that a CompressedState
// handed to the dedup map can never change underneath it.
type CompressedState struct {
	words    []uint64
	bitWidth int
}

// NewCompressedState allocates a zeroed state of the given bit width.
func NewCompressedState(bitWidth int) CompressedState {
	n := (bitWidth + bitsPerWord - 1) / bitsPerWord
	return CompressedState{words: make([]uint64, n), bitWidth: bitWidth}
}

// BitWidth returns the number of meaningful bits in the vector.
func (s CompressedState) BitWidth() int { return s.bitWidth }

// GetBits reads a width-bit unsigned value starting at bit offset.
// width must be <= 64 and offset+width must be <= BitWidth().
func (s CompressedState) GetBits(offset, width int) uint64 {
	var result uint64
	var written int
	for written < width {
		wordIdx := (offset + written) / bitsPerWord
		bitIdx := (offset + written) % bitsPerWord
		avail := bitsPerWord - bitIdx
		take := width - written
		if take > avail {
			take = avail
		}
		mask := uint64(1)<<uint(take) - 1
		if take == bitsPerWord {
			mask = ^uint64(0)
		}
		chunk := (s.words[wordIdx] >> uint(bitIdx)) & mask
		result |= chunk << uint(written)
		written += take
	}
	return result
}

// SetBits returns a new CompressedState equal to s except that the
// width-bit field at offset now holds value. s is never mutated.
func (s CompressedState) SetBits(offset, width int, value uint64) CompressedState {
	out := CompressedState{words: append([]uint64(nil), s.words...), bitWidth: s.bitWidth}
	var written int
	for written < width {
		wordIdx := (offset + written) / bitsPerWord
		bitIdx := (offset + written) % bitsPerWord
		avail := bitsPerWord - bitIdx
		take := width - written
		if take > avail {
			take = avail
		}
		mask := uint64(1)<<uint(take) - 1
		if take == bitsPerWord {
			mask = ^uint64(0)
		}
		chunk := (value >> uint(written)) & mask
		out.words[wordIdx] = (out.words[wordIdx] &^ (mask << uint(bitIdx))) | (chunk << uint(bitIdx))
		written += take
	}
	return out
}

// Equal reports bitvector equality.
func (s CompressedState) Equal(other CompressedState) bool {
	if s.bitWidth != other.bitWidth || len(s.words) != len(other.words) {
		return false
	}
	for i := range s.words {
		if s.words[i] != other.words[i] {
			return false
		}
	}
	return true
}

// Hash returns a stable 64-bit hash of the full bitvector, used by
// StateIDMap for O(1) expected dedup lookups.
func (s CompressedState) Hash() uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	for _, w := range s.words {
		for i := 0; i < 8; i++ {
			buf[i] = byte(w >> uint(8*i))
		}
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}

// HashString renders the hash as a hex string, used as the rendezvous-hash
// key in the threaded variant (internal/threaded) where a comparable string
// key is more convenient than a raw uint64.
func (s CompressedState) HashString() string {
	const hexDigits = "0123456789abcdef"
	h := s.Hash()
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}

// Clone returns an independent copy of s.
func (s CompressedState) Clone() CompressedState {
	return CompressedState{words: append([]uint64(nil), s.words...), bitWidth: s.bitWidth}
}
