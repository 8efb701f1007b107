package compute

import (
	"encoding/binary"
	"math/bits"
)

// MaxBins is the largest supported bin count (one bin per 8-bit level).
const MaxBins = 256

// MaxLocalSize is the largest work-group size every platform accepts.
const MaxLocalSize = 256

// MaxLevel is the largest output intensity.
const MaxLevel = 255

// WordSize is the size in bytes of one device word.
const WordSize = 4

// WordCount returns the number of 32-bit words needed to hold size bytes.
func WordCount(size uint64) uint64 {
	return (size + WordSize - 1) / WordSize
}

// AlignedSize rounds size up to a whole number of words, with a minimum of
// one word so that empty buffers are still valid bindings.
func AlignedSize(size uint64) uint64 {
	n := WordCount(size) * WordSize
	if n == 0 {
		n = WordSize
	}
	return n
}

// BinIndex returns the bin of a pixel of intensity v for a histogram with
// bins bins. Intensities past the last bin are clamped into it.
func BinIndex(v uint8, bins uint32) uint32 {
	b := uint32(v)
	if b >= bins {
		return bins - 1
	}
	return b
}

// Level returns the equalized output level of a bin whose cumulative count
// is cum, for an image of n pixels and bins bins:
//
//	min(floor(cum * bins / n), 255)
//
// The division truncates. n must be non-zero.
func Level(cum, n, bins uint32) uint32 {
	v := uint64(cum) * uint64(bins) / uint64(n)
	if v > MaxLevel {
		return MaxLevel
	}
	return uint32(v)
}

// ScanSteps returns the number of Hillis-Steele steps for bins bins:
// ceil(log2(bins)), at least one so that a single bin is still copied into
// the cumulative buffer.
func ScanSteps(bins uint32) int {
	if bins <= 1 {
		return 1
	}
	return bits.Len32(bins - 1)
}

// ScanTarget returns which of the two scan arrays step s writes to:
// 0 for the cumulative array, 1 for the scratch array. The parity is chosen
// so that the final step always lands in the cumulative array.
//
// Step 0 reads the frequency histogram; step s > 0 reads the array written
// by step s-1.
func ScanTarget(step, steps int) int {
	return (steps - 1 - step) % 2
}

// ScanStride returns the stride of scan step s.
func ScanStride(step int) uint32 {
	return 1 << uint(step)
}

// PackPixels packs 8-bit samples into little-endian device words.
// The result length is AlignedSize(len(pix)).
func PackPixels(pix []byte) []byte {
	out := make([]byte, AlignedSize(uint64(len(pix))))
	copy(out, pix)
	return out
}

// PixelAt extracts sample i from packed words.
func PixelAt(words []uint32, i uint32) uint8 {
	return uint8(words[i>>2] >> ((i & 3) * 8))
}

// DecodeCounters deserializes little-endian words into counters.
// Trailing bytes that do not form a whole word are ignored.
func DecodeCounters(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/WordSize)
	le := binary.LittleEndian
	for i := range out {
		out[i] = le.Uint32(buf[i*WordSize:])
	}
	return out
}

// GroupCount returns ceil(items / local), the number of work groups needed to
// cover items work items.
func GroupCount(items, local uint32) uint32 {
	if items == 0 || local == 0 {
		return 0
	}
	return (items + local - 1) / local
}
