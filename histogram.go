package histeq

import (
	"fmt"

	"github.com/gogpu/histeq/internal/compute"
)

// Histogram holds one 32-bit counter per bin.
type Histogram []uint32

// Sum returns the total of all counters.
func (h Histogram) Sum() uint64 {
	var s uint64
	for _, c := range h {
		s += uint64(c)
	}
	return s
}

// Last returns the final counter, or 0 for an empty histogram.
func (h Histogram) Last() uint32 {
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1]
}

// LookupTable maps a bin to its equalized output level.
type LookupTable []uint8

// Apply returns the output level for a pixel of intensity v.
func (t LookupTable) Apply(v uint8) uint8 {
	return t[compute.BinIndex(v, uint32(len(t)))]
}

// The functions below are the sequential host forms of the four stages.
// They define the results every backend must reproduce and back
// verification mode.

// BuildHistogram counts pix into bins bins. Intensities at or above bins
// fall into the last bin.
func BuildHistogram(pix []byte, bins int) Histogram {
	h := make(Histogram, bins)
	for _, v := range pix {
		h[compute.BinIndex(v, uint32(bins))]++
	}
	return h
}

// Cumulate returns the inclusive prefix sum of h.
func Cumulate(h Histogram) Histogram {
	cum := make(Histogram, len(h))
	var acc uint32
	for i, c := range h {
		acc += c
		cum[i] = acc
	}
	return cum
}

// Normalize scales a cumulative histogram of an n-pixel image into a
// lookup table: min(floor(cum[i] * len(cum) / n), 255).
func Normalize(cum Histogram, n uint32) (LookupTable, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: normalize: zero pixel count", ErrInput)
	}
	lut := make(LookupTable, len(cum))
	for i, c := range cum {
		lut[i] = uint8(compute.Level(c, n, uint32(len(cum))))
	}
	return lut, nil
}

// BackProject maps every pixel through lut.
func BackProject(pix []byte, lut LookupTable) []byte {
	out := make([]byte, len(pix))
	for i, v := range pix {
		out[i] = lut.Apply(v)
	}
	return out
}

// reference holds the host results for one image.
type reference struct {
	freq, cum Histogram
	lut       LookupTable
	out       []byte
}

func hostReference(pix []byte, bins int) (*reference, error) {
	r := &reference{freq: BuildHistogram(pix, bins)}
	r.cum = Cumulate(r.freq)
	lut, err := Normalize(r.cum, uint32(len(pix)))
	if err != nil {
		return nil, err
	}
	r.lut = lut
	r.out = BackProject(pix, lut)
	return r, nil
}
