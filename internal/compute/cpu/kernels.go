package cpu

import (
	"sync/atomic"

	"github.com/gogpu/histeq/internal/compute"
)

// kernelArgs carries the bound buffers and scalars of one dispatch.
// Buffers are in compute.Stage.Bindings order.
type kernelArgs struct {
	params compute.Params
	items  uint32
	local  uint32
	bufs   []*buffer
}

// histogram: pixels(r), histogram(w).
func (k kernelArgs) histogram(i uint32) {
	pix, hist := k.bufs[0].words, k.bufs[1].words
	v := compute.PixelAt(pix, i)
	atomic.AddUint32(&hist[compute.BinIndex(v, k.params.Bins)], 1)
}

// scanStep computes one Hillis-Steele element: dst[i] = src[i] + src[i-stride].
func scanStep(src, dst []uint32, i, stride uint32) {
	if i >= stride {
		dst[i] = src[i] + src[i-stride]
	} else {
		dst[i] = src[i]
	}
}

// normalize: cumulative(r), lut(w).
func (k kernelArgs) normalize(i uint32) {
	cum, lut := k.bufs[0].words, k.bufs[1].words
	lut[i] = compute.Level(cum[i], k.params.PixelCount, k.params.Bins)
}

// backProject: pixels(r), lut(r), output(w).
// Four samples share an output word, so each is merged with an atomic OR
// into the zero-filled output.
func (k kernelArgs) backProject(i uint32) {
	pix, lut, out := k.bufs[0].words, k.bufs[1].words, k.bufs[2].words
	v := compute.PixelAt(pix, i)
	level := lut[compute.BinIndex(v, k.params.Bins)] & 0xff
	atomic.OrUint32(&out[i>>2], level<<((i&3)*8))
}
