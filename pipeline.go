package histeq

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/histeq/internal/compute"
)

// Result is the outcome of a successful run.
type Result struct {
	// Image is the equalized image, same size as the input.
	Image *Image

	// Frequency is the per-bin pixel count.
	Frequency Histogram

	// Cumulative is the inclusive prefix sum of Frequency.
	Cumulative Histogram

	// LookupTable maps each bin to its output level.
	LookupTable LookupTable

	// Device is the device the run executed on.
	Device DeviceInfo

	Profile Profile
}

// Equalizer runs histogram equalization on one compute device.
//
// An Equalizer serializes its runs; use one per goroutine for parallel work
// on several devices.
type Equalizer struct {
	mu      sync.Mutex
	cfg     Config
	backend Backend
	owned   bool
	hook    StateHook
	closed  bool
}

// NewEqualizer opens the device selected by the options.
//
// Without WithBackend, the device is opened through the platform registry:
// the named platform, or with an empty name the first platform in priority
// order (gpu, cpu) whose device opens.
func NewEqualizer(opts ...Option) (*Equalizer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, newStageError(StateIdle, err)
	}

	e := &Equalizer{cfg: o.cfg, backend: o.backend, hook: o.hook}
	if e.backend == nil {
		b, err := compute.Open(o.cfg.Platform, o.cfg.Device, o.cfg.openOptions(), func(p compute.Platform, err error) {
			Logger().Warn("histeq: platform unavailable, trying next", "platform", p.Name(), "err", err)
		})
		if err != nil {
			return nil, newStageError(StateIdle, err)
		}
		e.backend = b
		e.owned = true
	}

	Logger().Info("histeq: device selected",
		"device", e.backend.Info().String(),
		"bins", e.cfg.Bins)
	return e, nil
}

// Config returns the configuration the Equalizer was created with.
func (e *Equalizer) Config() Config { return e.cfg }

// Device describes the device runs execute on.
func (e *Equalizer) Device() DeviceInfo { return e.backend.Info() }

// Close closes the device unless it was supplied with WithBackend.
// Close is safe to call multiple times.
func (e *Equalizer) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.owned {
		return e.backend.Close()
	}
	return nil
}

// Equalize runs the four stages on img and returns the equalized image with
// the intermediate histograms. img is not modified.
//
// Any failure releases the run's device buffers and returns a *StageError.
// ctx is checked at every stage boundary.
func (e *Equalizer) Equalize(ctx context.Context, img *Image) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &run{
		ctx:     ctx,
		backend: e.backend,
		hook:    e.hook,
		bins:    uint32(e.cfg.Bins),
		state:   StateIdle,
		start:   time.Now(),
	}
	if e.closed {
		return nil, r.fail(compute.ErrClosed)
	}
	if err := img.Validate(); err != nil {
		return nil, r.fail(err)
	}
	r.img = img
	r.n = uint32(img.Len())

	res, err := r.execute()
	if err != nil {
		return nil, r.fail(err)
	}
	if e.cfg.Verify {
		if err := verify(res, img, e.cfg.Bins); err != nil {
			return nil, r.fail(err)
		}
	}
	r.release()
	r.transition(StateDone)

	res.Device = e.backend.Info()
	res.Profile.Total = time.Since(r.start)
	Logger().Info("histeq: run complete",
		"pixels", r.n,
		"bins", r.bins,
		"kernel", res.Profile.Kernel(),
		"total", res.Profile.Total)
	return res, nil
}

// run is the state of one Equalize call.
type run struct {
	ctx     context.Context
	backend Backend
	hook    StateHook
	img     *Image
	n       uint32
	bins    uint32
	state   State
	start   time.Time
	profile Profile

	// bufs lists every allocated buffer for release.
	bufs []compute.Buffer

	pixels, hist, cum, scratch, lut, output compute.Buffer
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	Logger().Debug("histeq: state transition", "from", from.String(), "to", to.String())
	if r.hook != nil {
		r.hook(from, to)
	}
}

// fail releases every buffer, moves to StateFailed and wraps err with the
// state it happened in.
func (r *run) fail(err error) error {
	at := r.state
	r.release()
	r.transition(StateFailed)
	return newStageError(at, err)
}

func (r *run) release() {
	for _, b := range r.bufs {
		r.backend.Release(b)
	}
	r.bufs = nil
}

func (r *run) alloc(label string, size uint64, mode compute.AccessMode) (compute.Buffer, error) {
	b, err := r.backend.Alloc(label, size, mode)
	if err != nil {
		return nil, err
	}
	r.bufs = append(r.bufs, b)
	return b, nil
}

// allocate creates the run buffers and uploads the image once. The pixel
// buffer is bound read-only by both the histogram and back-projection
// stages.
func (r *run) allocate() error {
	binBytes := uint64(r.bins) * compute.WordSize
	specs := []struct {
		dst   *compute.Buffer
		label string
		size  uint64
		mode  compute.AccessMode
	}{
		{&r.pixels, "pixels", uint64(r.n), compute.ReadOnly},
		{&r.hist, "histogram", binBytes, compute.ReadWrite},
		{&r.cum, "cumulative", binBytes, compute.ReadWrite},
		{&r.scratch, "scratch", binBytes, compute.ReadWrite},
		{&r.lut, "lut", binBytes, compute.ReadWrite},
		{&r.output, "output", uint64(r.n), compute.ReadWrite},
	}
	for _, s := range specs {
		b, err := r.alloc(s.label, s.size, s.mode)
		if err != nil {
			return err
		}
		*s.dst = b
	}

	ev, err := r.backend.Upload(r.pixels, 0, compute.PackPixels(r.img.Pix))
	if err != nil {
		return err
	}
	r.profile.record(ev)

	Logger().Debug("histeq: buffers allocated",
		"pixels", r.n,
		"pixel_bytes", compute.AlignedSize(uint64(r.n)),
		"bin_bytes", binBytes)
	return nil
}

// dispatch runs one stage and advances to next once the device reports
// completion.
func (r *run) dispatch(stage compute.Stage, next State, bufs ...compute.Buffer) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	items := r.n
	if stage == compute.StageScan || stage == compute.StageNormalize {
		items = r.bins
	}
	ev, err := r.backend.Dispatch(r.ctx, compute.Dispatch{
		Stage:     stage,
		WorkItems: items,
		Params:    compute.Params{PixelCount: r.n, Bins: r.bins},
		Buffers:   bufs,
	})
	if err != nil {
		return err
	}
	r.profile.recordStage(stage, ev)
	r.transition(next)
	return nil
}

// download reads size bytes from buf. Transfers are word-sized on every
// backend, so the read is rounded up and trimmed.
func (r *run) download(buf compute.Buffer, size uint64) ([]byte, error) {
	dst := make([]byte, compute.AlignedSize(size))
	ev, err := r.backend.Download(buf, 0, dst)
	if err != nil {
		return nil, err
	}
	r.profile.record(ev)
	return dst[:size], nil
}

func (r *run) downloadCounters(buf compute.Buffer) (Histogram, error) {
	raw, err := r.download(buf, uint64(r.bins)*compute.WordSize)
	if err != nil {
		return nil, err
	}
	return Histogram(compute.DecodeCounters(raw)), nil
}

func (r *run) execute() (*Result, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.allocate(); err != nil {
		return nil, err
	}
	r.transition(StateBuffersAllocated)

	if err := r.dispatch(compute.StageHistogram, StateHistogramBuilt, r.pixels, r.hist); err != nil {
		return nil, err
	}
	if err := r.dispatch(compute.StageScan, StateScanned, r.hist, r.cum, r.scratch); err != nil {
		return nil, err
	}
	if err := r.dispatch(compute.StageNormalize, StateNormalized, r.cum, r.lut); err != nil {
		return nil, err
	}
	if err := r.dispatch(compute.StageBackProject, StateBackProjected, r.pixels, r.lut, r.output); err != nil {
		return nil, err
	}

	res := &Result{Image: NewImage(r.img.Width, r.img.Height)}
	var err error
	if res.Frequency, err = r.downloadCounters(r.hist); err != nil {
		return nil, err
	}
	if res.Cumulative, err = r.downloadCounters(r.cum); err != nil {
		return nil, err
	}
	levels, err := r.downloadCounters(r.lut)
	if err != nil {
		return nil, err
	}
	res.LookupTable = make(LookupTable, len(levels))
	for i, v := range levels {
		if v > compute.MaxLevel {
			return nil, fmt.Errorf("%w: lut[%d] = %d", compute.ErrDispatch, i, v)
		}
		res.LookupTable[i] = uint8(v)
	}
	out, err := r.download(r.output, uint64(r.n))
	if err != nil {
		return nil, err
	}
	copy(res.Image.Pix, out)

	res.Profile = r.profile
	return res, nil
}

// verify compares device results with the host reference.
func verify(res *Result, img *Image, bins int) error {
	ref, err := hostReference(img.Pix, bins)
	if err != nil {
		return err
	}
	switch {
	case !slices.Equal(res.Frequency, ref.freq):
		return fmt.Errorf("%w: frequency histogram", ErrMismatch)
	case !slices.Equal(res.Cumulative, ref.cum):
		return fmt.Errorf("%w: cumulative histogram", ErrMismatch)
	case !slices.Equal(res.LookupTable, ref.lut):
		return fmt.Errorf("%w: lookup table", ErrMismatch)
	case !bytes.Equal(res.Image.Pix, ref.out):
		return fmt.Errorf("%w: output image", ErrMismatch)
	}
	Logger().Debug("histeq: device results match host reference")
	return nil
}
