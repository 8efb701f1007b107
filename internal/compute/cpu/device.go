package cpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/histeq/internal/compute"
	"github.com/gogpu/histeq/internal/parallel"
)

// buffer is host memory laid out as device words.
type buffer struct {
	label string
	size  uint64
	mode  compute.AccessMode
	words []uint32
	owner *Device
}

func (b *buffer) Label() string            { return b.label }
func (b *buffer) Size() uint64             { return b.size }
func (b *buffer) Mode() compute.AccessMode { return b.mode }

// Device is a compute.Backend running kernels on a worker pool.
//
// Device is not safe for concurrent use.
type Device struct {
	info      compute.DeviceInfo
	pool      *parallel.WorkerPool
	localSize uint32
	live      map[*buffer]struct{}
	closed    bool
}

// NewDevice creates a host device. opts.Workers bounds the pool size and
// opts.LocalSize sets the default work-group size.
func NewDevice(opts compute.OpenOptions) (*Device, error) {
	local := opts.LocalSize
	if local == 0 {
		local = DefaultLocalSize
	}
	if local > MaxLocalSize {
		return nil, fmt.Errorf("%w: local size %d exceeds %d", compute.ErrInvalidDispatch, local, MaxLocalSize)
	}

	d := &Device{
		info:      deviceInfo(),
		pool:      parallel.NewWorkerPool(opts.Workers),
		localSize: local,
		live:      make(map[*buffer]struct{}),
	}
	slogger().Debug("cpu: device opened",
		"workers", d.pool.Workers(),
		"local_size", local,
		"features", d.info.Features)
	return d, nil
}

// Info describes the host device.
func (d *Device) Info() compute.DeviceInfo { return d.info }

// Alloc creates a zero-filled buffer.
func (d *Device) Alloc(label string, size uint64, mode compute.AccessMode) (compute.Buffer, error) {
	if d.closed {
		return nil, compute.ErrClosed
	}
	words := compute.AlignedSize(size) / compute.WordSize
	b := &buffer{
		label: label,
		size:  size,
		mode:  mode,
		words: make([]uint32, words),
		owner: d,
	}
	d.live[b] = struct{}{}
	return b, nil
}

// own returns the concrete buffer when buf was allocated by d and is live.
func (d *Device) own(buf compute.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b.owner != d {
		return nil, fmt.Errorf("buffer %v does not belong to this device", buf)
	}
	if _, live := d.live[b]; !live {
		return nil, fmt.Errorf("buffer %q already released", b.label)
	}
	return b, nil
}

// Upload copies data into buf at byte offset.
func (d *Device) Upload(buf compute.Buffer, offset uint64, data []byte) (compute.Event, error) {
	ev := compute.Event{Label: "upload", Kind: compute.EventUpload, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	b, err := d.own(buf)
	if err != nil {
		return ev, fmt.Errorf("%w: %w", compute.ErrTransfer, err)
	}
	if err := checkRange(b, offset, len(data)); err != nil {
		return ev, err
	}

	for i, v := range data {
		pos := offset + uint64(i)
		shift := (pos & 3) * 8
		w := &b.words[pos>>2]
		*w = *w&^(0xff<<shift) | uint32(v)<<shift
	}
	ev.Label = "upload " + b.label
	ev.End = time.Now()
	return ev, nil
}

// Download copies len(dst) bytes of buf starting at offset into dst.
func (d *Device) Download(buf compute.Buffer, offset uint64, dst []byte) (compute.Event, error) {
	ev := compute.Event{Label: "download", Kind: compute.EventDownload, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	b, err := d.own(buf)
	if err != nil {
		return ev, fmt.Errorf("%w: %w", compute.ErrTransfer, err)
	}
	if err := checkRange(b, offset, len(dst)); err != nil {
		return ev, err
	}

	for i := range dst {
		pos := offset + uint64(i)
		dst[i] = byte(b.words[pos>>2] >> ((pos & 3) * 8))
	}
	ev.Label = "download " + b.label
	ev.End = time.Now()
	return ev, nil
}

func checkRange(b *buffer, offset uint64, n int) error {
	limit := uint64(len(b.words)) * compute.WordSize
	if offset > limit || uint64(n) > limit-offset {
		return fmt.Errorf("%w: %d bytes at offset %d exceed buffer %q (%d bytes)",
			compute.ErrTransfer, n, offset, b.label, limit)
	}
	return nil
}

// Dispatch validates d, runs the stage on the worker pool and waits for it.
func (d *Device) Dispatch(ctx context.Context, disp compute.Dispatch) (compute.Event, error) {
	ev := compute.Event{Label: disp.Stage.String(), Kind: compute.EventKernel, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	if err := disp.Validate(); err != nil {
		return ev, err
	}

	bufs := make([]*buffer, len(disp.Buffers))
	for i, buf := range disp.Buffers {
		b, err := d.own(buf)
		if err != nil {
			return ev, fmt.Errorf("%w: %s: %w", compute.ErrInvalidDispatch, disp.Stage, err)
		}
		bufs[i] = b
	}

	local := disp.LocalSize
	if local == 0 {
		local = d.localSize
	}
	if local > MaxLocalSize {
		return ev, fmt.Errorf("%w: %s: local size %d exceeds %d",
			compute.ErrInvalidDispatch, disp.Stage, local, MaxLocalSize)
	}

	k := kernelArgs{params: disp.Params, items: disp.WorkItems, local: local, bufs: bufs}
	var err error
	switch disp.Stage {
	case compute.StageHistogram:
		err = d.run(ctx, k, k.histogram)
	case compute.StageScan:
		err = d.scan(ctx, k)
	case compute.StageNormalize:
		err = d.run(ctx, k, k.normalize)
	case compute.StageBackProject:
		err = d.run(ctx, k, k.backProject)
	}
	ev.End = time.Now()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ev, err
		}
		return ev, fmt.Errorf("%w: %s: %w", compute.ErrDispatch, disp.Stage, err)
	}

	slogger().Debug("cpu: stage complete",
		"stage", disp.Stage.String(),
		"items", disp.WorkItems,
		"local_size", local,
		"elapsed", ev.Duration())
	return ev, nil
}

// run executes item for every work item of k, grouped by local size.
func (d *Device) run(ctx context.Context, k kernelArgs, item func(i uint32)) error {
	groups := compute.GroupCount(k.items, k.local)
	return d.pool.Run(ctx, int(groups), func(g int) {
		lo := uint32(g) * k.local
		hi := min(lo+k.local, k.items)
		for i := lo; i < hi; i++ {
			item(i)
		}
	})
}

// scan runs the Hillis-Steele steps, one pool run per step.
func (d *Device) scan(ctx context.Context, k kernelArgs) error {
	hist, cum, scratch := k.bufs[0].words, k.bufs[1].words, k.bufs[2].words
	targets := [2][]uint32{cum, scratch}

	steps := compute.ScanSteps(k.params.Bins)
	for s := range steps {
		src := hist
		if s > 0 {
			src = targets[compute.ScanTarget(s-1, steps)]
		}
		dst := targets[compute.ScanTarget(s, steps)]
		stride := compute.ScanStride(s)

		if err := d.run(ctx, k, func(i uint32) {
			scanStep(src, dst, i, stride)
		}); err != nil {
			return fmt.Errorf("step %d: %w", s, err)
		}
	}
	return nil
}

// Release frees buf. Unknown or released buffers are ignored.
func (d *Device) Release(buf compute.Buffer) {
	if b, ok := buf.(*buffer); ok && b.owner == d {
		delete(d.live, b)
		b.words = nil
	}
}

// Close stops the worker pool and frees every live buffer.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if n := len(d.live); n > 0 {
		slogger().Warn("cpu: closing device with live buffers", "count", n)
	}
	for b := range d.live {
		b.words = nil
	}
	clear(d.live)
	d.pool.Close()
	return nil
}
