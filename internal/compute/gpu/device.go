// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

// DefaultFenceTimeout is the maximum time to wait for GPU work to complete.
const DefaultFenceTimeout = 5 * time.Second

// buffer wraps a hal.Buffer allocated by a Device.
type buffer struct {
	label string
	size  uint64
	alloc uint64 // word-aligned device size
	mode  compute.AccessMode
	raw   hal.Buffer
	owner *Device
}

func (b *buffer) Label() string            { return b.label }
func (b *buffer) Size() uint64             { return b.size }
func (b *buffer) Mode() compute.AccessMode { return b.mode }

// Device is a compute.Backend on a wgpu/hal device.
type Device struct {
	mu sync.Mutex

	// instance is set when the device was opened by Platform.Open.
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// external is true when the hal device belongs to the caller
	// (don't destroy on Close).
	external bool

	info    compute.DeviceInfo
	wgSize  uint32
	timeout time.Duration

	stages [compute.StageCount]stagePipeline
	live   map[*buffer]struct{}
	closed bool
}

// NewDevice builds the stage pipelines on a hal device owned by the caller.
// Close releases the pipelines and buffers but not the device itself.
func NewDevice(device hal.Device, queue hal.Queue, opts compute.OpenOptions) (*Device, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil hal device or queue", compute.ErrNoDevice)
	}
	info := compute.DeviceInfo{
		Platform:     compute.PlatformGPU,
		Name:         "external",
		Type:         "external",
		MaxLocalSize: MaxWGSize,
	}
	return newDevice(device, queue, info, opts)
}

// NewSharedDevice runs the pipeline on the device of a host application.
// The provider must also implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewSharedDevice(provider gpucontext.DeviceProvider, opts compute.OpenOptions) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", compute.ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", compute.ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", compute.ErrNoDevice)
	}

	d, err := NewDevice(device, queue, opts)
	if err != nil {
		return nil, err
	}
	d.info.Name = "shared"
	slogger().Info("gpu: using shared device", "surface_format", provider.SurfaceFormat())
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, info compute.DeviceInfo, opts compute.OpenOptions) (*Device, error) {
	wg := opts.LocalSize
	if wg == 0 {
		wg = DefaultWGSize
	}
	if wg > MaxWGSize {
		return nil, fmt.Errorf("%w: local size %d exceeds %d", compute.ErrInvalidDispatch, wg, MaxWGSize)
	}
	timeout := opts.FenceTimeout
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}

	d := &Device{
		device:   device,
		queue:    queue,
		external: true,
		info:     info,
		wgSize:   wg,
		timeout:  timeout,
		live:     make(map[*buffer]struct{}),
	}
	if err := d.createPipelines(opts.PrecompileShaders); err != nil {
		return nil, err
	}
	return d, nil
}

// Info describes the adapter.
func (d *Device) Info() compute.DeviceInfo { return d.info }

// WorkgroupSize returns the workgroup size the pipelines were built with.
func (d *Device) WorkgroupSize() uint32 { return d.wgSize }

// Alloc creates a zero-filled storage buffer.
func (d *Device) Alloc(label string, size uint64, mode compute.AccessMode) (compute.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, compute.ErrClosed
	}

	alloc := compute.AlignedSize(size)
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alloc,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %s buffer (%d bytes): %w", compute.ErrAlloc, label, alloc, err)
	}

	// Histogram and output buffers rely on zero contents (atomics).
	if err := d.queue.WriteBuffer(raw, 0, make([]byte, alloc)); err != nil {
		d.device.DestroyBuffer(raw)
		return nil, fmt.Errorf("%w: zero-fill %s buffer: %w", compute.ErrAlloc, label, err)
	}

	b := &buffer{label: label, size: size, alloc: alloc, mode: mode, raw: raw, owner: d}
	d.live[b] = struct{}{}

	slogger().Debug("gpu: buffer allocated",
		"label", label,
		"bytes", alloc,
		"mode", mode.String())
	return b, nil
}

// own returns the concrete buffer when buf was allocated by d and is live.
// Callers hold d.mu.
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

// checkTransfer verifies a word-aligned range inside b.
func checkTransfer(b *buffer, offset uint64, n int) error {
	if offset%compute.WordSize != 0 || uint64(n)%compute.WordSize != 0 {
		return fmt.Errorf("%w: %d bytes at offset %d of %q are not word aligned",
			compute.ErrTransfer, n, offset, b.label)
	}
	if offset > b.alloc || uint64(n) > b.alloc-offset {
		return fmt.Errorf("%w: %d bytes at offset %d exceed buffer %q (%d bytes)",
			compute.ErrTransfer, n, offset, b.label, b.alloc)
	}
	return nil
}

// Upload writes data into buf through the queue. The write is ordered
// before any later submission on the same queue.
func (d *Device) Upload(buf compute.Buffer, offset uint64, data []byte) (compute.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := compute.Event{Label: "upload", Kind: compute.EventUpload, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	b, err := d.own(buf)
	if err != nil {
		return ev, fmt.Errorf("%w: %w", compute.ErrTransfer, err)
	}
	if err := checkTransfer(b, offset, len(data)); err != nil {
		return ev, err
	}

	if err := d.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return ev, fmt.Errorf("%w: write %s: %w", compute.ErrTransfer, b.label, err)
	}
	ev.Label = "upload " + b.label
	ev.End = time.Now()
	return ev, nil
}

// Download copies len(dst) bytes from buf at offset through a MapRead
// staging buffer and waits for the copy to complete.
func (d *Device) Download(buf compute.Buffer, offset uint64, dst []byte) (compute.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := compute.Event{Label: "download", Kind: compute.EventDownload, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	b, err := d.own(buf)
	if err != nil {
		return ev, fmt.Errorf("%w: %w", compute.ErrTransfer, err)
	}
	if err := checkTransfer(b, offset, len(dst)); err != nil {
		return ev, err
	}
	ev.Label = "download " + b.label
	if len(dst) == 0 {
		ev.End = time.Now()
		return ev, nil
	}

	size := uint64(len(dst))
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return ev, fmt.Errorf("%w: create staging buffer: %w", compute.ErrTransfer, err)
	}
	res := &dispatchResources{device: d.device}
	defer func() {
		if !res.inflight {
			d.device.DestroyBuffer(staging)
		}
	}()
	defer res.cleanup()

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "histeq_readback"})
	if err != nil {
		return ev, fmt.Errorf("%w: create command encoder: %w", compute.ErrTransfer, err)
	}
	if err := encoder.BeginEncoding("histeq_readback"); err != nil {
		return ev, fmt.Errorf("%w: begin encoding: %w", compute.ErrTransfer, err)
	}
	encoder.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return ev, fmt.Errorf("%w: end encoding: %w", compute.ErrTransfer, err)
	}
	res.cmdBuf = cmdBuf

	if err := d.submitAndWait(res); err != nil {
		return ev, err
	}
	if err := d.readStaging(staging, dst); err != nil {
		return ev, fmt.Errorf("%w: readback %s: %w", compute.ErrTransfer, b.label, err)
	}
	ev.End = time.Now()
	return ev, nil
}

// readStaging maps a completed MapRead staging buffer and copies it to dst.
func (d *Device) readStaging(staging hal.Buffer, dst []byte) error {
	size := uint64(len(dst))
	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := d.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// Release destroys buf. Unknown or released buffers are ignored.
func (d *Device) Release(buf compute.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := buf.(*buffer)
	if !ok || b.owner != d {
		return
	}
	if _, live := d.live[b]; !live {
		return
	}
	delete(d.live, b)
	d.device.DestroyBuffer(b.raw)
	b.raw = nil
}

// Close destroys every live buffer and the stage pipelines. Devices opened
// by Platform.Open also destroy the hal device and instance.
// Close is safe to call multiple times.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if n := len(d.live); n > 0 {
		slogger().Warn("gpu: closing device with live buffers", "count", n)
	}
	for b := range d.live {
		d.device.DestroyBuffer(b.raw)
		b.raw = nil
	}
	clear(d.live)
	d.destroyPipelines(compute.StageCount)

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	return nil
}
