//go:build !nogpu

package gpu

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

var errWrite = errors.New("write rejected")

// faultyQueue wraps a hal.Queue to fail writes or never complete work.
type faultyQueue struct {
	hal.Queue
	failWrites bool
	stall      bool
}

func (q *faultyQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	if q.failWrites {
		return errWrite
	}
	return q.Queue.WriteBuffer(buffer, offset, data)
}

func (q *faultyQueue) PollCompleted() uint64 {
	if q.stall {
		return 0
	}
	return q.Queue.PollCompleted()
}

func newFaultyBackend(t *testing.T, opts compute.OpenOptions) (*Device, *faultyQueue) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	fq := &faultyQueue{Queue: queue}
	d, err := NewDevice(device, fq, opts)
	if err != nil {
		cleanup()
		t.Fatalf("NewDevice failed: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
		cleanup()
	})
	return d, fq
}

func TestDevice_WriteErrors(t *testing.T) {
	d, q := newFaultyBackend(t, compute.OpenOptions{})

	q.failWrites = true
	if _, err := d.Alloc("hist", 16, compute.ReadWrite); !errors.Is(err, compute.ErrAlloc) || !errors.Is(err, errWrite) {
		t.Errorf("Alloc with failing zero-fill = %v, want ErrAlloc", err)
	}
	if n := len(d.live); n != 0 {
		t.Errorf("%d live buffers after failed Alloc", n)
	}

	q.failWrites = false
	in, err := d.Alloc("input", 16, compute.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	hist, err := d.Alloc("hist", 16, compute.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	q.failWrites = true
	if _, err := d.Upload(in, 0, make([]byte, 16)); !errors.Is(err, compute.ErrTransfer) || !errors.Is(err, errWrite) {
		t.Errorf("Upload with failing write = %v, want ErrTransfer", err)
	}

	disp := compute.Dispatch{
		Stage:     compute.StageHistogram,
		WorkItems: 16,
		Params:    compute.Params{PixelCount: 16, Bins: 4},
		Buffers:   []compute.Buffer{in, hist},
	}
	if _, err := d.Dispatch(context.Background(), disp); !errors.Is(err, compute.ErrDispatch) || !errors.Is(err, errWrite) {
		t.Errorf("Dispatch with failing params write = %v, want ErrDispatch", err)
	}
}

func TestDevice_SubmissionTimeout(t *testing.T) {
	d, q := newFaultyBackend(t, compute.OpenOptions{FenceTimeout: time.Millisecond})
	in, err := d.Alloc("input", 16, compute.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	hist, err := d.Alloc("hist", 16, compute.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}

	q.stall = true
	disp := compute.Dispatch{
		Stage:     compute.StageHistogram,
		WorkItems: 16,
		Params:    compute.Params{PixelCount: 16, Bins: 4},
		Buffers:   []compute.Buffer{in, hist},
	}
	if _, err := d.Dispatch(context.Background(), disp); !errors.Is(err, compute.ErrTimeout) {
		t.Errorf("Dispatch on a stalled queue = %v, want ErrTimeout", err)
	}
	if _, err := d.Download(hist, 0, make([]byte, 16)); !errors.Is(err, compute.ErrTimeout) {
		t.Errorf("Download on a stalled queue = %v, want ErrTimeout", err)
	}

	q.stall = false
	if _, err := d.Dispatch(context.Background(), disp); err != nil {
		t.Errorf("Dispatch after recovery = %v", err)
	}
}

func TestDevice_ReadStaging(t *testing.T) {
	d := newNoopBackend(t, compute.OpenOptions{})
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging",
		Size:  8,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer d.device.DestroyBuffer(staging)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := d.queue.WriteBuffer(staging, 0, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(want))
	if err := d.readStaging(staging, got); err != nil {
		t.Fatalf("readStaging() = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("readStaging() = %v, want %v", got, want)
	}
}
