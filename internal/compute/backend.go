package compute

import (
	"context"
	"fmt"
	"time"
)

// Buffer is a handle to device-resident memory.
//
// Buffers are created by Backend.Alloc and released by Backend.Release.
// A buffer belongs to the backend that created it and must not be passed
// to another backend.
type Buffer interface {
	// Label returns the debug name given at allocation.
	Label() string

	// Size returns the requested size in bytes.
	Size() uint64

	// Mode returns the access mode given at allocation.
	Mode() AccessMode
}

// Params are the scalar arguments of a dispatch, uploaded as the uniform
// block at binding 0 on GPU backends.
type Params struct {
	// PixelCount is the number of samples in pixel buffers.
	PixelCount uint32

	// Bins is the number of histogram bins, 1..256.
	Bins uint32
}

// Dispatch describes one stage execution.
type Dispatch struct {
	// Stage selects the kernel.
	Stage Stage

	// WorkItems is the number of logical work items: PixelCount for
	// histogram and back-projection, Bins for scan and normalize.
	WorkItems uint32

	// LocalSize is the requested work-group size. Zero selects the
	// backend default.
	LocalSize uint32

	// Params are the scalar arguments shared by every work item.
	Params Params

	// Buffers are bound in the order given by Stage.Bindings.
	Buffers []Buffer
}

// EventKind classifies an Event.
type EventKind int

const (
	// EventKernel is a stage dispatch.
	EventKernel EventKind = iota

	// EventUpload is a host-to-device copy.
	EventUpload

	// EventDownload is a device-to-host copy.
	EventDownload
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventKernel:
		return "kernel"
	case EventUpload:
		return "upload"
	case EventDownload:
		return "download"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Event records when a device operation started and completed.
// Timestamps are taken on the host around the blocking call.
type Event struct {
	Label string
	Kind  EventKind
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DeviceInfo describes one device of a platform.
type DeviceInfo struct {
	// Platform is the name of the owning platform.
	Platform string

	// Index is the device position within its platform.
	Index int

	// Name is the human-readable device name.
	Name string

	// Type is a short device class ("discrete-gpu", "cpu", ...).
	Type string

	// ComputeUnits is the number of parallel execution units, when known.
	ComputeUnits int

	// MaxLocalSize is the largest accepted work-group size.
	MaxLocalSize uint32

	// Features lists capabilities relevant to the kernels.
	Features []string
}

// String formats the device for listings.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s #%d: %s (%s)", d.Platform, d.Index, d.Name, d.Type)
}

// OpenOptions tune a backend when it is opened.
type OpenOptions struct {
	// LocalSize is the default work-group size. Zero keeps the backend default.
	LocalSize uint32

	// Workers caps the number of host goroutines (CPU platform).
	// Zero selects GOMAXPROCS.
	Workers int

	// FenceTimeout bounds every device wait (GPU platform).
	// Zero selects the backend default.
	FenceTimeout time.Duration

	// PrecompileShaders compiles WGSL to SPIR-V on the host before creating
	// shader modules (GPU platform).
	PrecompileShaders bool
}

// Backend executes the pipeline stages on one device.
//
// Every method blocks until the device work it issued has completed, so a
// returned Event is a completion point: results are visible to the next
// call. Backends are not safe for concurrent use.
type Backend interface {
	// Info describes the device.
	Info() DeviceInfo

	// Alloc creates a zero-filled buffer of at least size bytes.
	Alloc(label string, size uint64, mode AccessMode) (Buffer, error)

	// Upload copies data into buf at offset.
	Upload(buf Buffer, offset uint64, data []byte) (Event, error)

	// Download copies len(dst) bytes from buf at offset into dst.
	Download(buf Buffer, offset uint64, dst []byte) (Event, error)

	// Dispatch runs a stage and waits for it to complete.
	Dispatch(ctx context.Context, d Dispatch) (Event, error)

	// Release frees a buffer. Releasing nil or an already released buffer
	// is a no-op.
	Release(buf Buffer)

	// Close releases every remaining device resource.
	Close() error
}

// Platform enumerates devices and opens backends on them.
type Platform interface {
	// Name returns the registry name ("gpu", "cpu").
	Name() string

	// Devices lists the devices of the platform.
	Devices() ([]DeviceInfo, error)

	// Open opens the device at index.
	Open(index int, opts OpenOptions) (Backend, error)
}
