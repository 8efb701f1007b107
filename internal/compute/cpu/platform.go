// Package cpu implements the compute platform on host goroutines.
//
// Every stage is executed as work groups of LocalSize work items on an
// internal/parallel worker pool. Atomic operations stand in for device
// atomics and the return of each pool run is the barrier between scan
// steps. The platform exposes exactly one device and is always available,
// which makes it the fallback when no GPU can be opened.
package cpu

import (
	"fmt"
	"log/slog"
	"runtime"

	xcpu "golang.org/x/sys/cpu"

	"github.com/gogpu/histeq/internal/compute"
)

// DefaultLocalSize is the work-group size used when none is requested.
const DefaultLocalSize = 256

// MaxLocalSize is the largest accepted work-group size.
const MaxLocalSize = 1024

func init() {
	compute.Register(Platform{})
}

// Platform is the host CPU compute platform.
type Platform struct{}

// Name returns compute.PlatformCPU.
func (Platform) Name() string { return compute.PlatformCPU }

// SetLogger sets the logger for the CPU backend.
func (Platform) SetLogger(l *slog.Logger) { setLogger(l) }

// Devices returns the single host device.
func (Platform) Devices() ([]compute.DeviceInfo, error) {
	return []compute.DeviceInfo{deviceInfo()}, nil
}

// Open opens the host device. Only index 0 exists.
func (Platform) Open(index int, opts compute.OpenOptions) (compute.Backend, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: cpu has 1 device, got index %d", compute.ErrDeviceIndex, index)
	}
	return NewDevice(opts)
}

func deviceInfo() compute.DeviceInfo {
	return compute.DeviceInfo{
		Platform:     compute.PlatformCPU,
		Index:        0,
		Name:         fmt.Sprintf("%s/%s host", runtime.GOOS, runtime.GOARCH),
		Type:         "cpu",
		ComputeUnits: runtime.NumCPU(),
		MaxLocalSize: MaxLocalSize,
		Features:     cpuFeatures(),
	}
}

// cpuFeatures lists the instruction set extensions detected at startup.
func cpuFeatures() []string {
	var f []string
	add := func(ok bool, name string) {
		if ok {
			f = append(f, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(xcpu.X86.HasSSE42, "sse4.2")
		add(xcpu.X86.HasAVX2, "avx2")
		add(xcpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(xcpu.ARM64.HasASIMD, "asimd")
		add(xcpu.ARM64.HasATOMICS, "lse-atomics")
	}
	return f
}
