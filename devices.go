package histeq

import (
	"strconv"

	"github.com/gogpu/histeq/internal/compute"

	// CPU platform is always available.
	_ "github.com/gogpu/histeq/internal/compute/cpu"
)

type (
	// Backend executes the pipeline stages on one device.
	Backend = compute.Backend

	// DeviceInfo describes one device of a platform.
	DeviceInfo = compute.DeviceInfo

	// Event records the host-side start and end of one device operation.
	Event = compute.Event
)

// PlatformDevices is one entry of ListDevices.
type PlatformDevices struct {
	// Platform is the registry name.
	Platform string

	// Devices lists the devices found, in index order.
	Devices []DeviceInfo

	// Err is set when enumeration failed.
	Err error
}

// ListDevices enumerates every registered platform in priority order.
// Platforms that fail to enumerate are reported with Err set rather than
// aborting the listing.
func ListDevices() []PlatformDevices {
	platforms := compute.Platforms()
	out := make([]PlatformDevices, len(platforms))
	for i, p := range platforms {
		devs, err := p.Devices()
		out[i] = PlatformDevices{Platform: p.Name(), Devices: devs, Err: err}
	}
	return out
}

// ResolvePlatform turns a platform given by name or by its index in the
// ListDevices order into a registry name. Empty stays empty (automatic).
func ResolvePlatform(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		p, err := compute.PlatformAt(i)
		if err != nil {
			return "", newStageError(StateIdle, err)
		}
		return p.Name(), nil
	}
	if _, err := compute.Lookup(s); err != nil {
		return "", newStageError(StateIdle, err)
	}
	return s, nil
}
