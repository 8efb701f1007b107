package histeq

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/histeq/internal/compute"
)

// DefaultBins is the bin count for 8-bit images.
const DefaultBins = 256

// Config selects the device and tunes a run.
//
// The zero value is not valid; start from DefaultConfig.
type Config struct {
	// Bins is the number of histogram bins, 1..256.
	Bins int `json:"bins"`

	// Platform names the compute platform ("gpu", "cpu"). Empty tries every
	// registered platform in priority order.
	Platform string `json:"platform"`

	// Device is the device index within the platform.
	Device int `json:"device"`

	// LocalSize is the work-group size, at most 256. Zero selects the
	// backend default.
	LocalSize uint32 `json:"local_size"`

	// FenceTimeout bounds every wait for device completion on the GPU
	// platform. Zero selects the backend default.
	FenceTimeout Duration `json:"fence_timeout"`

	// Workers caps the host goroutines of the CPU platform. Zero selects
	// GOMAXPROCS.
	Workers int `json:"workers"`

	// Verify compares every device result with the host reference and fails
	// the run on mismatch.
	Verify bool `json:"verify"`

	// PrecompileShaders compiles WGSL to SPIR-V with naga before handing it
	// to the driver.
	PrecompileShaders bool `json:"precompile_shaders"`
}

// DefaultConfig returns the configuration used when none is given:
// 256 bins on the first device of the preferred platform.
func DefaultConfig() Config {
	return Config{Bins: DefaultBins}
}

// Validate reports the first invalid field, wrapped in ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.Bins < 1 || c.Bins > compute.MaxBins:
		return fmt.Errorf("%w: bins %d not in [1, %d]", ErrConfiguration, c.Bins, compute.MaxBins)
	case c.LocalSize > compute.MaxLocalSize:
		return fmt.Errorf("%w: local size %d exceeds %d", ErrConfiguration, c.LocalSize, compute.MaxLocalSize)
	case c.Device < 0:
		return fmt.Errorf("%w: negative device index %d", ErrConfiguration, c.Device)
	case c.Workers < 0:
		return fmt.Errorf("%w: negative worker count %d", ErrConfiguration, c.Workers)
	case c.FenceTimeout < 0:
		return fmt.Errorf("%w: negative fence timeout %v", ErrConfiguration, c.FenceTimeout)
	}
	return nil
}

func (c Config) openOptions() compute.OpenOptions {
	return compute.OpenOptions{
		LocalSize:         c.LocalSize,
		Workers:           c.Workers,
		FenceTimeout:      time.Duration(c.FenceTimeout),
		PrecompileShaders: c.PrecompileShaders,
	}
}

// LoadConfig reads a JSON configuration file over DefaultConfig.
// A missing file is not an error: it is logged at warn level and the
// defaults are returned. A nil logger uses Logger().
func LoadConfig(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = Logger()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("histeq: config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: parse %s: %w", ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Duration is a time.Duration that reads from JSON either as a Go duration
// string ("250ms") or as a number of nanoseconds.
type Duration time.Duration

// String formats d like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x)
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}
