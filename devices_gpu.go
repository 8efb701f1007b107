//go:build !nogpu

package histeq

// GPU platform through wgpu/hal. Build with -tags nogpu for a CPU-only binary.
import _ "github.com/gogpu/histeq/internal/compute/gpu"
