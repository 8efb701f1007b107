//go:build !nogpu

package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

func TestShaderCache_GetMemoizes(t *testing.T) {
	c := newShaderCache(8)
	key := shaderKey{stage: compute.StageScan, wgSize: 64}

	builds := 0
	build := func() (hal.ShaderSource, error) {
		builds++
		return hal.ShaderSource{WGSL: "scan"}, nil
	}

	for range 3 {
		src, err := c.get(key, build)
		if err != nil {
			t.Fatalf("get() = %v", err)
		}
		if src.WGSL != "scan" {
			t.Errorf("WGSL = %q, want scan", src.WGSL)
		}
	}
	if builds != 1 {
		t.Errorf("build called %d times, want 1", builds)
	}
	if hits, misses := c.stats(); hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 2/1", hits, misses)
	}
}

func TestShaderCache_ErrorsNotCached(t *testing.T) {
	c := newShaderCache(8)
	key := shaderKey{stage: compute.StageHistogram, spirv: true}
	errBuild := errors.New("boom")

	if _, err := c.get(key, func() (hal.ShaderSource, error) { return hal.ShaderSource{}, errBuild }); !errors.Is(err, errBuild) {
		t.Fatalf("get() = %v, want build error", err)
	}
	if c.len() != 0 {
		t.Errorf("len() = %d after failed build, want 0", c.len())
	}
	if _, err := c.get(key, func() (hal.ShaderSource, error) { return hal.ShaderSource{SPIRV: []uint32{1}}, nil }); err != nil {
		t.Fatalf("retry get() = %v", err)
	}
}

func TestShaderCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newShaderCache(4)
	ok := func() (hal.ShaderSource, error) { return hal.ShaderSource{WGSL: "x"}, nil }
	keys := make([]shaderKey, 5)
	for i := range keys {
		keys[i] = shaderKey{stage: compute.StageNormalize, wgSize: uint32(32 * (i + 1))}
	}

	for _, k := range keys[:4] {
		_, _ = c.get(k, ok)
	}
	// Touch the first key so it is the most recently used.
	_, _ = c.get(keys[0], ok)
	_, _ = c.get(keys[4], ok)

	if got := c.len(); got != 3 {
		t.Fatalf("len() = %d, want 3 after eviction", got)
	}
	c.mu.Lock()
	_, first := c.entries[keys[0]]
	_, last := c.entries[keys[4]]
	_, second := c.entries[keys[1]]
	c.mu.Unlock()
	if !first || !last {
		t.Error("recently used entries were evicted")
	}
	if second {
		t.Error("least recently used entry survived eviction")
	}
}

func TestStageSource(t *testing.T) {
	src, err := stageSource(compute.StageBackProject, 128, false)
	if err != nil {
		t.Fatalf("stageSource() = %v", err)
	}
	if !strings.Contains(src.WGSL, "@workgroup_size(128)") || src.SPIRV != nil {
		t.Error("stageSource() did not return specialized WGSL")
	}

	if _, err := stageSource(compute.StageBackProject, MaxWGSize*2, false); err == nil {
		t.Error("stageSource() accepted an oversized workgroup")
	}
}
