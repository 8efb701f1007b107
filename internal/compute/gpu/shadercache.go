// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

// shaderKey identifies one specialization of a stage shader.
type shaderKey struct {
	stage  compute.Stage
	wgSize uint32
	spirv  bool
}

type shaderEntry struct {
	source hal.ShaderSource
	atime  int64 // access tick
}

// shaderCache memoizes specialized WGSL and naga output across devices.
// When more than limit entries are held, the least recently used quarter
// is evicted.
//
// shaderCache is safe for concurrent use.
type shaderCache struct {
	mu      sync.Mutex
	entries map[shaderKey]*shaderEntry
	limit   int
	tick    int64

	hits, misses uint64
}

func newShaderCache(limit int) *shaderCache {
	return &shaderCache{entries: make(map[shaderKey]*shaderEntry), limit: limit}
}

// shaders is shared by every Device of the process.
var shaders = newShaderCache(4 * int(compute.StageCount))

// get returns the cached source for key, building it on a miss. Build
// errors are not cached. The build runs under the lock, so concurrent
// opens compile each specialization once.
func (c *shaderCache) get(key shaderKey, build func() (hal.ShaderSource, error)) (hal.ShaderSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[key]; ok {
		e.atime = c.tick
		c.hits++
		return e.source, nil
	}

	src, err := build()
	if err != nil {
		return hal.ShaderSource{}, err
	}
	c.misses++
	c.entries[key] = &shaderEntry{source: src, atime: c.tick}
	if c.limit > 0 && len(c.entries) > c.limit {
		c.evict()
	}
	return src, nil
}

// evict drops the least recently used entries down to three quarters of
// the limit. Callers hold c.mu.
func (c *shaderCache) evict() {
	target := max(c.limit*3/4, 1)
	for len(c.entries) > target {
		var (
			oldest shaderKey
			atime  int64 = -1
		)
		for k, e := range c.entries {
			if atime < 0 || e.atime < atime {
				oldest, atime = k, e.atime
			}
		}
		delete(c.entries, oldest)
	}
}

func (c *shaderCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *shaderCache) stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// stageSource returns the shader module source of stage for the given
// workgroup size, as WGSL or as naga-compiled SPIR-V.
func stageSource(stage compute.Stage, wgSize uint32, spirv bool) (hal.ShaderSource, error) {
	return shaders.get(shaderKey{stage: stage, wgSize: wgSize, spirv: spirv}, func() (hal.ShaderSource, error) {
		src, err := ShaderSource(stage, wgSize)
		if err != nil {
			return hal.ShaderSource{}, err
		}
		if !spirv {
			return hal.ShaderSource{WGSL: src}, nil
		}
		words, err := compileSPIRV(src)
		if err != nil {
			return hal.ShaderSource{}, &nagaError{err: err}
		}
		slogger().Debug("gpu: shader compiled to SPIR-V",
			"stage", stage.String(),
			"wg_size", wgSize,
			"words", len(words))
		return hal.ShaderSource{SPIRV: words}, nil
	})
}

// nagaError marks a failure of the host-side WGSL compiler.
type nagaError struct{ err error }

func (e *nagaError) Error() string { return "naga: " + e.err.Error() }
func (e *nagaError) Unwrap() error { return e.err }
