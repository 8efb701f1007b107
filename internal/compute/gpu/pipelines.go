// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

// stagePipeline holds the compiled objects of one stage.
type stagePipeline struct {
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
}

// stageBindGroupLayoutEntries returns the bind group layout entries for a
// stage. These entries match the @group(0) @binding(N) annotations in the
// corresponding WGSL shader exactly.
func stageBindGroupLayoutEntries(stage compute.Stage) []gputypes.BindGroupLayoutEntry {
	// binding(0) is the Params uniform in every stage.
	params := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	switch stage {
	case compute.StageHistogram:
		// @binding(1) storage(read) pixels
		// @binding(2) storage(read_write) histogram (atomic)
		return []gputypes.BindGroupLayoutEntry{params, storageRO(1), storageRW(2)}

	case compute.StageScan:
		// @binding(1) storage(read) src
		// @binding(2) storage(read_write) dst
		// The stage's three buffers are rebound per step.
		return []gputypes.BindGroupLayoutEntry{params, storageRO(1), storageRW(2)}

	case compute.StageNormalize:
		// @binding(1) storage(read) cumulative
		// @binding(2) storage(read_write) lut
		return []gputypes.BindGroupLayoutEntry{params, storageRO(1), storageRW(2)}

	case compute.StageBackProject:
		// @binding(1) storage(read) pixels
		// @binding(2) storage(read) lut
		// @binding(3) storage(read_write) output (atomic)
		return []gputypes.BindGroupLayoutEntry{params, storageRO(1), storageRO(2), storageRW(3)}

	default:
		return nil
	}
}

// createPipelines compiles every stage shader and creates its pipeline.
// On failure everything created so far is destroyed.
func (d *Device) createPipelines(precompile bool) error {
	for s := compute.StageHistogram; s < compute.StageCount; s++ {
		if err := d.createStage(s, precompile); err != nil {
			d.destroyPipelines(s + 1)
			return err
		}
	}
	slogger().Debug("gpu: all pipelines initialized",
		"stages", int(compute.StageCount),
		"wg_size", d.wgSize,
		"spirv", precompile)
	return nil
}

func (d *Device) createStage(s compute.Stage, precompile bool) error {
	source, err := stageSource(s, d.wgSize, precompile)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", compute.ErrCompile, s, err)
	}
	name := "histeq_" + s.String()
	st := &d.stages[s]

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("%w: create shader module for %s: %w", compute.ErrCompile, s, err)
	}
	st.module = module

	entries := stageBindGroupLayoutEntries(s)
	bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("%w: create bind group layout for %s: %w", compute.ErrCompile, s, err)
	}
	st.bgLayout = bgLayout

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		return fmt.Errorf("%w: create pipeline layout for %s: %w", compute.ErrCompile, s, err)
	}
	st.layout = layout

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  name,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create compute pipeline for %s: %w", compute.ErrCompile, s, err)
	}
	st.pipeline = pipeline

	slogger().Debug("gpu: pipeline created",
		"stage", s.String(),
		"bindings", len(entries),
		"spirv", len(source.SPIRV) > 0)
	return nil
}

// destroyPipelines releases the objects of stages [0, upTo).
func (d *Device) destroyPipelines(upTo compute.Stage) {
	for s := compute.StageHistogram; s < upTo; s++ {
		st := &d.stages[s]
		if st.pipeline != nil {
			d.device.DestroyComputePipeline(st.pipeline)
		}
		if st.layout != nil {
			d.device.DestroyPipelineLayout(st.layout)
		}
		if st.bgLayout != nil {
			d.device.DestroyBindGroupLayout(st.bgLayout)
		}
		if st.module != nil {
			d.device.DestroyShaderModule(st.module)
		}
		*st = stagePipeline{}
	}
}
