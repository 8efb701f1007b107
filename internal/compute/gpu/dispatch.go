// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/histeq/internal/compute"
)

// maxGroupsPerDim is the WebGPU limit on workgroups per dispatch dimension.
const maxGroupsPerDim = 65535

// Bounds of the completion polling interval.
const (
	minPollInterval = 20 * time.Microsecond
	maxPollInterval = time.Millisecond
)

// paramsSize is the size of the Params uniform struct in every shader.
const paramsSize = 16

// stageParams matches the Params struct of the WGSL shaders: four
// consecutive u32 fields.
type stageParams struct {
	PixelCount uint32
	Bins       uint32
	Stride     uint32
	_          uint32
}

func (p stageParams) toBytes() []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:], p.PixelCount)
	binary.LittleEndian.PutUint32(buf[4:], p.Bins)
	binary.LittleEndian.PutUint32(buf[8:], p.Stride)
	return buf
}

// pass is one compute pass: a pipeline, its buffers in binding order after
// the params uniform, the params and the grid.
type pass struct {
	label   string
	params  stageParams
	buffers []*buffer
	x, y    uint32
}

// dispatchResources tracks per-dispatch GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	uniforms   []hal.Buffer
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer

	// inflight is set when the GPU may still use the resources.
	inflight bool
}

// cleanup destroys all tracked per-dispatch resources. Resources of a
// submission that did not complete are leaked rather than destroyed
// under the GPU.
func (r *dispatchResources) cleanup() {
	if r.inflight {
		slogger().Warn("gpu: leaking resources of an unfinished submission",
			"uniforms", len(r.uniforms),
			"bind_groups", len(r.bindGroups))
		return
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
	for _, u := range r.uniforms {
		r.device.DestroyBuffer(u)
	}
}

// workgroupGrid folds groups workgroups into a 2D grid within the
// per-dimension limit. The shaders reconstruct the linear index as
// gid.y * num_workgroups.x * WG_SIZE + gid.x.
func workgroupGrid(groups uint32) (x, y uint32) {
	if groups <= maxGroupsPerDim {
		return groups, 1
	}
	x = maxGroupsPerDim
	y = (groups + x - 1) / x
	return x, y
}

// Dispatch validates disp, records its passes into one command buffer,
// submits it and waits for the submission to complete.
func (d *Device) Dispatch(ctx context.Context, disp compute.Dispatch) (compute.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := compute.Event{Label: disp.Stage.String(), Kind: compute.EventKernel, Start: time.Now()}
	if d.closed {
		return ev, compute.ErrClosed
	}
	if err := disp.Validate(); err != nil {
		return ev, err
	}
	if disp.LocalSize != 0 && disp.LocalSize != d.wgSize {
		return ev, fmt.Errorf("%w: %s: local size %d, pipelines built for %d",
			compute.ErrInvalidDispatch, disp.Stage, disp.LocalSize, d.wgSize)
	}

	bufs := make([]*buffer, len(disp.Buffers))
	for i, buf := range disp.Buffers {
		b, err := d.own(buf)
		if err != nil {
			return ev, fmt.Errorf("%w: %s: %w", compute.ErrInvalidDispatch, disp.Stage, err)
		}
		bufs[i] = b
	}

	passes := d.planPasses(disp, bufs)

	res := &dispatchResources{device: d.device}
	defer res.cleanup()

	if err := d.encodePasses(res, disp.Stage, passes); err != nil {
		return ev, fmt.Errorf("%w: %w", compute.ErrDispatch, err)
	}
	if err := ctx.Err(); err != nil {
		return ev, err
	}
	if err := d.submitAndWait(res); err != nil {
		return ev, err
	}
	ev.End = time.Now()

	slogger().Debug("gpu: stage complete",
		"stage", disp.Stage.String(),
		"items", disp.WorkItems,
		"passes", len(passes),
		"elapsed", ev.Duration())
	return ev, nil
}

// planPasses expands a dispatch into compute passes. The scan stage yields
// one pass per step, reading the histogram first and then ping-ponging
// between the cumulative and scratch buffers so that the final step writes
// the cumulative buffer.
func (d *Device) planPasses(disp compute.Dispatch, bufs []*buffer) []pass {
	params := stageParams{PixelCount: disp.Params.PixelCount, Bins: disp.Params.Bins}
	x, y := workgroupGrid(compute.GroupCount(disp.WorkItems, d.wgSize))

	if disp.Stage != compute.StageScan {
		return []pass{{label: disp.Stage.String(), params: params, buffers: bufs, x: x, y: y}}
	}

	hist := bufs[0]
	targets := [2]*buffer{bufs[1], bufs[2]}
	steps := compute.ScanSteps(disp.Params.Bins)
	passes := make([]pass, steps)
	for s := range steps {
		src := hist
		if s > 0 {
			src = targets[compute.ScanTarget(s-1, steps)]
		}
		p := params
		p.Stride = compute.ScanStride(s)
		passes[s] = pass{
			label:   fmt.Sprintf("scan_step_%d", s),
			params:  p,
			buffers: []*buffer{src, targets[compute.ScanTarget(s, steps)]},
			x:       x,
			y:       y,
		}
	}
	return passes
}

// encodePasses creates a params uniform and bind group per pass and records
// the passes into a single command buffer.
func (d *Device) encodePasses(res *dispatchResources, stage compute.Stage, passes []pass) error {
	st := &d.stages[stage]
	bindGroups := make([]hal.BindGroup, len(passes))

	for i, p := range passes {
		ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "histeq_params",
			Size:  paramsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create params buffer for %s: %w", p.label, err)
		}
		res.uniforms = append(res.uniforms, ub)
		if err := d.queue.WriteBuffer(ub, 0, p.params.toBytes()); err != nil {
			return fmt.Errorf("write params for %s: %w", p.label, err)
		}

		entries := []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: paramsSize},
		}}
		for j, b := range p.buffers {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(j + 1),
				Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: 0, Size: b.alloc},
			})
		}

		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "histeq_" + p.label + "_bg",
			Layout:  st.bgLayout,
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bind group for %s: %w", p.label, err)
		}
		res.bindGroups = append(res.bindGroups, bg)
		bindGroups[i] = bg
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "histeq_" + stage.String(),
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("histeq_" + stage.String()); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	for i, p := range passes {
		if p.x == 0 {
			continue
		}
		cp := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "histeq_" + p.label})
		cp.SetPipeline(st.pipeline)
		cp.SetBindGroup(0, bindGroups[i], nil)
		cp.Dispatch(p.x, p.y, 1)
		cp.End()

		slogger().Debug("gpu: dispatched pass",
			"pass", p.label,
			"stride", p.params.Stride,
			"workgroups", fmt.Sprintf("%dx%d", p.x, p.y))
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the command buffer and polls the queue until the
// submission index completes or d.timeout elapses.
func (d *Device) submitAndWait(res *dispatchResources) error {
	index, err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf})
	if err != nil {
		return fmt.Errorf("%w: submit: %w", compute.ErrDispatch, err)
	}
	res.inflight = true

	deadline := time.Now().Add(d.timeout)
	backoff := minPollInterval
	for d.queue.PollCompleted() < index {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: submission %d not complete after %v", compute.ErrTimeout, index, d.timeout)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxPollInterval)
	}
	res.inflight = false
	return nil
}
