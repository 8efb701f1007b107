// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu implements the compute platform on wgpu/hal.
//
// Each pipeline stage is a WGSL compute shader embedded from shaders/ and
// compiled into a compute pipeline when a Device is created. A dispatch
// records its passes into one command buffer, submits it and polls the
// queue until the submission index completes, so every Backend call
// returns only after the device has finished.
// The scan stage records one pass per Hillis-Steele step; the pass boundary
// makes the writes of one step visible to the next.
//
// Buffers carry Storage, CopySrc and CopyDst usage and are zero-filled at
// allocation. Transfers must be word aligned. Reads copy into a MapRead
// staging buffer that is mapped once the copy has completed.
//
// The platform registers itself as "gpu" and opens Vulkan adapters, sorted
// so that discrete GPUs come first, then integrated GPUs. NewDevice and
// NewSharedDevice wrap a device owned by someone else.
package gpu
