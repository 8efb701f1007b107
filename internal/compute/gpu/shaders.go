// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/histeq/internal/compute"
)

//go:embed shaders/histogram.wgsl
var shaderHistogram string

//go:embed shaders/scan.wgsl
var shaderScan string

//go:embed shaders/normalize.wgsl
var shaderNormalize string

//go:embed shaders/back_project.wgsl
var shaderBackProject string

// DefaultWGSize is the workgroup size the shaders are written for.
const DefaultWGSize = 256

// MaxWGSize is the largest workgroup size accepted: the WebGPU default
// limit on invocations per workgroup.
const MaxWGSize = compute.MaxLocalSize

// shaderSources maps stages to their embedded WGSL.
var shaderSources = [compute.StageCount]string{
	compute.StageHistogram:   shaderHistogram,
	compute.StageScan:        shaderScan,
	compute.StageNormalize:   shaderNormalize,
	compute.StageBackProject: shaderBackProject,
}

// ShaderSource returns the WGSL of stage specialized for workgroup size
// wgSize. Zero selects DefaultWGSize.
func ShaderSource(stage compute.Stage, wgSize uint32) (string, error) {
	if !stage.Valid() {
		return "", fmt.Errorf("gpu: no shader for stage %s", stage)
	}
	if wgSize == 0 {
		wgSize = DefaultWGSize
	}
	if wgSize > MaxWGSize {
		return "", fmt.Errorf("gpu: workgroup size %d exceeds %d", wgSize, MaxWGSize)
	}
	src := shaderSources[stage]
	if wgSize == DefaultWGSize {
		return src, nil
	}
	r := strings.NewReplacer(
		"@workgroup_size(256)", fmt.Sprintf("@workgroup_size(%d)", wgSize),
		"const WG_SIZE: u32 = 256u;", fmt.Sprintf("const WG_SIZE: u32 = %du;", wgSize),
	)
	return r.Replace(src), nil
}

// compileSPIRV compiles WGSL to SPIR-V words with naga.
func compileSPIRV(src string) ([]uint32, error) {
	code, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}
