// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/histeq/internal/compute"
)

func init() {
	compute.Register(Platform{})
}

// Platform enumerates Vulkan adapters through wgpu/hal.
type Platform struct{}

// Name returns compute.PlatformGPU.
func (Platform) Name() string { return compute.PlatformGPU }

// SetLogger sets the logger for the GPU backend.
// Called by histeq.SetLogger to propagate logging configuration.
func (Platform) SetLogger(l *slog.Logger) { setLogger(l) }

// Devices lists the available adapters, preferred first.
func (Platform) Devices() ([]compute.DeviceInfo, error) {
	instance, err := createInstance()
	if err != nil {
		return nil, err
	}
	defer instance.Destroy()

	adapters := rankAdapters(instance.EnumerateAdapters(nil))
	infos := make([]compute.DeviceInfo, len(adapters))
	for i := range adapters {
		infos[i] = adapterInfo(&adapters[i], i)
	}
	return infos, nil
}

// Open opens the adapter at index (in Devices order) and builds the stage
// pipelines on it.
func (Platform) Open(index int, opts compute.OpenOptions) (compute.Backend, error) {
	instance, err := createInstance()
	if err != nil {
		return nil, err
	}

	adapters := rankAdapters(instance.EnumerateAdapters(nil))
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", compute.ErrNoDevice)
	}
	if index < 0 || index >= len(adapters) {
		instance.Destroy()
		return nil, fmt.Errorf("%w: gpu has %d devices, got index %d",
			compute.ErrDeviceIndex, len(adapters), index)
	}

	selected := &adapters[index]
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open %s: %w", compute.ErrNoDevice, selected.Info.Name, err)
	}

	d, err := newDevice(openDev.Device, openDev.Queue, adapterInfo(selected, index), opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.external = false

	slogger().Info("gpu: device opened",
		"adapter", selected.Info.Name,
		"type", d.info.Type,
		"wg_size", d.wgSize)
	return d, nil
}

func createInstance() (hal.Instance, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", compute.ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", compute.ErrNoDevice, err)
	}
	return instance, nil
}

// rankAdapters orders adapters discrete first, then integrated, then the
// rest, keeping enumeration order within each class.
func rankAdapters(adapters []hal.ExposedAdapter) []hal.ExposedAdapter {
	rank := func(a hal.ExposedAdapter) int {
		switch a.Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU:
			return 0
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		default:
			return 2
		}
	}
	out := slices.Clone(adapters)
	slices.SortStableFunc(out, func(a, b hal.ExposedAdapter) int {
		return rank(a) - rank(b)
	})
	return out
}

func adapterInfo(a *hal.ExposedAdapter, index int) compute.DeviceInfo {
	return compute.DeviceInfo{
		Platform:     compute.PlatformGPU,
		Index:        index,
		Name:         a.Info.Name,
		Type:         deviceTypeName(a),
		MaxLocalSize: MaxWGSize,
		Features:     []string{"atomics", "storage-buffers"},
	}
}

func deviceTypeName(a *hal.ExposedAdapter) string {
	switch a.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete-gpu"
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated-gpu"
	default:
		return "other"
	}
}
