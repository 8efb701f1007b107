package compute

import "errors"

// Configuration errors: the request itself is wrong.
var (
	// ErrUnknownPlatform is returned when no platform has the requested name.
	ErrUnknownPlatform = errors.New("compute: unknown platform")

	// ErrDeviceIndex is returned when a device index is out of range.
	ErrDeviceIndex = errors.New("compute: device index out of range")

	// ErrInvalidDispatch is returned when a dispatch does not match the
	// stage signature (buffer count, access modes, sizes, parameters).
	ErrInvalidDispatch = errors.New("compute: invalid dispatch")
)

// Resource errors: the device cannot provide what the pipeline needs.
var (
	// ErrNoDevice is returned when a platform has no usable device.
	ErrNoDevice = errors.New("compute: no device available")

	// ErrAlloc is returned when a buffer cannot be allocated.
	ErrAlloc = errors.New("compute: buffer allocation failed")

	// ErrCompile is returned when a stage kernel cannot be built.
	ErrCompile = errors.New("compute: kernel build failed")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("compute: backend closed")
)

// Execution errors: the device failed while running submitted work.
var (
	// ErrDispatch is returned when a stage fails on the device.
	ErrDispatch = errors.New("compute: dispatch failed")

	// ErrTransfer is returned when an upload or download fails.
	ErrTransfer = errors.New("compute: transfer failed")

	// ErrTimeout is returned when the device does not signal completion
	// within the fence timeout.
	ErrTimeout = errors.New("compute: device timeout")
)
