package histeq

import (
	"errors"
	"fmt"

	"github.com/gogpu/histeq/internal/compute"
)

// Error kinds. Every error returned by NewEqualizer and Equalizer.Equalize
// matches exactly one of them with errors.Is.
var (
	// ErrConfiguration reports an invalid request: bad bin count, unknown
	// platform, device index out of range, rejected work-group size.
	ErrConfiguration = errors.New("histeq: configuration error")

	// ErrResource reports that the device could not provide what the run
	// needs: no device, allocation or kernel build failure.
	ErrResource = errors.New("histeq: resource error")

	// ErrDeviceExecution reports a failure while the device executed
	// submitted work, including abandoned runs and verification mismatches.
	ErrDeviceExecution = errors.New("histeq: device execution error")

	// ErrInput reports an image that cannot be processed.
	ErrInput = errors.New("histeq: invalid input")
)

// ErrMismatch is returned in verification mode when a device result differs
// from the host reference. It is a device execution error.
var ErrMismatch = errors.New("histeq: device result differs from host reference")

// StageError is the error returned by a failed run. It records the state the
// pipeline was in and unwraps to both the error kind and the originating
// error.
type StageError struct {
	// State is the last state reached before the failure.
	State State

	// Kind is one of ErrConfiguration, ErrResource, ErrDeviceExecution or
	// ErrInput.
	Kind error

	// Err is the originating error.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v (state %s): %v", e.Kind, e.State, e.Err)
}

// Unwrap returns the kind and the originating error.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps an error onto its kind.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrInput):
		return ErrInput
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, compute.ErrUnknownPlatform),
		errors.Is(err, compute.ErrDeviceIndex),
		errors.Is(err, compute.ErrInvalidDispatch):
		return ErrConfiguration
	case errors.Is(err, ErrResource),
		errors.Is(err, compute.ErrNoDevice),
		errors.Is(err, compute.ErrAlloc),
		errors.Is(err, compute.ErrCompile),
		errors.Is(err, compute.ErrClosed):
		return ErrResource
	default:
		// compute.ErrDispatch, ErrTransfer, ErrTimeout, ErrMismatch and
		// context cancellation.
		return ErrDeviceExecution
	}
}

// newStageError wraps err with its kind unless it already is a StageError.
func newStageError(state State, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{State: state, Kind: classify(err), Err: err}
}
