package histeq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gogpu/histeq/internal/compute"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{compute.ErrUnknownPlatform, ErrConfiguration},
		{compute.ErrDeviceIndex, ErrConfiguration},
		{compute.ErrInvalidDispatch, ErrConfiguration},
		{compute.ErrNoDevice, ErrResource},
		{compute.ErrAlloc, ErrResource},
		{compute.ErrCompile, ErrResource},
		{compute.ErrClosed, ErrResource},
		{compute.ErrDispatch, ErrDeviceExecution},
		{compute.ErrTransfer, ErrDeviceExecution},
		{compute.ErrTimeout, ErrDeviceExecution},
		{ErrMismatch, ErrDeviceExecution},
		{context.DeadlineExceeded, ErrDeviceExecution},
		{fmt.Errorf("%w: empty image", ErrInput), ErrInput},
		{fmt.Errorf("wrapped: %w", compute.ErrAlloc), ErrResource},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStageError(t *testing.T) {
	base := fmt.Errorf("%w: submit: device lost", compute.ErrDispatch)
	err := newStageError(StateScanned, base)

	if !errors.Is(err, ErrDeviceExecution) {
		t.Error("StageError does not match its kind")
	}
	if !errors.Is(err, compute.ErrDispatch) {
		t.Error("StageError does not match the originating error")
	}
	if errors.Is(err, ErrResource) {
		t.Error("StageError matches an unrelated kind")
	}

	msg := err.Error()
	for _, part := range []string{"device execution error", "Scanned", "device lost"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, missing %q", msg, part)
		}
	}

	// Wrapping an existing StageError keeps the original state.
	again := newStageError(StateFailed, fmt.Errorf("outer: %w", err))
	var se *StageError
	if !errors.As(again, &se) || se.State != StateScanned {
		t.Errorf("rewrapped state = %v, want Scanned", se)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateBuffersAllocated, "BuffersAllocated"},
		{StateHistogramBuilt, "HistogramBuilt"},
		{StateScanned, "Scanned"},
		{StateNormalized, "Normalized"},
		{StateBackProjected, "BackProjected"},
		{StateDone, "Done"},
		{StateFailed, "Failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
	if !StateDone.Terminal() || !StateFailed.Terminal() || StateScanned.Terminal() {
		t.Error("Terminal() wrong")
	}
}
