package histeq

import "fmt"

// State is a pipeline run state. A run moves forward one state per
// completed stage and ends in StateDone or StateFailed.
type State int

const (
	StateIdle State = iota
	StateBuffersAllocated
	StateHistogramBuilt
	StateScanned
	StateNormalized
	StateBackProjected
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBuffersAllocated:
		return "BuffersAllocated"
	case StateHistogramBuilt:
		return "HistogramBuilt"
	case StateScanned:
		return "Scanned"
	case StateNormalized:
		return "Normalized"
	case StateBackProjected:
		return "BackProjected"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateHook observes state transitions. It is called synchronously on the
// goroutine running Equalize and must not call back into the Equalizer.
type StateHook func(from, to State)
