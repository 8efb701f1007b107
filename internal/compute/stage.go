package compute

import "fmt"

// Stage identifies one of the four stages of the equalization pipeline.
// Stages are dispatched strictly in declaration order.
type Stage int

const (
	// StageHistogram counts pixel intensities into bins with atomic increments.
	// Work items: one per pixel.
	StageHistogram Stage = iota

	// StageScan turns the frequency histogram into an inclusive cumulative
	// histogram with a double-buffered Hillis-Steele scan.
	// Work items: one per bin, one barrier per scan step.
	StageScan

	// StageNormalize rescales the cumulative histogram into an 8-bit
	// lookup table. Work items: one per bin.
	StageNormalize

	// StageBackProject maps every pixel through the lookup table.
	// Work items: one per pixel.
	StageBackProject

	// StageCount is the number of pipeline stages.
	StageCount
)

// String returns the kernel name of the stage.
func (s Stage) String() string {
	switch s {
	case StageHistogram:
		return "histogram"
	case StageScan:
		return "scan"
	case StageNormalize:
		return "normalize"
	case StageBackProject:
		return "back_project"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Valid reports whether s names one of the four pipeline stages.
func (s Stage) Valid() bool {
	return s >= StageHistogram && s < StageCount
}

// AccessMode describes how a buffer may be used by device code.
type AccessMode int

const (
	// ReadOnly buffers can only be bound to read bindings.
	ReadOnly AccessMode = iota

	// WriteOnly buffers can only be bound to write bindings.
	WriteOnly

	// ReadWrite buffers can be bound anywhere.
	ReadWrite
)

// String returns the access mode name.
func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read"
	case WriteOnly:
		return "write"
	case ReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// CanRead reports whether a buffer of mode m may be bound for reading.
func (m AccessMode) CanRead() bool { return m == ReadOnly || m == ReadWrite }

// CanWrite reports whether a buffer of mode m may be bound for writing.
func (m AccessMode) CanWrite() bool { return m == WriteOnly || m == ReadWrite }

// BindingKind says which part of the dispatch parameters sizes a binding.
type BindingKind int

const (
	// BindPixels is a packed pixel buffer holding Params.PixelCount samples.
	BindPixels BindingKind = iota

	// BindBins is a histogram-shaped buffer holding Params.Bins counters.
	BindBins
)

// Binding describes one buffer slot of a stage.
type Binding struct {
	Name  string
	Kind  BindingKind
	Write bool
}

// stageBindings lists the bindings of each stage in slot order. The order
// matches @binding(1..n) of the WGSL shaders; binding 0 is always the
// uniform Params block.
var stageBindings = [StageCount][]Binding{
	StageHistogram: {
		{Name: "pixels", Kind: BindPixels},
		{Name: "histogram", Kind: BindBins, Write: true},
	},
	StageScan: {
		{Name: "histogram", Kind: BindBins},
		{Name: "cumulative", Kind: BindBins, Write: true},
		{Name: "scratch", Kind: BindBins, Write: true},
	},
	StageNormalize: {
		{Name: "cumulative", Kind: BindBins},
		{Name: "lut", Kind: BindBins, Write: true},
	},
	StageBackProject: {
		{Name: "pixels", Kind: BindPixels},
		{Name: "lut", Kind: BindBins},
		{Name: "output", Kind: BindPixels, Write: true},
	},
}

// Bindings returns the buffer slots of the stage in binding order.
// The returned slice must not be modified.
func (s Stage) Bindings() []Binding {
	if !s.Valid() {
		return nil
	}
	return stageBindings[s]
}
