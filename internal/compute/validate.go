package compute

import "fmt"

// Validate checks a dispatch against the stage signature: the number of
// buffers, their access modes, their sizes and the scalar parameters.
// Backends call it before touching device memory.
func (d Dispatch) Validate() error {
	if !d.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %s", ErrInvalidDispatch, d.Stage)
	}
	if d.Params.Bins == 0 || d.Params.Bins > MaxBins {
		return fmt.Errorf("%w: %s: bins %d not in [1, %d]", ErrInvalidDispatch, d.Stage, d.Params.Bins, MaxBins)
	}
	if d.Params.PixelCount == 0 {
		return fmt.Errorf("%w: %s: zero pixel count", ErrInvalidDispatch, d.Stage)
	}

	want := d.expectedWorkItems()
	if d.WorkItems != want {
		return fmt.Errorf("%w: %s: %d work items, want %d", ErrInvalidDispatch, d.Stage, d.WorkItems, want)
	}

	slots := d.Stage.Bindings()
	if len(d.Buffers) != len(slots) {
		return fmt.Errorf("%w: %s: %d buffers, want %d", ErrInvalidDispatch, d.Stage, len(d.Buffers), len(slots))
	}

	for i, slot := range slots {
		buf := d.Buffers[i]
		if buf == nil {
			return fmt.Errorf("%w: %s: nil %s buffer", ErrInvalidDispatch, d.Stage, slot.Name)
		}
		if slot.Write && !buf.Mode().CanWrite() {
			return fmt.Errorf("%w: %s: %s buffer %q is %s, want write access",
				ErrInvalidDispatch, d.Stage, slot.Name, buf.Label(), buf.Mode())
		}
		if !slot.Write && !buf.Mode().CanRead() {
			return fmt.Errorf("%w: %s: %s buffer %q is %s, want read access",
				ErrInvalidDispatch, d.Stage, slot.Name, buf.Label(), buf.Mode())
		}
		if need := d.bindingSize(slot); buf.Size() < need {
			return fmt.Errorf("%w: %s: %s buffer %q holds %d bytes, want %d",
				ErrInvalidDispatch, d.Stage, slot.Name, buf.Label(), buf.Size(), need)
		}
	}

	// Each stage owns its outputs exclusively: an output may not alias any
	// other binding of the same dispatch.
	for i, slot := range slots {
		if !slot.Write {
			continue
		}
		for j := range d.Buffers {
			if i != j && d.Buffers[i] == d.Buffers[j] {
				return fmt.Errorf("%w: %s: %s buffer aliases %s", ErrInvalidDispatch, d.Stage, slot.Name, slots[j].Name)
			}
		}
	}
	return nil
}

func (d Dispatch) expectedWorkItems() uint32 {
	switch d.Stage {
	case StageHistogram, StageBackProject:
		return d.Params.PixelCount
	default:
		return d.Params.Bins
	}
}

func (d Dispatch) bindingSize(b Binding) uint64 {
	if b.Kind == BindPixels {
		return uint64(d.Params.PixelCount)
	}
	return uint64(d.Params.Bins) * WordSize
}
