package compute

import (
	"context"
	"errors"
	"testing"
)

type stubPlatform struct {
	name    string
	openErr error
	opened  int
}

func (p *stubPlatform) Name() string { return p.name }

func (p *stubPlatform) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{Platform: p.name, Name: "stub"}}, nil
}

func (p *stubPlatform) Open(index int, _ OpenOptions) (Backend, error) {
	p.opened++
	if p.openErr != nil {
		return nil, p.openErr
	}
	if index != 0 {
		return nil, ErrDeviceIndex
	}
	return stubBackend{p.name}, nil
}

type stubBackend struct{ name string }

func (b stubBackend) Info() DeviceInfo { return DeviceInfo{Platform: b.name} }
func (stubBackend) Alloc(string, uint64, AccessMode) (Buffer, error) {
	return nil, ErrAlloc
}
func (stubBackend) Upload(Buffer, uint64, []byte) (Event, error)   { return Event{}, nil }
func (stubBackend) Download(Buffer, uint64, []byte) (Event, error) { return Event{}, nil }
func (stubBackend) Dispatch(context.Context, Dispatch) (Event, error) {
	return Event{}, nil
}
func (stubBackend) Release(Buffer) {}
func (stubBackend) Close() error   { return nil }

// withRegistry swaps the global registry for the duration of a test.
func withRegistry(t *testing.T, ps ...Platform) {
	t.Helper()
	registryMu.Lock()
	saved := platforms
	platforms = make(map[string]Platform)
	registryMu.Unlock()

	for _, p := range ps {
		Register(p)
	}
	t.Cleanup(func() {
		registryMu.Lock()
		platforms = saved
		registryMu.Unlock()
	})
}

func TestRegistry_PriorityOrder(t *testing.T) {
	withRegistry(t,
		&stubPlatform{name: "zeta"},
		&stubPlatform{name: PlatformCPU},
		&stubPlatform{name: "alpha"},
		&stubPlatform{name: PlatformGPU},
	)

	got := Platforms()
	want := []string{PlatformGPU, PlatformCPU, "alpha", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("len(Platforms()) = %d, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Name() != want[i] {
			t.Errorf("Platforms()[%d] = %q, want %q", i, p.Name(), want[i])
		}
	}

	p, err := PlatformAt(1)
	if err != nil || p.Name() != PlatformCPU {
		t.Errorf("PlatformAt(1) = %v, %v; want cpu", p, err)
	}
	if _, err := PlatformAt(4); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("PlatformAt(4) error = %v, want ErrUnknownPlatform", err)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	withRegistry(t)
	if _, err := Lookup("nope"); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("Lookup error = %v, want ErrUnknownPlatform", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	withRegistry(t, &stubPlatform{name: "x"})
	Unregister("x")
	if _, err := Lookup("x"); err == nil {
		t.Error("Lookup after Unregister should fail")
	}
}

func TestOpen_AutoFallsBack(t *testing.T) {
	gpu := &stubPlatform{name: PlatformGPU, openErr: ErrNoDevice}
	cpu := &stubPlatform{name: PlatformCPU}
	withRegistry(t, gpu, cpu)

	var skipped []string
	b, err := Open("", 0, OpenOptions{}, func(p Platform, err error) {
		skipped = append(skipped, p.Name())
		if !errors.Is(err, ErrNoDevice) {
			t.Errorf("skip error = %v, want ErrNoDevice", err)
		}
	})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if b.Info().Platform != PlatformCPU {
		t.Errorf("opened %q, want cpu", b.Info().Platform)
	}
	if len(skipped) != 1 || skipped[0] != PlatformGPU {
		t.Errorf("skipped = %v, want [gpu]", skipped)
	}
}

func TestOpen_Named(t *testing.T) {
	gpu := &stubPlatform{name: PlatformGPU}
	cpu := &stubPlatform{name: PlatformCPU}
	withRegistry(t, gpu, cpu)

	if _, err := Open(PlatformCPU, 0, OpenOptions{}, nil); err != nil {
		t.Fatalf("Open(cpu) = %v", err)
	}
	if gpu.opened != 0 {
		t.Error("named open should not touch other platforms")
	}
	if _, err := Open(PlatformCPU, 3, OpenOptions{}, nil); !errors.Is(err, ErrDeviceIndex) {
		t.Errorf("Open(cpu, 3) = %v, want ErrDeviceIndex", err)
	}
	if _, err := Open("fpga", 0, OpenOptions{}, nil); !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("Open(fpga) = %v, want ErrUnknownPlatform", err)
	}
}

func TestOpen_NoPlatforms(t *testing.T) {
	withRegistry(t)
	if _, err := Open("", 0, OpenOptions{}, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Open() = %v, want ErrNoDevice", err)
	}
}
