package compute

import (
	"fmt"
	"slices"
	"sync"
)

// Platform names.
const (
	PlatformGPU = "gpu"
	PlatformCPU = "cpu"
)

// registry holds registered platforms.
var (
	registryMu sync.RWMutex
	platforms  = make(map[string]Platform)
	// Priority order for platform enumeration and automatic selection
	// (first that opens wins). Unlisted platforms follow in name order.
	platformPriority = []string{PlatformGPU, PlatformCPU}
)

// Register registers a platform under its name.
// This is typically called from init() functions in platform packages.
// If a platform with the same name is already registered, it is replaced.
func Register(p Platform) {
	if p == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	platforms[p.Name()] = p
}

// Unregister removes a platform from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(platforms, name)
}

// Lookup returns the platform registered under name.
func Lookup(name string) (Platform, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := platforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Platforms returns the registered platforms in priority order.
func Platforms() []Platform {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Platform, 0, len(platforms))
	for _, name := range platformPriority {
		if p, ok := platforms[name]; ok {
			out = append(out, p)
		}
	}

	rest := make([]string, 0, len(platforms))
	for name := range platforms {
		if !slices.Contains(platformPriority, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		out = append(out, platforms[name])
	}
	return out
}

// PlatformAt returns the platform at position index of Platforms.
func PlatformAt(index int) (Platform, error) {
	all := Platforms()
	if index < 0 || index >= len(all) {
		return nil, fmt.Errorf("%w: platform index %d (have %d)", ErrUnknownPlatform, index, len(all))
	}
	return all[index], nil
}

// Open opens device index on the named platform. An empty name tries every
// platform in priority order on device 0 and returns the first backend that
// opens; the errors of skipped platforms are passed to skipped.
func Open(name string, index int, opts OpenOptions, skipped func(Platform, error)) (Backend, error) {
	if name != "" {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		return p.Open(index, opts)
	}

	all := Platforms()
	if len(all) == 0 {
		return nil, ErrNoDevice
	}
	var lastErr error
	for _, p := range all {
		b, err := p.Open(index, opts)
		if err == nil {
			return b, nil
		}
		lastErr = err
		if skipped != nil {
			skipped(p, err)
		}
	}
	return nil, lastErr
}
