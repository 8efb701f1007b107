package histeq

// Option configures an Equalizer during creation.
//
// Example:
//
//	// First device of the preferred platform, 256 bins.
//	eq, err := histeq.NewEqualizer()
//
//	// CPU platform, 64 bins, checked against the host reference.
//	eq, err := histeq.NewEqualizer(
//	    histeq.WithPlatform("cpu"),
//	    histeq.WithBins(64),
//	    histeq.WithVerify(true),
//	)
type Option func(*options)

// options holds optional configuration for Equalizer creation.
type options struct {
	cfg     Config
	backend Backend
	hook    StateHook
}

func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Options given after it
// still apply on top.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithBins sets the number of histogram bins.
func WithBins(n int) Option {
	return func(o *options) {
		o.cfg.Bins = n
	}
}

// WithPlatform selects the compute platform by name.
func WithPlatform(name string) Option {
	return func(o *options) {
		o.cfg.Platform = name
	}
}

// WithDevice selects the device index within the platform.
func WithDevice(index int) Option {
	return func(o *options) {
		o.cfg.Device = index
	}
}

// WithBackend runs the pipeline on an already opened backend instead of
// opening one from the configuration. The caller keeps ownership:
// Equalizer.Close does not close it.
//
// Example:
//
//	dev, _ := gpu.NewSharedDevice(provider, compute.OpenOptions{})
//	eq, _ := histeq.NewEqualizer(histeq.WithBackend(dev))
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithStateHook installs a hook called on every state transition.
func WithStateHook(h StateHook) Option {
	return func(o *options) {
		o.hook = h
	}
}

// WithVerify enables or disables comparison with the host reference.
func WithVerify(v bool) Option {
	return func(o *options) {
		o.cfg.Verify = v
	}
}
