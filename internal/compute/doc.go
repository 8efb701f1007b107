// Package compute defines the device contract used by the equalization
// pipeline.
//
// A Platform enumerates devices and opens a Backend on one of them. A Backend
// owns device memory (Buffer), moves bytes between host and device
// (Upload/Download) and runs one of the four typed stages (Dispatch). Every
// operation blocks until the device has finished and reports an Event with
// host-side start/end timestamps.
//
// # Memory layout
//
// All buffers are arrays of little-endian 32-bit words. Pixel buffers pack
// four 8-bit samples per word (sample i lives in byte i&3 of word i>>2), and
// histogram buffers hold one uint32 counter per bin. Backends round every
// allocation up to a whole number of words and zero-fill it.
//
// # Stages
//
// Stage bindings are fixed per stage (see Stage.Bindings):
//
//	histogram:    pixels(read) -> histogram(read_write, atomic)
//	scan:         histogram(read) -> cumulative(read_write), scratch(read_write)
//	normalize:    cumulative(read) -> lut(read_write)
//	back_project: pixels(read), lut(read) -> output(read_write, atomic or)
//
// Platforms register themselves from init() and are looked up by name
// through Lookup or enumerated in priority order through Platforms.
package compute
