// Package histeq enhances the contrast of grayscale images by histogram
// equalization on a compute device.
//
// # Overview
//
// An Equalizer runs four stages on a GPU (wgpu) or on all CPU cores:
//
//  1. histogram: every pixel atomically increments the counter of its bin
//  2. scan: an inclusive Hillis-Steele prefix sum turns the histogram into a
//     cumulative histogram
//  3. normalize: the cumulative histogram is rescaled into an 8-bit lookup
//     table, min(floor(cum * bins / pixels), 255)
//  4. back-projection: every pixel is mapped through the lookup table
//
// # Quick Start
//
//	img, err := histeq.LoadImage("input.pgm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eq, err := histeq.NewEqualizer(histeq.WithBins(256))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eq.Close()
//
//	res, err := eq.Equalize(ctx, img)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = histeq.SaveImage("output.png", res.Image)
//	fmt.Print(res.Profile.String())
//
// # Devices
//
// Platforms register themselves with the compute registry: "gpu" (Vulkan
// through wgpu/hal) and "cpu" (goroutine work groups). Without an explicit
// platform the first one whose device opens is used, GPU first. Build with
// the nogpu tag for a CPU-only binary.
//
// # Errors
//
// Failures are returned as *StageError values carrying the pipeline state
// they happened in. Each matches one of ErrConfiguration, ErrResource,
// ErrDeviceExecution or ErrInput with errors.Is, and also the underlying
// compute error. A failed run releases all device buffers and returns no
// image.
package histeq
