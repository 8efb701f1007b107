// Command histeq equalizes the histogram of a grayscale image on a GPU or
// on all CPU cores.
//
// Usage:
//
//	histeq [flags]
//
// Examples:
//
//	histeq -l                            list platforms and devices
//	histeq -f test.pgm -o out.png        equalize on the preferred device
//	histeq -p cpu -bins 64 -verify       64 bins on the CPU, checked on the host
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/histeq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags are the parsed command line options.
type cliFlags struct {
	platform string
	device   int
	list     bool
	input    string
	output   string
	bins     int
	prompt   bool
	config   string
	verify   bool
	spirv    bool
	timeout  time.Duration
	verbose  bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("histeq", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &cliFlags{}
	fs.StringVar(&f.platform, "p", "", "select platform by name or index (default: first that opens)")
	fs.IntVar(&f.device, "d", 0, "select device")
	fs.BoolVar(&f.list, "l", false, "list all platforms and devices")
	fs.StringVar(&f.input, "f", "test.pgm", "input image file")
	fs.StringVar(&f.output, "o", "output.png", "output image file (.png, .pgm, .bmp, .tif, .jpg)")
	fs.IntVar(&f.bins, "bins", histeq.DefaultBins, "number of histogram bins (1-256)")
	fs.BoolVar(&f.prompt, "i", false, "prompt for the number of bins")
	fs.StringVar(&f.config, "config", "", "JSON configuration file")
	fs.BoolVar(&f.verify, "verify", false, "check device results against the host reference")
	fs.BoolVar(&f.spirv, "spirv", false, "precompile shaders to SPIR-V with naga")
	fs.DurationVar(&f.timeout, "timeout", 0, "GPU fence timeout (default 5s)")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Application usage:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// buildConfig layers the config file, then explicitly set flags.
func buildConfig(f *cliFlags, fs *flag.FlagSet, logger *slog.Logger) (histeq.Config, error) {
	cfg := histeq.DefaultConfig()
	if f.config != "" {
		loaded, err := histeq.LoadConfig(f.config, logger)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "p":
			cfg.Platform, err = histeq.ResolvePlatform(f.platform)
		case "d":
			cfg.Device = f.device
		case "bins":
			cfg.Bins = f.bins
		case "verify":
			cfg.Verify = f.verify
		case "spirv":
			cfg.PrecompileShaders = f.spirv
		case "timeout":
			cfg.FenceTimeout = histeq.Duration(f.timeout)
		}
	})
	return cfg, err
}

// promptBins asks for the bin count on in. An empty answer keeps def.
func promptBins(in io.Reader, out io.Writer, def int) (int, error) {
	fmt.Fprintf(out, "Enter number of bins - %d for 8-bit image: ", def)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%w: bins %q is not a number", histeq.ErrConfiguration, line)
	}
	return n, nil
}

func printDevices(out io.Writer, list []histeq.PlatformDevices) {
	for i, pd := range list {
		fmt.Fprintf(out, "Platform %d: %s\n", i, pd.Platform)
		if pd.Err != nil {
			fmt.Fprintf(out, "  unavailable: %v\n", pd.Err)
			continue
		}
		for _, d := range pd.Devices {
			fmt.Fprintf(out, "  Device %d: %s (%s", d.Index, d.Name, d.Type)
			if d.ComputeUnits > 0 {
				fmt.Fprintf(out, ", %d compute units", d.ComputeUnits)
			}
			fmt.Fprintf(out, ", max local size %d)\n", d.MaxLocalSize)
			if len(d.Features) > 0 {
				fmt.Fprintf(out, "    features: %s\n", strings.Join(d.Features, ", "))
			}
		}
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	histeq.SetLogger(logger)

	if f.list {
		printDevices(stdout, histeq.ListDevices())
		return nil
	}

	cfg, err := buildConfig(f, fs, logger)
	if err != nil {
		return err
	}
	if f.prompt {
		if cfg.Bins, err = promptBins(stdin, stdout, cfg.Bins); err != nil {
			return err
		}
	}

	img, err := histeq.LoadImage(f.input)
	if err != nil {
		return err
	}

	eq, err := histeq.NewEqualizer(histeq.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = eq.Close() }()

	fmt.Fprintf(stdout, "Running on %s\n", eq.Device())

	res, err := eq.Equalize(ctx, img)
	if err != nil {
		return err
	}
	if err := histeq.SaveImage(f.output, res.Image); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Equalized %dx%d image with %d bins -> %s\n",
		img.Width, img.Height, cfg.Bins, f.output)
	if cfg.Verify {
		fmt.Fprintln(stdout, "Device results match the host reference")
	}
	fmt.Fprint(stdout, res.Profile.String())
	return nil
}
