package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/histeq"
	"github.com/gogpu/histeq/internal/compute"
)

// writeInput saves a small gradient PGM and returns its path.
func writeInput(t *testing.T) string {
	t.Helper()
	img := histeq.NewImage(16, 8)
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 64)
	}
	path := filepath.Join(t.TempDir(), "in.pgm")
	if err := histeq.SaveImage(path, img); err != nil {
		t.Fatalf("SaveImage() = %v", err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { histeq.SetLogger(nil) })
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Equalize(t *testing.T) {
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "out.png")

	stdout, err := runCLI(t, "", "-p", "cpu", "-f", in, "-o", out, "-bins", "64", "-verify")
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
	for _, want := range []string{"Running on cpu", "16x8 image with 64 bins", "match the host reference", "kernel total"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}

	res, err := histeq.LoadImage(out)
	if err != nil {
		t.Fatalf("LoadImage(output) = %v", err)
	}
	if res.Width != 16 || res.Height != 8 {
		t.Errorf("output size = %dx%d, want 16x8", res.Width, res.Height)
	}
}

func TestRun_PromptBins(t *testing.T) {
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "out.pgm")

	stdout, err := runCLI(t, "16\n", "-p", "cpu", "-i", "-f", in, "-o", out)
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
	if !strings.Contains(stdout, "Enter number of bins") || !strings.Contains(stdout, "with 16 bins") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	in := writeInput(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "histeq.json")
	if err := os.WriteFile(cfgPath, []byte(`{"bins": 8, "platform": "cpu"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	stdout, err := runCLI(t, "", "-config", cfgPath, "-f", in, "-o", filepath.Join(dir, "a.png"))
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
	if !strings.Contains(stdout, "with 8 bins") {
		t.Errorf("config bins not applied:\n%s", stdout)
	}

	// An explicit flag wins over the file.
	stdout, err = runCLI(t, "", "-config", cfgPath, "-bins", "32", "-f", in, "-o", filepath.Join(dir, "b.png"))
	if err != nil {
		t.Fatalf("run() = %v", err)
	}
	if !strings.Contains(stdout, "with 32 bins") {
		t.Errorf("flag did not override config:\n%s", stdout)
	}
}

func TestRun_Errors(t *testing.T) {
	in := writeInput(t)
	dir := t.TempDir()

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  error
	}{
		{"help", "", []string{"-h"}, flag.ErrHelp},
		{"zero bins", "", []string{"-p", "cpu", "-bins", "0", "-f", in}, histeq.ErrConfiguration},
		{"unknown platform", "", []string{"-p", "abacus", "-f", in}, histeq.ErrConfiguration},
		{"bad prompt", "lots\n", []string{"-p", "cpu", "-i", "-f", in}, histeq.ErrConfiguration},
		{"missing input", "", []string{"-p", "cpu", "-f", filepath.Join(dir, "none.pgm")}, histeq.ErrInput},
		{"bad output", "", []string{"-p", "cpu", "-f", in, "-o", filepath.Join(dir, "x.gif")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.stdin, tt.args...)
			if err == nil {
				t.Fatal("run() error = nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("run() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []histeq.PlatformDevices{
		{Platform: "gpu", Err: compute.ErrNoDevice},
		{Platform: "cpu", Devices: []histeq.DeviceInfo{{
			Platform:     "cpu",
			Name:         "host",
			Type:         "cpu",
			ComputeUnits: 8,
			MaxLocalSize: 1024,
			Features:     []string{"avx2"},
		}}},
	})

	out := buf.String()
	for _, want := range []string{
		"Platform 0: gpu",
		"unavailable: compute: no device available",
		"Platform 1: cpu",
		"Device 0: host (cpu, 8 compute units, max local size 1024)",
		"features: avx2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
