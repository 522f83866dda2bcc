package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/toys/gpucore"
)

func TestDefault(t *testing.T) {
	tests := []struct {
		toy           string
		width, height int
		fixed         bool
	}{
		{ToySmallPT, 640, 480, false},
		{ToyMandel, 512, 512, true},
		{ToyJulia, 640, 480, true},
		{ToyJugCLer, 640, 480, true},
	}
	for _, tt := range tests {
		c := Default(tt.toy)
		if c.Width != tt.width || c.Height != tt.height || c.Budget.Fixed != tt.fixed {
			t.Errorf("Default(%s) = %+v", tt.toy, c)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("Default(%s).Validate() = %v", tt.toy, err)
		}
	}
	if b := Default(ToySmallPT).Budget; b.Low != 75*time.Millisecond || b.High != 100*time.Millisecond || b.Smoothing != 0.1 {
		t.Errorf("smallpt budget = %+v", b)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toys.yaml")
	data := `
backend: software
device_type: cpu
width: 320
kernel: kernels/custom.cl
workgroup_size: 128
build_options: -I common -DSAMPLES=4
budget:
  low: 50ms
  max_passes: 32
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(ToySmallPT, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Backend != "software" || c.Width != 320 || c.Height != 480 || c.WorkGroupSize != 128 {
		t.Errorf("Load() = %+v", c)
	}
	if c.Budget.Low != 50*time.Millisecond || c.Budget.High != 100*time.Millisecond || c.Budget.MaxPasses != 32 {
		t.Errorf("Budget = %+v", c.Budget)
	}
	sc, err := c.SessionConfig()
	if err != nil || sc.DeviceType != gpucore.DeviceTypeCPU || sc.BackendName != "software" {
		t.Errorf("SessionConfig() = %+v, %v", sc, err)
	}
	inc, err := c.IncludePaths()
	if err != nil || !reflect.DeepEqual(inc, []string{"common"}) {
		t.Errorf("IncludePaths() = %v, %v", inc, err)
	}

	if _, err := Load(ToySmallPT, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestCompileOptions(t *testing.T) {
	tests := []struct {
		in      string
		include []string
		defines map[string]string
		extra   []string
	}{
		{"", nil, nil, nil},
		{"-I. -I ../common", []string{".", "../common"}, nil, nil},
		{`-D NAME=a -DFLAG -cl-fast-relaxed-math "-I/with space"`,
			[]string{"/with space"},
			map[string]string{"NAME": "a", "FLAG": ""},
			[]string{"-cl-fast-relaxed-math"}},
	}
	for _, tt := range tests {
		c := Config{BuildOptions: tt.in}
		got, err := c.CompileOptions()
		if err != nil {
			t.Fatalf("CompileOptions(%q) error = %v", tt.in, err)
		}
		if !reflect.DeepEqual(got.IncludePaths, tt.include) ||
			!reflect.DeepEqual(got.Defines, tt.defines) ||
			!reflect.DeepEqual(got.Extra, tt.extra) {
			t.Errorf("CompileOptions(%q) = %+v", tt.in, got)
		}
	}

	for _, bad := range []string{"-I", `-D "unterminated`} {
		c := Config{BuildOptions: bad}
		if _, err := c.CompileOptions(); err == nil {
			t.Errorf("CompileOptions(%q) succeeded", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"size", func(c *Config) { c.Width = 0 }, "frame size"},
		{"workgroup", func(c *Config) { c.WorkGroupSize = -1 }, "workgroup"},
		{"device type", func(c *Config) { c.DeviceType = "fpga" }, "device type"},
		{"inverted budget", func(c *Config) { c.Budget.High = c.Budget.Low }, "threshold"},
		{"frames", func(c *Config) { c.Frames = -1 }, "frame count"},
		{"output size", func(c *Config) { c.OutputSize = "big" }, "output size"},
	}
	for _, tt := range tests {
		c := Default(ToySmallPT)
		tt.mutate(&c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate() = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
}

func TestOutputDims(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{"", 0, 0, false},
		{"320x240", 320, 240, false},
		{"64X 32", 64, 32, false},
		{"320", 0, 0, true},
		{"0x10", 0, 0, true},
		{"axb", 0, 0, true},
	}
	for _, tt := range tests {
		c := Config{OutputSize: tt.in}
		w, h, err := c.OutputDims()
		if (err != nil) != tt.wantErr || w != tt.w || h != tt.h {
			t.Errorf("OutputDims(%q) = %d, %d, %v", tt.in, w, h, err)
		}
	}
}

func TestToyOptions(t *testing.T) {
	c := Default(ToyMandel)
	c.KernelPath = "mandel.cl"
	opts, err := c.ToyOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Width != 512 || opts.KernelPath != "mandel.cl" || !opts.Budget.Fixed || opts.ExportPath != "image.ppm" {
		t.Errorf("ToyOptions() = %+v", opts)
	}
}
