// Package config holds the configuration surface of the toys as plain
// values: frame size, kernel and scene files, device selection, kernel
// build options and the frame budget. Values come from defaults, an
// optional YAML file and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/toys/common"
)

// Toy names.
const (
	ToySmallPT = "smallpt"
	ToyMandel  = "mandel"
	ToyJulia   = "julia"
	ToyJugCLer = "jugcler"
)

// Budget is the frame budget section.
type Budget struct {
	Low       time.Duration `yaml:"low"`
	High      time.Duration `yaml:"high"`
	Smoothing float64       `yaml:"smoothing"`
	MaxPasses int           `yaml:"max_passes"`

	// Fixed issues one dispatch per frame.
	Fixed bool `yaml:"fixed"`
}

// Config is the complete configuration of one toy run.
type Config struct {
	Toy string `yaml:"-"`

	Backend    string `yaml:"backend"`
	DeviceType string `yaml:"device_type"`
	MaxDevices int    `yaml:"max_devices"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// KernelPath replaces the embedded kernel source.
	KernelPath string `yaml:"kernel"`

	// WorkGroupSize overrides the device-queried size; 0 queries.
	WorkGroupSize int `yaml:"workgroup_size"`

	// ScenePath is the scene file of the path tracer; empty selects the
	// built-in scene.
	ScenePath string `yaml:"scene"`

	// BuildOptions are compiler options in shell syntax, e.g.
	// `-I kernels -DFAST=1`.
	BuildOptions string `yaml:"build_options"`

	Budget Budget `yaml:"budget"`

	// Frames is the number of frames a headless run renders.
	Frames int `yaml:"frames"`

	// Output is the image written after the last frame.
	Output string `yaml:"output"`

	// OutputSize resamples the written image, as WIDTHxHEIGHT. Empty
	// keeps the frame size.
	OutputSize string `yaml:"output_size"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the defaults of toy.
func Default(toy string) Config {
	c := Config{
		Toy:        toy,
		DeviceType: "all",
		MaxDevices: 1,
		Frames:     16,
		Output:     "image.ppm",
		LogLevel:   "info",
	}
	switch toy {
	case ToyMandel, ToyJulia, ToyJugCLer:
		c.Width, c.Height = 640, 480
		if toy == ToyMandel {
			c.Width, c.Height = 512, 512
		}
		b := toys.FixedBudgetConfig()
		c.Budget = Budget{Low: b.LowThreshold, High: b.HighThreshold, Smoothing: b.Smoothing, MaxPasses: b.MaxPasses, Fixed: true}
	default:
		c.Width, c.Height = 640, 480
		b := toys.DefaultBudgetConfig()
		c.Budget = Budget{Low: b.LowThreshold, High: b.HighThreshold, Smoothing: b.Smoothing, MaxPasses: b.MaxPasses}
	}
	return c
}

// Load overlays the YAML file at path on c. Keys absent from the file keep
// their current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// Load returns the defaults of toy overlaid with the file at path.
func Load(toy, path string) (Config, error) {
	c := Default(toy)
	if err := c.Load(path); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values no toy can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	if c.WorkGroupSize < 0 {
		errs = append(errs, fmt.Errorf("invalid workgroup size %d", c.WorkGroupSize))
	}
	if c.MaxDevices < 0 {
		errs = append(errs, fmt.Errorf("invalid max devices %d", c.MaxDevices))
	}
	if c.Frames < 0 {
		errs = append(errs, fmt.Errorf("invalid frame count %d", c.Frames))
	}
	if _, err := gpucore.ParseDeviceType(c.DeviceType); err != nil {
		errs = append(errs, err)
	}
	if err := c.BudgetConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CompileOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.OutputDims(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// BudgetConfig returns the frame budget settings.
func (c *Config) BudgetConfig() toys.BudgetConfig {
	return toys.BudgetConfig{
		LowThreshold:  c.Budget.Low,
		HighThreshold: c.Budget.High,
		Smoothing:     c.Budget.Smoothing,
		MaxPasses:     c.Budget.MaxPasses,
		Fixed:         c.Budget.Fixed,
	}
}

// SessionConfig returns the device selection.
func (c *Config) SessionConfig() (toys.SessionConfig, error) {
	dt, err := gpucore.ParseDeviceType(c.DeviceType)
	if err != nil {
		return toys.SessionConfig{}, err
	}
	return toys.SessionConfig{
		BackendName: c.Backend,
		DeviceType:  dt,
		MaxDevices:  c.MaxDevices,
	}, nil
}

// CompileOptions splits BuildOptions into include paths, definitions and
// driver-specific options.
func (c *Config) CompileOptions() (toys.CompileOptions, error) {
	var opts toys.CompileOptions
	args, err := shellwords.Parse(c.BuildOptions)
	if err != nil {
		return opts, fmt.Errorf("build options: %w", err)
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		var flag, val string
		switch {
		case a == "-I" || a == "-D":
			if i+1 == len(args) {
				return opts, fmt.Errorf("build options: %s needs a value", a)
			}
			flag, val = a, args[i+1]
			i++
		case strings.HasPrefix(a, "-I") || strings.HasPrefix(a, "-D"):
			flag, val = a[:2], a[2:]
		default:
			opts.Extra = append(opts.Extra, a)
			continue
		}
		if flag == "-I" {
			opts.IncludePaths = append(opts.IncludePaths, val)
			continue
		}
		name, value, _ := strings.Cut(val, "=")
		if opts.Defines == nil {
			opts.Defines = make(map[string]string)
		}
		opts.Defines[name] = value
	}
	return opts, nil
}

// OutputDims parses OutputSize. It returns 0, 0 when the size is unset.
func (c *Config) OutputDims() (width, height int, err error) {
	if c.OutputSize == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(c.OutputSize), "x")
	if ok {
		width, err = strconv.Atoi(strings.TrimSpace(ws))
		if err == nil {
			height, err = strconv.Atoi(strings.TrimSpace(hs))
		}
	}
	if !ok || err != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid output size %q, want WIDTHxHEIGHT", c.OutputSize)
	}
	return width, height, nil
}

// IncludePaths returns the -I directories of BuildOptions.
func (c *Config) IncludePaths() ([]string, error) {
	opts, err := c.CompileOptions()
	return opts.IncludePaths, err
}

// ToyOptions returns the options the toy packages are built from.
func (c *Config) ToyOptions() (common.Options, error) {
	compile, err := c.CompileOptions()
	if err != nil {
		return common.Options{}, err
	}
	return common.Options{
		Width:         c.Width,
		Height:        c.Height,
		KernelPath:    c.KernelPath,
		WorkGroupSize: c.WorkGroupSize,
		Compile:       compile,
		Budget:        c.BudgetConfig(),
		ExportPath:    c.Output,
	}, nil
}
