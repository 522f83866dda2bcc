package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/config"
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, warn, error)",
			Value: "info",
		},
	}
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "compute driver (opencl, wgpu, software); empty picks the best available",
		},
		&cli.StringFlag{
			Name:  "device-type",
			Usage: "device filter (default, cpu, gpu, all)",
			Value: "all",
		},
	}
}

func toyFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
		},
		&cli.IntFlag{Name: "width", Usage: "frame width"},
		&cli.IntFlag{Name: "height", Usage: "frame height"},
		&cli.StringFlag{
			Name:    "kernel",
			Aliases: []string{"k"},
			Usage:   "kernel source replacing the built-in one",
		},
		&cli.IntFlag{
			Name:  "workgroup-size",
			Usage: "work-group size override (0 queries the device)",
		},
		&cli.StringFlag{
			Name:  "build-options",
			Usage: `kernel compiler options, e.g. "-I kernels -DFAST=1"`,
		},
		&cli.IntFlag{
			Name:    "frames",
			Aliases: []string{"n"},
			Usage:   "number of frames to render",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "image written after the last frame (.ppm or .bmp)",
		},
		&cli.StringFlag{
			Name:  "output-size",
			Usage: "resample the written image to WIDTHxHEIGHT",
		},
		&cli.DurationFlag{Name: "budget-low", Usage: "frame time under which a pass is added"},
		&cli.DurationFlag{Name: "budget-high", Usage: "frame time over which a pass is removed"},
		&cli.StringFlag{
			Name:  "keys",
			Usage: `comma-separated keys applied before rendering, e.g. "Space,w,+,Up"`,
		},
	}
	flags = append(flags, deviceFlags()...)
	return append(flags, loggingFlags()...)
}

// loadConfig builds the configuration of toy: defaults, then the optional
// config file, then every flag the user set explicitly.
func loadConfig(cmd *cli.Command, toy string) (config.Config, error) {
	cfg := config.Default(toy)
	if path := cmd.String("config"); path != "" {
		if err := cfg.Load(path); err != nil {
			return cfg, err
		}
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cli.Command, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if cmd.IsSet(name) {
			*dst = int(cmd.Int(name))
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if cmd.IsSet(name) {
			*dst = cmd.Duration(name)
		}
	}

	setString("backend", &cfg.Backend)
	setString("device-type", &cfg.DeviceType)
	setInt("width", &cfg.Width)
	setInt("height", &cfg.Height)
	setString("kernel", &cfg.KernelPath)
	setInt("workgroup-size", &cfg.WorkGroupSize)
	setString("scene", &cfg.ScenePath)
	setString("build-options", &cfg.BuildOptions)
	setInt("frames", &cfg.Frames)
	setString("output", &cfg.Output)
	setString("output-size", &cfg.OutputSize)
	setString("log-level", &cfg.LogLevel)
	setDuration("budget-low", &cfg.Budget.Low)
	setDuration("budget-high", &cfg.Budget.High)
}

// parseKeys parses the --keys list.
func parseKeys(s string) ([]toys.Key, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var keys []toys.Key
	for _, tok := range strings.Split(s, ",") {
		k, err := toys.ParseKey(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// setupLogging installs a text logger on stderr for the library and its
// drivers.
func setupLogging(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	toys.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}
