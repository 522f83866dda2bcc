package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/config"
	"github.com/gogpu/toys/internal/toys/jugcler"
	"github.com/gogpu/toys/internal/toys/julia"
	"github.com/gogpu/toys/internal/toys/mandel"
	"github.com/gogpu/toys/internal/toys/smallpt"
	"github.com/gogpu/toys/scene"
)

// toyWindow is the handle the headless run registers its toy under.
const toyWindow toys.WindowID = 1

// setupFunc prepares everything of a toy that needs no device, such as
// parsing its scene file, and returns the function that builds the toy on
// an open session. Input errors surface before any device is touched.
type setupFunc func(cfg config.Config) (buildFunc, error)

// buildFunc creates the toy on an open session.
type buildFunc func(s *toys.Session) (*toys.Toy, error)

func smallptCmd() *cli.Command {
	flags := append(toyFlags(), &cli.StringFlag{
		Name:    "scene",
		Aliases: []string{"s"},
		Usage:   "scene file; empty renders the built-in Cornell box",
	})
	return &cli.Command{
		Name:  config.ToySmallPT,
		Usage: "Progressive path tracer",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, config.ToySmallPT, setupSmallPT)
		},
	}
}

func mandelCmd() *cli.Command {
	return &cli.Command{
		Name:  config.ToyMandel,
		Usage: "Mandelbrot set explorer",
		Flags: toyFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, config.ToyMandel, setupMandel)
		},
	}
}

func juliaCmd() *cli.Command {
	return &cli.Command{
		Name:  config.ToyJulia,
		Usage: "Quaternion Julia set ray marcher",
		Flags: toyFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, config.ToyJulia, setupJulia)
		},
	}
}

func jugclerCmd() *cli.Command {
	return &cli.Command{
		Name:  config.ToyJugCLer,
		Usage: "Animated juggler ray tracer",
		Flags: toyFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runCommand(ctx, cmd, config.ToyJugCLer, setupJugCLer)
		},
	}
}

func setupSmallPT(cfg config.Config) (buildFunc, error) {
	opts, err := cfg.ToyOptions()
	if err != nil {
		return nil, err
	}
	sc := smallpt.DefaultScene()
	if cfg.ScenePath != "" {
		if sc, err = scene.Load(cfg.ScenePath); err != nil {
			return nil, err
		}
	}
	return func(s *toys.Session) (*toys.Toy, error) {
		t, _, err := smallpt.New(s, sc, opts)
		return t, err
	}, nil
}

func setupMandel(cfg config.Config) (buildFunc, error) {
	opts, err := cfg.ToyOptions()
	if err != nil {
		return nil, err
	}
	return func(s *toys.Session) (*toys.Toy, error) {
		t, _, err := mandel.New(s, opts)
		return t, err
	}, nil
}

func setupJulia(cfg config.Config) (buildFunc, error) {
	opts, err := cfg.ToyOptions()
	if err != nil {
		return nil, err
	}
	return func(s *toys.Session) (*toys.Toy, error) {
		t, _, err := julia.New(s, opts)
		return t, err
	}, nil
}

func setupJugCLer(cfg config.Config) (buildFunc, error) {
	opts, err := cfg.ToyOptions()
	if err != nil {
		return nil, err
	}
	return func(s *toys.Session) (*toys.Toy, error) {
		t, _, err := jugcler.New(s, opts)
		return t, err
	}, nil
}

func runCommand(ctx context.Context, cmd *cli.Command, toy string, setup setupFunc) error {
	cfg, err := loadConfig(cmd, toy)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}
	keys, err := parseKeys(cmd.String("keys"))
	if err != nil {
		return err
	}
	return run(ctx, cmd.Root().Writer, cfg, keys, setup)
}

// run prepares the toy, opens a session, replays keys, renders cfg.Frames
// frames printing their captions to w and exports the last one.
func run(ctx context.Context, w io.Writer, cfg config.Config, keys []toys.Key, setup setupFunc) (err error) {
	log := toys.Logger()

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	build, err := setup(cfg)
	if err != nil {
		return err
	}
	s, err := toys.Open(ctx, sc)
	if err != nil {
		return err
	}
	t, err := build(s)
	if err != nil {
		s.Close()
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	windows := &toys.WindowTable{}
	windows.Register(toyWindow, t)
	defer windows.Remove(toyWindow)

	for _, k := range keys {
		if err := windows.DispatchKey(toyWindow, k); err != nil {
			if errors.Is(err, toys.ErrUnhandledKey) {
				log.Warn("gputoy: key ignored", "toy", t.Name, "key", k)
				continue
			}
			return err
		}
	}

	for i := 0; i < cfg.Frames; i++ {
		f, err := t.Advance(ctx)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, f.Caption); err != nil {
			return err
		}
	}
	if cfg.Frames == 0 || cfg.Output == "" {
		return nil
	}
	if t.ExportWidth, t.ExportHeight, err = cfg.OutputDims(); err != nil {
		return err
	}
	if err := t.Export(cfg.Output); err != nil {
		return err
	}
	log.Info("gputoy: image written", "path", cfg.Output, "width", t.Width, "height", t.Height)
	return nil
}
