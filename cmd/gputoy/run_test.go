package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/config"
	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/scene"
)

// countingBackend records every call that reaches the hardware layer.
type countingBackend struct {
	*software.Backend
	platforms atomic.Int32
	contexts  atomic.Int32
}

func (b *countingBackend) Platforms() ([]gpucore.Platform, error) {
	b.platforms.Add(1)
	return b.Backend.Platforms()
}

func (b *countingBackend) CreateContext(devices []gpucore.Device) (gpucore.Context, error) {
	b.contexts.Add(1)
	return b.Backend.CreateContext(devices)
}

func registerCounting(t *testing.T) (string, *countingBackend) {
	t.Helper()
	const name = "counting"
	b := &countingBackend{Backend: software.New(software.DefaultConfig())}
	backend.Register(name, func() (gpucore.Backend, error) { return b, nil })
	t.Cleanup(func() {
		backend.Unregister(name)
		b.Close()
	})
	return name, b
}

func smallptConfig(t *testing.T, backendName, scenePath string) config.Config {
	t.Helper()
	cfg := config.Default(config.ToySmallPT)
	cfg.Backend = backendName
	cfg.Width, cfg.Height = 8, 8
	cfg.Frames = 1
	cfg.Output = ""
	cfg.ScenePath = scenePath
	return cfg
}

func TestRunSceneErrorBeforeDevice(t *testing.T) {
	name, b := registerCounting(t)
	path := filepath.Join(t.TempDir(), "bad.scn")
	src := "camera 0 0 0 0 0 -1\nsize 3\nsphere 1 0 0 0 0 0 0 1 1 1 0\nsphere 1 0 0 0 0 0 0 1 1 1 0\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), &bytes.Buffer{}, smallptConfig(t, name, path), nil, setupSmallPT)
	var pe *scene.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("run() error = %v, want *scene.ParseError", err)
	}
	if pe.Line != 4 || pe.Path != path {
		t.Errorf("ParseError = %+v", pe)
	}
	if n, m := b.platforms.Load(), b.contexts.Load(); n != 0 || m != 0 {
		t.Errorf("device touched before the scene was parsed: %d enumerations, %d contexts", n, m)
	}
}

func TestRunSceneFile(t *testing.T) {
	name, b := registerCounting(t)
	path := filepath.Join(t.TempDir(), "one.scn")
	src := "camera 0 0 10 0 0 0\nsize 1\nsphere 2 0 0 0 1 1 1 .5 .5 .5 0\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), &out, smallptConfig(t, name, path), nil, setupSmallPT); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if b.platforms.Load() == 0 || b.contexts.Load() != 1 {
		t.Errorf("enumerations = %d, contexts = %d", b.platforms.Load(), b.contexts.Load())
	}
	if out.Len() == 0 {
		t.Error("no caption printed")
	}
}
