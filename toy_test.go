package toys

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/toys/pixels"
)

// newTestToy wraps the pipeline fixture as an n x 1 luminance toy.
func newTestToy(t *testing.T, n int) (*Toy, *fixture) {
	t.Helper()
	f := newFixture(t, n, 50*time.Millisecond)
	toy := &Toy{
		Name:     "test",
		Session:  f.s,
		Pipeline: f.p,
		Width:    n,
		Height:   1,
		Format:   pixels.RGBFloat32,
		OnKey: func(k Key) error {
			if k != ' ' {
				return ErrUnhandledKey
			}
			f.p.RestartAccumulation()
			return nil
		},
		OnResize: func(w, h int) (int, int, error) {
			w = (w + 3) &^ 3
			f.n = w * h
			if err := f.accum.Resize(4 * f.n); err != nil {
				return 0, 0, err
			}
			return w, h, f.display.Resize(4 * f.n)
		},
	}
	return toy, f
}

func TestToyExportKey(t *testing.T) {
	// RGBFloat32 needs 12 bytes per pixel; the display holds 4, so the
	// toy renders n/3 pixels.
	toy, _ := newTestToy(t, 12)
	toy.Width, toy.Height = 4, 1

	if err := toy.HandleKey(ExportKey); !errors.Is(err, ErrInvalidState) {
		t.Errorf("export before the first frame: %v, want ErrInvalidState", err)
	}
	if _, err := toy.Advance(t.Context()); err != nil {
		t.Fatal(err)
	}

	toy.ExportPath = filepath.Join(t.TempDir(), "out.ppm")
	if err := toy.HandleKey(ExportKey); err != nil {
		t.Fatalf("HandleKey(p) error = %v", err)
	}
	data, err := os.ReadFile(toy.ExportPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("P3\n4 1\n255\n")) {
		t.Errorf("export header = %q", data[:min(len(data), 16)])
	}
	// Every channel is 0.5 after one pass.
	if !strings.Contains(string(data), "128 128 128") {
		t.Errorf("export body = %q", data)
	}
}

func TestToyExportScaled(t *testing.T) {
	toy, _ := newTestToy(t, 12)
	toy.Width, toy.Height = 4, 1
	toy.ExportWidth, toy.ExportHeight = 8, 2
	if _, err := toy.Advance(t.Context()); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "big.ppm")
	if err := toy.Export(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("P3\n8 2\n255\n")) {
		t.Errorf("export header = %q", data[:min(len(data), 16)])
	}
	if n := strings.Count(string(data), "\n"); n != 3+16 {
		t.Errorf("export has %d lines, want %d", n, 3+16)
	}
}

func TestToyTick(t *testing.T) {
	toy, _ := newTestToy(t, 4)
	ticks := 0
	toy.OnTick = func() { ticks++ }
	for range 3 {
		if _, err := toy.Advance(t.Context()); err != nil {
			t.Fatal(err)
		}
	}
	if ticks != 3 {
		t.Errorf("OnTick ran %d times, want 3", ticks)
	}
}

func TestToyHandleKey(t *testing.T) {
	toy, f := newTestToy(t, 8)
	toy.Advance(t.Context())
	toy.Advance(t.Context())
	if f.p.SampleIndex() == 0 {
		t.Fatal("no samples accumulated")
	}
	if err := toy.HandleKey(' '); err != nil {
		t.Fatal(err)
	}
	if f.p.SampleIndex() != 0 {
		t.Errorf("SampleIndex() = %d after restart", f.p.SampleIndex())
	}
	if err := toy.HandleKey('z'); !errors.Is(err, ErrUnhandledKey) {
		t.Errorf("HandleKey(z) error = %v, want ErrUnhandledKey", err)
	}
}

func TestToyResize(t *testing.T) {
	toy, f := newTestToy(t, 8)
	if _, err := toy.Advance(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := toy.Resize(5, 3); err != nil {
		t.Fatal(err)
	}
	if toy.Width != 8 || toy.Height != 3 {
		t.Errorf("size = %dx%d, want 8x3", toy.Width, toy.Height)
	}
	if f.display.Size() != 4*24 {
		t.Errorf("display size = %d, want %d", f.display.Size(), 4*24)
	}
	if toy.Last().Pixels != nil {
		t.Error("stale frame survived resize")
	}
	if err := toy.Resize(0, 3); err == nil {
		t.Error("Resize(0, 3) succeeded")
	}

	var table WindowTable
	table.Register(7, toy)
	if err := table.DispatchResize(7, 16, 2); err != nil {
		t.Fatal(err)
	}
	if toy.Width != 16 || toy.Height != 2 {
		t.Errorf("routed resize gave %dx%d", toy.Width, toy.Height)
	}
}

func TestToyClose(t *testing.T) {
	toy, f := newTestToy(t, 8)
	closed := false
	toy.OnClose = func() { closed = true }
	if err := toy.Close(); err != nil {
		t.Fatal(err)
	}
	if !closed || f.p.State() != Idle || !f.display.Released() {
		t.Errorf("Close left closed=%v state=%v", closed, f.p.State())
	}
}
