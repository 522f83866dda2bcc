package toys

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/toys/pixels"
)

// ErrUnhandledKey is returned by key handlers for keys they do not bind.
var ErrUnhandledKey = errors.New("toys: unhandled key")

// ExportKey saves the displayed image.
const ExportKey Key = 'p'

// Toy is one demo program: a session, a pipeline driving its kernels and
// the closures that react to input. A toy is a data record; the behavior
// that differs between toys lives in the closures.
type Toy struct {
	Name     string
	Session  *Session
	Pipeline *Pipeline

	// Width and Height are the current frame size.
	Width, Height int

	// Format is the pixel format of the display buffer.
	Format pixels.Format

	// OnKey applies a host-state edit. It returns ErrUnhandledKey for
	// keys it ignores.
	OnKey func(k Key) error

	// OnResize reallocates the size-dependent buffers and returns the
	// frame size actually used, which may be aligned up. The pipeline
	// restarts accumulation afterwards.
	OnResize func(width, height int) (int, int, error)

	// OnClose releases toy-specific state before the session closes.
	OnClose func()

	// ExportPath is where ExportKey writes the image. Defaults to
	// pixels.DefaultExportPath.
	ExportPath string

	// ExportWidth and ExportHeight resample exported images when both
	// are positive.
	ExportWidth, ExportHeight int

	// OnTick advances animated host state. Advance calls it before every
	// frame.
	OnTick func()

	last Frame
}

// Advance renders one frame.
func (t *Toy) Advance(ctx context.Context) (Frame, error) {
	if t.OnTick != nil {
		t.OnTick()
	}
	f, err := t.Pipeline.AdvanceFrame(ctx)
	if err != nil {
		return Frame{}, err
	}
	t.last = f
	return f, nil
}

// Last returns the most recent frame.
func (t *Toy) Last() Frame { return t.last }

// Snapshot returns the most recent frame as a pixels.Frame. The data is a
// copy.
func (t *Toy) Snapshot() (pixels.Frame, error) {
	if t.last.Pixels == nil {
		return pixels.Frame{}, fmt.Errorf("%w: no frame rendered", ErrInvalidState)
	}
	data := make([]byte, t.Width*t.Height*t.Format.BytesPerPixel())
	copy(data, t.last.Pixels)
	return pixels.NewFrame(t.Width, t.Height, t.Format, data)
}

// Export writes the most recent frame to path, choosing the encoding from
// the file extension.
func (t *Toy) Export(path string) error {
	f, err := t.Snapshot()
	if err != nil {
		return err
	}
	if t.ExportWidth > 0 && t.ExportHeight > 0 {
		f = pixels.Scale(f, t.ExportWidth, t.ExportHeight)
	}
	if err := pixels.Save(path, f); err != nil {
		return err
	}
	Logger().Info("toys: image exported", "toy", t.Name, "path", path)
	return nil
}

// HandleKey routes a key press. ExportKey is handled by the toy itself.
func (t *Toy) HandleKey(k Key) error {
	if k == ExportKey {
		path := t.ExportPath
		if path == "" {
			path = pixels.DefaultExportPath
		}
		return t.Export(path)
	}
	if t.OnKey == nil {
		return ErrUnhandledKey
	}
	return t.OnKey(k)
}

// Resize changes the frame size, reallocating buffers through OnResize.
func (t *Toy) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("toys: invalid frame size %dx%d", width, height)
	}
	err := t.Pipeline.Resize(func() error {
		w, h := width, height
		if t.OnResize != nil {
			var err error
			if w, h, err = t.OnResize(width, height); err != nil {
				return err
			}
		}
		t.Width, t.Height = w, h
		return nil
	})
	if err != nil {
		return err
	}
	t.last = Frame{}
	Logger().Info("toys: resized", "toy", t.Name, "width", t.Width, "height", t.Height)
	return nil
}

// Close tears the pipeline down and closes the session.
func (t *Toy) Close() error {
	err := t.Pipeline.Teardown()
	if t.OnClose != nil {
		t.OnClose()
	}
	t.Session.Close()
	return err
}
