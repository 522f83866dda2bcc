package pixels

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
)

// DefaultExportPath is the file written when no path is given.
const DefaultExportPath = "image.ppm"

// WritePPM writes f as a plain-text PPM (P3) image, top row first, one
// pixel per line.
func WritePPM(w io.Writer, f Frame) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "P3\n%d %d\n255\n", f.Width, f.Height)

	var line []byte
	for y := f.Height - 1; y >= 0; y-- {
		for x := range f.Width {
			r, g, b := f.RGB8(x, y)
			line = strconv.AppendUint(line[:0], uint64(r), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(g), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(b), 10)
			line = append(line, '\n')
			if _, err := bw.Write(line); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteBMP writes f as a 24-bit BMP image.
func WriteBMP(w io.Writer, f Frame) error {
	return bmp.Encode(w, f.ToImage())
}

// Scale resamples f to width x height with Catmull-Rom filtering.
func Scale(f Frame, width, height int) Frame {
	if width == f.Width && height == f.Height {
		return f
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), f, f.Bounds(), xdraw.Src, nil)
	return FromImage(dst)
}

// Save writes f to path, choosing the encoder from the extension:
// ".bmp" writes BMP, anything else PPM. An empty path writes
// DefaultExportPath.
func Save(path string, f Frame) error {
	if path == "" {
		path = DefaultExportPath
	}
	file, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return fmt.Errorf("pixels: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		err = WriteBMP(file, f)
	default:
		err = WritePPM(file, f)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("pixels: write %s: %w", path, err)
	}
	return nil
}
