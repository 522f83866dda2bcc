package pixels

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func rgbFloats(v ...float32) []byte {
	b := make([]byte, 0, len(v)*4)
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

func TestNewFrame(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		format  Format
		n       int
		wantErr bool
	}{
		{"luma exact", 4, 2, Luma8, 8, false},
		{"luma padded", 4, 2, Luma8, 12, false},
		{"luma short", 4, 2, Luma8, 7, true},
		{"rgb exact", 2, 2, RGBFloat32, 48, false},
		{"zero width", 0, 2, Luma8, 8, true},
		{"unknown format", 1, 1, Format(9), 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(tt.w, tt.h, tt.format, make([]byte, tt.n))
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRGB8ClampsAndRounds(t *testing.T) {
	f := Frame{Width: 1, Height: 1, Format: RGBFloat32, Data: rgbFloats(-1, 0.5, 2)}
	r, g, b := f.RGB8(0, 0)
	if r != 0 || g != 128 || b != 255 {
		t.Errorf("RGB8() = %d,%d,%d, want 0,128,255", r, g, b)
	}
}

func TestWritePPMRowOrder(t *testing.T) {
	// Buffer row 0 is the bottom of the image.
	f := Frame{Width: 2, Height: 2, Format: Luma8, Data: []byte{1, 2, 3, 4}}

	var buf bytes.Buffer
	if err := WritePPM(&buf, f); err != nil {
		t.Fatalf("WritePPM() error = %v", err)
	}
	want := "P3\n2 2\n255\n3 3 3\n4 4 4\n1 1 1\n2 2 2\n"
	if buf.String() != want {
		t.Errorf("WritePPM() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestImageFlipsRows(t *testing.T) {
	f := Frame{Width: 1, Height: 2, Format: RGBFloat32, Data: rgbFloats(1, 0, 0, 0, 0, 1)}

	if got := f.At(0, 0); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("At(0,0) = %v, want blue (top row)", got)
	}
	img := f.ToImage()
	if got := img.RGBAAt(0, 1); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("ToImage().At(0,1) = %v, want red (bottom row)", got)
	}
	if f.At(5, 5) != (color.RGBA{}) {
		t.Error("At() out of bounds is not transparent")
	}
}

func TestWriteBMP(t *testing.T) {
	f := Frame{Width: 3, Height: 2, Format: Luma8, Data: []byte{0, 50, 100, 150, 200, 250}}
	var buf bytes.Buffer
	if err := WriteBMP(&buf, f); err != nil {
		t.Fatalf("WriteBMP() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("BM")) {
		t.Error("WriteBMP() output lacks BM signature")
	}
}

func TestScale(t *testing.T) {
	f := Frame{Width: 4, Height: 4, Format: Luma8, Data: bytes.Repeat([]byte{200}, 16)}
	got := Scale(f, 2, 2)
	if got.Width != 2 || got.Height != 2 || got.Format != RGBA8 || len(got.Data) != 16 {
		t.Fatalf("Scale() = %dx%d %v, %d bytes", got.Width, got.Height, got.Format, len(got.Data))
	}
	if r, _, _ := got.RGB8(1, 1); r < 199 || r > 201 {
		t.Errorf("scaled flat image pixel = %d, want about 200", r)
	}
	if same := Scale(f, 4, 4); same.Format != Luma8 {
		t.Errorf("Scale() to the same size converted to %v", same.Format)
	}
}

func TestFromImageFlipsRows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(0, 1, color.RGBA{B: 255, A: 255})

	f := FromImage(img)
	// Buffer row 0 is the bottom row of the image.
	if r, g, b := f.RGB8(0, 0); r != 0 || g != 0 || b != 255 {
		t.Errorf("RGB8(0, 0) = %d %d %d, want blue", r, g, b)
	}
	if got := f.At(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("At(0, 0) = %v, want red", got)
	}
}

func TestRGBA8(t *testing.T) {
	f, err := NewFrame(2, 1, RGBA8, []byte{10, 20, 30, 0, 40, 50, 60, 0})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WritePPM(&buf, f); err != nil {
		t.Fatal(err)
	}
	if want := "P3\n2 1\n255\n10 20 30\n40 50 60\n"; buf.String() != want {
		t.Errorf("WritePPM() = %q, want %q", buf.String(), want)
	}
	if RGBA8.String() != "RGBA8" || RGBA8.BytesPerPixel() != 4 {
		t.Errorf("RGBA8 = %v, %d bytes", RGBA8, RGBA8.BytesPerPixel())
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	f := Frame{Width: 1, Height: 1, Format: Luma8, Data: []byte{7}}

	ppm := filepath.Join(dir, "out.ppm")
	if err := Save(ppm, f); err != nil {
		t.Fatalf("Save(ppm) error = %v", err)
	}
	b, _ := os.ReadFile(ppm)
	if !strings.HasPrefix(string(b), "P3\n1 1\n255\n7 7 7\n") {
		t.Errorf("ppm contents = %q", b)
	}

	bmpPath := filepath.Join(dir, "out.BMP")
	if err := Save(bmpPath, f); err != nil {
		t.Fatalf("Save(bmp) error = %v", err)
	}
	b, _ = os.ReadFile(bmpPath)
	if !bytes.HasPrefix(b, []byte("BM")) {
		t.Error("Save(.BMP) did not write BMP")
	}
}
