// Package pixels interprets the display buffers read back from the device
// and exports them as images.
//
// Display buffers follow the OpenGL convention: row 0 is the bottom of the
// image. Frame flips rows when viewed as an [image.Image] and when exported,
// so files come out top row first.
package pixels

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Format is the layout of a display buffer.
type Format int

// Display buffer formats.
const (
	// Luma8 is one byte of luminance per pixel.
	Luma8 Format = iota

	// RGBFloat32 is three little-endian float32 channels per pixel,
	// nominally in [0, 1].
	RGBFloat32

	// RGBA8 is four bytes per pixel, red first. Alpha is ignored.
	RGBA8
)

// BytesPerPixel returns the size of one pixel in f.
func (f Format) BytesPerPixel() int {
	switch f {
	case Luma8:
		return 1
	case RGBFloat32:
		return 12
	case RGBA8:
		return 4
	default:
		return 0
	}
}

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case Luma8:
		return "Luma8"
	case RGBFloat32:
		return "RGBFloat32"
	case RGBA8:
		return "RGBA8"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Frame is a read-back display buffer. Data may be longer than
// Width*Height*BytesPerPixel; trailing bytes are ignored.
type Frame struct {
	Width, Height int
	Format        Format
	Data          []byte
}

// NewFrame wraps data, checking that it holds a full image.
func NewFrame(width, height int, format Format, data []byte) (Frame, error) {
	f := Frame{Width: width, Height: height, Format: format, Data: data}
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("pixels: invalid size %dx%d", width, height)
	}
	if bpp := format.BytesPerPixel(); bpp == 0 {
		return Frame{}, fmt.Errorf("pixels: unknown format %v", format)
	}
	if need := f.Size(); len(data) < need {
		return Frame{}, fmt.Errorf("pixels: %v frame %dx%d needs %d bytes, have %d", format, width, height, need, len(data))
	}
	return f, nil
}

// Size returns the number of bytes of image data.
func (f Frame) Size() int { return f.Width * f.Height * f.Format.BytesPerPixel() }

// RGB8 returns the 8-bit color of the pixel at column x of buffer row y.
// Float channels are clamped to [0, 1] and rounded to the nearest step.
func (f Frame) RGB8(x, y int) (r, g, b uint8) {
	i := y*f.Width + x
	switch f.Format {
	case Luma8:
		v := f.Data[i]
		return v, v, v
	case RGBFloat32:
		o := i * 12
		return toByte(f.Data[o:]), toByte(f.Data[o+4:]), toByte(f.Data[o+8:])
	case RGBA8:
		o := i * 4
		return f.Data[o], f.Data[o+1], f.Data[o+2]
	default:
		return 0, 0, 0
	}
}

func toByte(b []byte) uint8 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(b))
	v = min(max(v, 0), 1)
	return uint8(v*255 + .5)
}

// At implements the image.Image interface. Image row 0 is the top.
func (f Frame) At(x, y int) color.Color {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return color.RGBA{}
	}
	r, g, b := f.RGB8(x, f.Height-1-y)
	if f.Format == Luma8 {
		return color.Gray{Y: r}
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Bounds implements the image.Image interface.
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// ColorModel implements the image.Image interface.
func (f Frame) ColorModel() color.Model {
	if f.Format == Luma8 {
		return color.GrayModel
	}
	return color.RGBAModel
}

// ToImage converts the frame to an image.RGBA, top row first.
func (f Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	for y := range f.Height {
		row := img.Pix[y*img.Stride:]
		for x := range f.Width {
			r, g, b := f.RGB8(x, f.Height-1-y)
			row[x*4+0] = r
			row[x*4+1] = g
			row[x*4+2] = b
			row[x*4+3] = 0xff
		}
	}
	return img
}

// FromImage converts img to an RGBA8 frame, flipping rows so buffer row 0
// is the bottom of the image.
func FromImage(img *image.RGBA) Frame {
	b := img.Bounds()
	f := Frame{Width: b.Dx(), Height: b.Dy(), Format: RGBA8}
	f.Data = make([]byte, f.Size())
	for y := range f.Height {
		src := img.Pix[y*img.Stride : y*img.Stride+4*f.Width]
		copy(f.Data[(f.Height-1-y)*4*f.Width:], src)
	}
	return f
}
