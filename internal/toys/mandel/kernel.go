package mandel

import (
	"github.com/gogpu/toys/backend/software"
)

func init() {
	software.Register(EntryPoint, kernel)
}

// Argument slots of the mandelGPU kernel.
const (
	argPixels = iota
	argWidth
	argHeight
	argScale
	argOffsetX
	argOffsetY
	argMaxIterations
)

// kernel is the host implementation of mandelGPU.
func kernel(gid int, args *software.Args) {
	pixels := args.Uint32s(argPixels)
	if gid >= len(pixels) {
		return
	}
	p := Params{
		Scale:         args.Float32(argScale),
		OffsetX:       args.Float32(argOffsetX),
		OffsetY:       args.Float32(argOffsetY),
		MaxIterations: args.Int32(argMaxIterations),
	}
	w, h := int(args.Uint32(argWidth)), int(args.Uint32(argHeight))

	var word uint32
	for i := range 4 {
		word |= uint32(shade(4*gid+i, w, h, p)) << (8 * i)
	}
	pixels[gid] = word
}

// shade returns the luminance of pixel tid.
func shade(tid, w, h int, p Params) uint8 {
	if tid >= w*h {
		return 0
	}
	size := float32(max(w, h))
	sx, sy := float32(tid%w), float32(tid/w)
	x0 := (sx*p.Scale-p.Scale*0.5*float32(w))/size + p.OffsetX
	y0 := (sy*p.Scale-p.Scale*0.5*float32(h))/size + p.OffsetY

	x, y := x0, y0
	x2, y2 := x*x, y*y
	var iter int32
	for ; x2+y2 <= 4 && iter < p.MaxIterations; iter++ {
		y = 2*x*y + y0
		x = x2 - y2 + x0
		x2, y2 = x*x, y*y
	}
	if iter >= p.MaxIterations {
		return 0
	}
	return uint8(255 * iter / p.MaxIterations)
}
