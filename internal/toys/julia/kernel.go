package julia

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/scene"
)

func init() {
	software.Register(EntryPoint, kernel)
}

// Argument slots of the JuliaGPU kernel.
const (
	argPixels = iota
	argConfig
)

// Word offsets inside an encoded Config.
const (
	offWidth = iota
	offHeight
	offShadow
	offSuperSampling
	offFastRendering
	offMaxIterations
	offEpsilon
	offLight
	offMu     = offLight + 3
	offCamera = offMu + 4
)

const (
	boundingRadius2 = 4
	escapeThreshold = 10
	gradientDelta   = 1e-4
	maxSteps        = 512
)

type quat [4]float32

func (a quat) add(b quat) quat { return quat{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]} }

func (a quat) mul(b quat) quat {
	return quat{
		a[0]*b[0] - a[1]*b[1] - a[2]*b[2] - a[3]*b[3],
		a[0]*b[1] + a[1]*b[0] + a[2]*b[3] - a[3]*b[2],
		a[0]*b[2] - a[1]*b[3] + a[2]*b[0] + a[3]*b[1],
		a[0]*b[3] + a[1]*b[2] - a[2]*b[1] + a[3]*b[0],
	}
}

func (a quat) sqr() quat {
	return quat{a[0]*a[0] - a[1]*a[1] - a[2]*a[2] - a[3]*a[3], 2 * a[0] * a[1], 2 * a[0] * a[2], 2 * a[0] * a[3]}
}

func (a quat) norm2() float32 { return a[0]*a[0] + a[1]*a[1] + a[2]*a[2] + a[3]*a[3] }

// params is the decoded Config seen by the kernel.
type params struct {
	width, height uint32
	shadow        bool
	superSampling uint32
	fast          bool
	maxIterations int
	epsilon       float32
	light         scene.Vec
	mu            quat
	orig, dir     scene.Vec
	x, y          scene.Vec
}

func vecAt(w []uint32, o int) scene.Vec {
	return scene.Vec{
		X: math.Float32frombits(w[o]),
		Y: math.Float32frombits(w[o+1]),
		Z: math.Float32frombits(w[o+2]),
	}
}

func decode(w []uint32) params {
	f := func(o int) float32 { return math.Float32frombits(w[o]) }
	return params{
		width:         w[offWidth],
		height:        w[offHeight],
		shadow:        w[offShadow] != 0,
		superSampling: w[offSuperSampling],
		fast:          w[offFastRendering] != 0,
		maxIterations: int(w[offMaxIterations]),
		epsilon:       f(offEpsilon),
		light:         vecAt(w, offLight),
		mu:            quat{f(offMu), f(offMu + 1), f(offMu + 2), f(offMu + 3)},
		orig:          vecAt(w, offCamera),
		dir:           vecAt(w, offCamera+6),
		x:             vecAt(w, offCamera+9),
		y:             vecAt(w, offCamera+12),
	}
}

// distance estimates the distance from p to the set.
func distance(p scene.Vec, mu quat, maxIterations int) float32 {
	z := quat{p.X, p.Y, p.Z, 0}
	zp := quat{1, 0, 0, 0}
	for range maxIterations {
		zp = z.mul(zp)
		zp = zp.add(zp)
		z = z.sqr().add(mu)
		if z.norm2() > escapeThreshold {
			break
		}
	}
	nz := math32.Sqrt(z.norm2())
	return 0.5 * nz * math32.Log(nz) / math32.Sqrt(zp.norm2())
}

// boundingSphere returns the distance along d at which the ray from o
// enters the sphere holding the set, or false when it misses.
func boundingSphere(o, d scene.Vec) (float32, bool) {
	b := 2 * d.Dot(o)
	c := o.Dot(o) - boundingRadius2
	disc := b*b - 4*c
	if disc < 0 {
		return 0, false
	}
	t := (-b - math32.Sqrt(disc)) / 2
	return max(t, 0), true
}

// march returns the hit point of the ray o+t*d, or false when the ray
// leaves the bounding sphere first.
func march(o, d scene.Vec, p *params) (scene.Vec, bool) {
	t, ok := boundingSphere(o, d)
	if !ok {
		return scene.Vec{}, false
	}
	pos := o.Add(d.Scale(t))
	for range maxSteps {
		dist := distance(pos, p.mu, p.maxIterations)
		if dist < p.epsilon {
			return pos, true
		}
		pos = pos.Add(d.Scale(dist))
		if pos.Dot(pos) > boundingRadius2+p.epsilon {
			return scene.Vec{}, false
		}
	}
	return pos, true
}

// normal estimates the surface normal at p by central differences.
func normal(pos scene.Vec, p *params) scene.Vec {
	g := func(d scene.Vec) float32 {
		a := quat{pos.X + d.X, pos.Y + d.Y, pos.Z + d.Z, 0}
		b := quat{pos.X - d.X, pos.Y - d.Y, pos.Z - d.Z, 0}
		for range p.maxIterations {
			a = a.sqr().add(p.mu)
			b = b.sqr().add(p.mu)
		}
		return math32.Sqrt(a.norm2()) - math32.Sqrt(b.norm2())
	}
	return scene.Vec{
		X: g(scene.Vec{X: gradientDelta}),
		Y: g(scene.Vec{Y: gradientDelta}),
		Z: g(scene.Vec{Z: gradientDelta}),
	}.Norm()
}

// shade returns the color seen along the ray o+t*d.
func shade(o, d scene.Vec, p *params) scene.Vec {
	hit, ok := march(o, d, p)
	if !ok {
		return scene.Vec{}
	}
	n := normal(hit, p)
	l := p.light.Sub(hit).Norm()
	diffuse := max(n.Dot(l), 0)
	if p.shadow && diffuse > 0 {
		if _, blocked := march(hit.Add(n.Scale(4*p.epsilon)), l, p); blocked {
			diffuse *= 0.4
		}
	}
	h := l.Sub(d).Norm()
	specular := math32.Pow(max(n.Dot(h), 0), 30)
	base := scene.Vec{X: 0.5 * (n.X + 1), Y: 0.5 * (n.Y + 1), Z: 0.5 * (n.Z + 1)}
	return base.Scale(0.15 + 0.85*diffuse).Add(scene.Vec{X: 1, Y: 1, Z: 1}.Scale(0.5 * specular))
}

// kernel is the host implementation of JuliaGPU.
func kernel(gid int, args *software.Args) {
	p := decode(args.Uint32s(argConfig))
	w, h := int(p.width), int(p.height)
	if gid >= w*h {
		return
	}
	x, y := gid%w, gid/w

	n := p.superSampling
	if p.fast || n == 0 {
		n = 1
	}
	var c scene.Vec
	for sy := range n {
		for sx := range n {
			u := (float32(x)+(float32(sx)+0.5)/float32(n))/float32(w) - 0.5
			v := (float32(y)+(float32(sy)+0.5)/float32(n))/float32(h) - 0.5
			d := p.x.Scale(u).Add(p.y.Scale(v)).Add(p.dir).Norm()
			c = c.Add(shade(p.orig, d, &p))
		}
	}
	c = c.Scale(1 / float32(n*n))

	out := args.Float32s(argPixels)[3*gid : 3*gid+3]
	out[0], out[1], out[2] = c.X, c.Y, c.Z
}
