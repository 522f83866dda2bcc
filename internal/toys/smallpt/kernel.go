package smallpt

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/scene"
)

func init() {
	software.Register(EntryPoint, trace)
	software.Register(ToneMappingEntryPoint, toneMap)
}

// Argument slots of the SmallPTGPU kernel.
const (
	argSamples = iota
	argSeeds
	argCamera
	argSphereCount
	argSpheres
	argWidth
	argHeight
	argCurrentSample
)

// Argument slots of the ToneMapping kernel.
const (
	toneSamples = iota
	tonePixels
	toneWidth
	toneHeight
)

const (
	epsilon  = 0.01
	maxDepth = 6
)

// random advances the two-word seed and returns a value in [0, 1).
func random(s0, s1 *uint32) float32 {
	*s0 = 36969*(*s0&65535) + (*s0 >> 16)
	*s1 = 18000*(*s1&65535) + (*s1 >> 16)
	ires := (*s0 << 16) + *s1
	f := math.Float32frombits((ires & 0x007fffff) | 0x40000000)
	return (f - 2) / 2
}

type ray struct{ o, d scene.Vec }

type sphere struct {
	rad      float32
	p, e, c  scene.Vec
	material scene.Material
}

func (s *sphere) intersect(r ray) float32 {
	op := s.p.Sub(r.o)
	b := op.Dot(r.d)
	det := b*b - op.Dot(op) + s.rad*s.rad
	if det < 0 {
		return 0
	}
	det = math32.Sqrt(det)
	if t := b - det; t > epsilon {
		return t
	}
	if t := b + det; t > epsilon {
		return t
	}
	return 0
}

func vec(f []float32) scene.Vec { return scene.Vec{X: f[0], Y: f[1], Z: f[2]} }

func mul(a, b scene.Vec) scene.Vec { return scene.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z} }

// decodeSpheres reads n spheres from their device image.
func decodeSpheres(f []float32, u []uint32, n int) []sphere {
	out := make([]sphere, n)
	for i := range out {
		o := i * scene.SphereWords
		out[i] = sphere{
			rad:      f[o],
			p:        vec(f[o+1:]),
			e:        vec(f[o+4:]),
			c:        vec(f[o+7:]),
			material: scene.Material(u[o+10]),
		}
	}
	return out
}

func closest(spheres []sphere, r ray) (int, float32) {
	hit, best := -1, float32(math32.Inf(1))
	for i := range spheres {
		if t := spheres[i].intersect(r); t > 0 && t < best {
			hit, best = i, t
		}
	}
	return hit, best
}

// radiance follows one path from r and returns the light it gathers.
func radiance(spheres []sphere, r ray, s0, s1 *uint32) scene.Vec {
	var rad scene.Vec
	thr := scene.Vec{X: 1, Y: 1, Z: 1}
	for depth := 0; depth < maxDepth; depth++ {
		id, t := closest(spheres, r)
		if id < 0 {
			return rad
		}
		obj := &spheres[id]
		hit := r.o.Add(r.d.Scale(t))
		n := hit.Sub(obj.p).Norm()
		nl := n
		if n.Dot(r.d) >= 0 {
			nl = n.Scale(-1)
		}

		rad = rad.Add(mul(thr, obj.e))
		thr = mul(thr, obj.c)

		switch obj.material {
		case scene.Specular:
			r = ray{hit, r.d.Sub(n.Scale(2 * n.Dot(r.d)))}
		case scene.Refractive:
			refl := ray{hit, r.d.Sub(n.Scale(2 * n.Dot(r.d)))}
			into := n.Dot(nl) > 0
			const nc, nt = 1, 1.5
			nnt := float32(nt / nc)
			if into {
				nnt = nc / nt
			}
			ddn := r.d.Dot(nl)
			cos2t := 1 - nnt*nnt*(1-ddn*ddn)
			if cos2t < 0 {
				r = refl
				continue
			}
			sign := float32(-1)
			if into {
				sign = 1
			}
			tdir := r.d.Scale(nnt).Sub(n.Scale(sign * (ddn*nnt + math32.Sqrt(cos2t)))).Norm()
			a, b := float32(nt-nc), float32(nt+nc)
			r0 := a * a / (b * b)
			c := 1 - tdir.Dot(n)
			if into {
				c = 1 + ddn
			}
			re := r0 + (1-r0)*c*c*c*c*c
			tr := 1 - re
			p := 0.25 + 0.5*re
			if random(s0, s1) < p {
				thr = thr.Scale(re / p)
				r = refl
			} else {
				thr = thr.Scale(tr / (1 - p))
				r = ray{hit, tdir}
			}
		default:
			r1 := 2 * math32.Pi * random(s0, s1)
			r2 := random(s0, s1)
			r2s := math32.Sqrt(r2)
			w := nl
			axis := scene.Vec{X: 1}
			if math32.Abs(w.X) > 0.1 {
				axis = scene.Vec{Y: 1}
			}
			u := axis.Cross(w).Norm()
			v := w.Cross(u)
			d := u.Scale(math32.Cos(r1) * r2s).
				Add(v.Scale(math32.Sin(r1) * r2s)).
				Add(w.Scale(math32.Sqrt(1 - r2))).
				Norm()
			r = ray{hit, d}
		}
	}
	return rad
}

// trace is the host implementation of SmallPTGPU: one path per pixel,
// averaged into the sample buffer.
func trace(gid int, args *software.Args) {
	w, h := int(args.Uint32(argWidth)), int(args.Uint32(argHeight))
	if gid >= w*h {
		return
	}
	x, y := gid%w, gid/w

	seeds := args.Uint32s(argSeeds)
	s0, s1 := seeds[2*gid], seeds[2*gid+1]

	cam := args.Float32s(argCamera)
	orig, dir, cx, cy := vec(cam[0:]), vec(cam[6:]), vec(cam[9:]), vec(cam[12:])

	kcx := (float32(x)+random(&s0, &s1)-0.5)/float32(w) - 0.5
	kcy := (float32(y)+random(&s0, &s1)-0.5)/float32(h) - 0.5
	d := cx.Scale(kcx).Add(cy.Scale(kcy)).Add(dir)
	r := ray{o: orig.Add(d.Scale(0.1)), d: d.Norm()}

	n := int(args.Uint32(argSphereCount))
	spheres := decodeSpheres(args.Float32s(argSpheres), args.Uint32s(argSpheres), n)
	c := radiance(spheres, r, &s0, &s1)

	samples := args.Float32s(argSamples)[3*gid : 3*gid+3]
	if k := float32(args.Uint32(argCurrentSample)); k == 0 {
		samples[0], samples[1], samples[2] = c.X, c.Y, c.Z
	} else {
		inv := 1 / (k + 1)
		samples[0] = (samples[0]*k + c.X) * inv
		samples[1] = (samples[1]*k + c.Y) * inv
		samples[2] = (samples[2]*k + c.Z) * inv
	}
	seeds[2*gid], seeds[2*gid+1] = s0, s1
}

// toneMap clamps the averaged radiance and applies gamma 2.2.
func toneMap(gid int, args *software.Args) {
	w, h := int(args.Uint32(toneWidth)), int(args.Uint32(toneHeight))
	if gid >= w*h {
		return
	}
	src := args.Float32s(toneSamples)[3*gid : 3*gid+3]
	dst := args.Float32s(tonePixels)[3*gid : 3*gid+3]
	for i, v := range src {
		dst[i] = math32.Pow(min(max(v, 0), 1), 1/2.2)
	}
}
