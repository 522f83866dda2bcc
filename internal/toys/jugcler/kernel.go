package jugcler

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/scene"
)

func init() {
	software.Register(EntryPoint, kernel)
}

// Argument slots of render_gpu.
const (
	argScene = iota
	argPixels
)

// Word offsets inside an encoded Scene.
const (
	offWidth   = 0
	offHeight  = 1
	offCount   = 2
	offCamera  = 4
	offLight   = offCamera + scene.CameraWords
	offSpheres = HeaderWords
)

const (
	maxDepth   = 4
	rayEpsilon = 1e-3
	shadowGain = 0.35
	ambient    = 0.2
	shininess  = 40
	noSurface  = -1
)

var (
	floorA  = scene.Vec{X: 1, Y: 0.85, Z: 0.1}
	floorB  = scene.Vec{X: 0.1, Y: 0.55, Z: 0.1}
	horizon = scene.Vec{X: 0.75, Y: 0.85, Z: 1}
	zenith  = scene.Vec{X: 0.15, Y: 0.25, Z: 0.75}
)

// world is the decoded Scene seen by the kernel.
type world struct {
	width, height int
	orig, dir     scene.Vec
	x, y          scene.Vec
	light         scene.Vec
	spheres       []Sphere
}

func decode(w []uint32) world {
	f := func(o int) float32 { return math.Float32frombits(w[o]) }
	v := func(o int) scene.Vec { return scene.Vec{X: f(o), Y: f(o + 1), Z: f(o + 2)} }
	wd := world{
		width:  int(w[offWidth]),
		height: int(w[offHeight]),
		orig:   v(offCamera),
		dir:    v(offCamera + 6),
		x:      v(offCamera + 9),
		y:      v(offCamera + 12),
		light:  v(offLight),
	}
	n := min(int(w[offCount]), MaxSpheres)
	wd.spheres = make([]Sphere, n)
	for i := range n {
		o := offSpheres + i*SphereWords
		wd.spheres[i] = Sphere{Center: v(o), Radius: f(o + 3), Color: v(o + 4), Reflect: f(o + 7)}
	}
	return wd
}

// intersect returns the distance to the nearest sphere along the ray and its
// index, or noSurface.
func (wd *world) intersect(o, d scene.Vec) (float32, int) {
	best, hit := float32(math.MaxFloat32), noSurface
	for i, s := range wd.spheres {
		op := s.Center.Sub(o)
		b := op.Dot(d)
		det := b*b - op.Dot(op) + s.Radius*s.Radius
		if det < 0 {
			continue
		}
		det = math32.Sqrt(det)
		t := b - det
		if t <= rayEpsilon {
			t = b + det
		}
		if t > rayEpsilon && t < best {
			best, hit = t, i
		}
	}
	return best, hit
}

// floor returns the distance to the y = 0 plane along the ray.
func floor(o, d scene.Vec) (float32, bool) {
	if d.Y >= 0 {
		return 0, false
	}
	t := -o.Y / d.Y
	return t, t > rayEpsilon
}

func checker(p scene.Vec) scene.Vec {
	if (int(math32.Floor(p.X))+int(math32.Floor(p.Z)))&1 == 0 {
		return floorA
	}
	return floorB
}

func sky(d scene.Vec) scene.Vec {
	k := max(d.Y, 0)
	return horizon.Scale(1 - k).Add(zenith.Scale(k))
}

// trace follows a ray through up to maxDepth mirror bounces.
func (wd *world) trace(o, d scene.Vec) scene.Vec {
	var c scene.Vec
	weight := float32(1)
	for range maxDepth {
		t, i := wd.intersect(o, d)
		var p, n, base scene.Vec
		var reflect float32
		if tf, ok := floor(o, d); ok && tf < t {
			p = o.Add(d.Scale(tf))
			n = scene.Vec{Y: 1}
			base = checker(p)
		} else if i != noSurface {
			s := wd.spheres[i]
			p = o.Add(d.Scale(t))
			n = p.Sub(s.Center).Norm()
			base, reflect = s.Color, s.Reflect
		} else {
			return c.Add(sky(d).Scale(weight))
		}

		l := wd.light.Sub(p)
		dist := l.Len()
		l = l.Scale(1 / dist)
		diffuse := max(n.Dot(l), 0)
		specular := float32(0)
		if ts, blocker := wd.intersect(p.Add(n.Scale(rayEpsilon)), l); blocker != noSurface && ts < dist {
			diffuse *= shadowGain
		} else if diffuse > 0 {
			specular = math32.Pow(max(n.Dot(l.Sub(d).Norm()), 0), shininess)
		}
		local := base.Scale(ambient + (1-ambient)*diffuse).Add(scene.Vec{X: 1, Y: 1, Z: 1}.Scale(0.6 * specular))
		c = c.Add(local.Scale(weight * (1 - reflect)))

		weight *= reflect
		if weight < 0.01 {
			break
		}
		o = p.Add(n.Scale(rayEpsilon))
		d = d.Sub(n.Scale(2 * d.Dot(n)))
	}
	return c
}

func pack(c scene.Vec) uint32 {
	ch := func(v float32) uint32 { return uint32(min(max(v, 0), 1)*255 + 0.5) }
	return ch(c.X) | ch(c.Y)<<8 | ch(c.Z)<<16 | 0xff<<24
}

// kernel is the host implementation of render_gpu.
func kernel(gid int, args *software.Args) {
	wd := decode(args.Uint32s(argScene))
	if gid >= wd.width*wd.height {
		return
	}
	x, y := gid%wd.width, gid/wd.width
	u := (float32(x)+0.5)/float32(wd.width) - 0.5
	v := (float32(y)+0.5)/float32(wd.height) - 0.5
	d := wd.x.Scale(u).Add(wd.y.Scale(v)).Add(wd.dir).Norm()
	args.Uint32s(argPixels)[gid] = pack(wd.trace(wd.orig, d))
}
