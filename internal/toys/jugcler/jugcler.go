// Package jugcler is the animated juggler toy: mirror balls ray traced over a
// checkered floor, one dispatch per frame. The scene changes every frame, so
// its device image is uploaded unconditionally before each dispatch.
package jugcler

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/internal/toys/common"
	"github.com/gogpu/toys/pixels"
	"github.com/gogpu/toys/scene"
)

// EntryPoint is the kernel the toy dispatches.
const EntryPoint = "render_gpu"

var (
	//go:embed jugcler.wgsl
	wgslSource string

	//go:embed jugcler.cl
	openclSource string
)

// Scene layout on the device.
const (
	MaxSpheres   = 32
	HeaderWords  = 24
	SphereWords  = 8
	SceneWords   = HeaderWords + MaxSpheres*SphereWords
	TickSeconds  = float32(1) / 60
	JugglePeriod = float32(1.5)
)

// SphereStep is how far the movement keys push the selected sphere.
const SphereStep = 0.5 * scene.MoveStep

// Sphere is one scene primitive. Reflect is the mirror fraction of its
// color.
type Sphere struct {
	Center  scene.Vec
	Radius  float32
	Color   scene.Vec
	Reflect float32
}

// Balls is the number of juggled spheres. They come first in Scene.Spheres.
const Balls = 3

// Juggling geometry.
const (
	handX      = 0.9
	handY      = 2.0
	handZ      = 0.7
	throwApex  = 2.2
	bobHeight  = 0.06
	ballRadius = 0.32
)

// Scene is the host state of the juggler.
type Scene struct {
	Width, Height int
	Camera        scene.Camera
	Light         scene.Vec

	// Time is the animation clock in seconds.
	Time float32

	Spheres []Sphere

	// rest holds every sphere's position at Time 0, offsets the user's
	// displacement of it.
	rest     []scene.Vec
	offsets  []scene.Vec
	selected int
}

// NewScene returns the juggler for a width x height image.
func NewScene(width, height int) *Scene {
	skin := scene.Vec{X: 0.95, Y: 0.75, Z: 0.6}
	shirt := scene.Vec{X: 0.8, Y: 0.15, Z: 0.1}
	legs := scene.Vec{X: 0.15, Y: 0.2, Z: 0.6}
	mirror := scene.Vec{X: 0.9, Y: 0.9, Z: 0.95}

	sc := &Scene{
		Width:  width,
		Height: height,
		Camera: scene.Camera{
			Orig:   scene.Vec{X: 0, Y: 2.5, Z: 9},
			Target: scene.Vec{X: 0, Y: 2, Z: 0},
		},
		Light: scene.Vec{X: -5, Y: 10, Z: 8},
	}
	for range Balls {
		sc.Spheres = append(sc.Spheres, Sphere{Radius: ballRadius, Color: mirror, Reflect: 0.85})
	}
	body := []Sphere{
		{Center: scene.Vec{Y: 3.55}, Radius: 0.45, Color: skin},
		{Center: scene.Vec{Y: 2.55}, Radius: 0.7, Color: shirt},
		{Center: scene.Vec{Y: 1.75}, Radius: 0.6, Color: shirt},
		{Center: scene.Vec{X: -handX, Y: 2.6, Z: 0.2}, Radius: 0.22, Color: skin},
		{Center: scene.Vec{X: handX, Y: 2.6, Z: 0.2}, Radius: 0.22, Color: skin},
		{Center: scene.Vec{X: -handX, Y: handY - 0.25, Z: handZ - 0.1}, Radius: 0.18, Color: skin},
		{Center: scene.Vec{X: handX, Y: handY - 0.25, Z: handZ - 0.1}, Radius: 0.18, Color: skin},
		{Center: scene.Vec{X: -0.35, Y: 1.0}, Radius: 0.3, Color: legs},
		{Center: scene.Vec{X: 0.35, Y: 1.0}, Radius: 0.3, Color: legs},
		{Center: scene.Vec{X: -0.4, Y: 0.35}, Radius: 0.3, Color: legs},
		{Center: scene.Vec{X: 0.4, Y: 0.35}, Radius: 0.3, Color: legs},
	}
	sc.Spheres = append(sc.Spheres, body...)
	for _, s := range sc.Spheres {
		sc.rest = append(sc.rest, s.Center)
	}
	sc.offsets = make([]scene.Vec, len(sc.Spheres))
	sc.Camera.Update(width, height)
	sc.animate()
	return sc
}

// Tick advances the animation by one timer period.
func (sc *Scene) Tick() {
	sc.Time += TickSeconds
	sc.animate()
}

// BallPosition returns where ball i is at time t. Balls travel between the
// hands on parabolic arcs, a third of a period apart.
func BallPosition(i int, t float32) scene.Vec {
	s := t/JugglePeriod + float32(i)/Balls
	s -= math32.Floor(s)
	from, to := float32(-handX), float32(handX)
	u := 2 * s
	if s >= 0.5 {
		from, to = to, from
		u = 2 * (s - 0.5)
	}
	return scene.Vec{
		X: from + (to-from)*u,
		Y: handY + 4*throwApex*u*(1-u),
		Z: handZ,
	}
}

// bob is the body's vertical displacement at time t, two bounces per
// period.
func bob(t float32) float32 {
	return bobHeight * math32.Sin(4*math32.Pi*t/JugglePeriod)
}

func (sc *Scene) animate() {
	dy := bob(sc.Time)
	for i := range sc.Spheres {
		var c scene.Vec
		if i < Balls {
			c = BallPosition(i, sc.Time)
		} else {
			c = sc.rest[i].Add(scene.Vec{Y: dy})
		}
		sc.Spheres[i].Center = c.Add(sc.offsets[i])
	}
}

// Selected returns the index of the selected sphere.
func (sc *Scene) Selected() int { return sc.selected }

// SelectNext selects the following sphere, wrapping around.
func (sc *Scene) SelectNext() int {
	sc.selected = (sc.selected + 1) % len(sc.Spheres)
	return sc.selected
}

// SelectPrev selects the preceding sphere, wrapping around.
func (sc *Scene) SelectPrev() int {
	sc.selected = (sc.selected + len(sc.Spheres) - 1) % len(sc.Spheres)
	return sc.selected
}

// MoveSelected displaces the selected sphere. The displacement survives
// animation.
func (sc *Scene) MoveSelected(d scene.Vec) {
	sc.offsets[sc.selected] = sc.offsets[sc.selected].Add(d)
	sc.animate()
}

// Encode returns the device image of the scene: a header of size, sphere
// count, camera and light, then MaxSpheres sphere records.
func (sc *Scene) Encode() []byte {
	b := make([]byte, 0, SceneWords*4)
	b = binary.LittleEndian.AppendUint32(b, uint32(sc.Width))
	b = binary.LittleEndian.AppendUint32(b, uint32(sc.Height))
	b = binary.LittleEndian.AppendUint32(b, uint32(min(len(sc.Spheres), MaxSpheres)))
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, sc.Camera.Encode()...)
	b = appendFloats(b, sc.Light.X, sc.Light.Y, sc.Light.Z, 0, 0)
	for i, s := range sc.Spheres {
		if i == MaxSpheres {
			break
		}
		b = appendFloats(b, s.Center.X, s.Center.Y, s.Center.Z, s.Radius,
			s.Color.X, s.Color.Y, s.Color.Z, s.Reflect)
	}
	return append(b, make([]byte, SceneWords*4-len(b))...)
}

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// JugCLer is the toy state.
type JugCLer struct {
	Scene *Scene

	pixels *toys.Buffer
	mirror *toys.Mirror
}

// New builds the toy on s.
func New(s *toys.Session, opts common.Options) (*toys.Toy, *JugCLer, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	j := &JugCLer{Scene: NewScene(opts.Width, opts.Height)}

	sources, err := common.Select(s, common.Sources{
		WGSL:   []string{wgslSource},
		OpenCL: []string{openclSource},
	}, opts.KernelPath)
	if err != nil {
		return nil, nil, err
	}
	progs, err := common.Compile(s, sources, opts.Compile, EntryPoint)
	if err != nil {
		return nil, nil, err
	}
	k, err := progs.Prepare(EntryPoint, opts.WorkGroupSize)
	if err != nil {
		return nil, nil, err
	}

	bufs := s.Buffers()
	sceneBuf, err := bufs.AllocateReadOnly(j.Scene.Encode(), "SceneBuffer")
	if err != nil {
		return nil, nil, err
	}
	j.mirror = toys.NewMirror(sceneBuf, j.Scene.Encode, toys.AlwaysDirty())
	if j.pixels, err = bufs.AllocateWriteOnly(4*opts.Width*opts.Height, "PixelsBuffer"); err != nil {
		return nil, nil, err
	}
	err = k.Bind(toys.ArgTable{
		argScene:  toys.BufferArg(sceneBuf),
		argPixels: toys.BufferArg(j.pixels),
	})
	if err != nil {
		return nil, nil, err
	}

	budget := opts.Budget
	if budget == (toys.BudgetConfig{}) {
		budget = toys.FixedBudgetConfig()
	}
	p, err := toys.NewPipeline(s, toys.PipelineConfig{
		Accumulate:     k,
		FrameIndexSlot: toys.NoFrameIndex,
		Extent:         func() int { return j.Scene.Width * j.Scene.Height },
		Display:        j.pixels,
		Mirrors:        []*toys.Mirror{j.mirror},
		Budget:         budget,
		Caption:        j.caption,
	})
	if err != nil {
		return nil, nil, err
	}

	t := &toys.Toy{
		Name:       "jugcler",
		Session:    s,
		Pipeline:   p,
		Width:      opts.Width,
		Height:     opts.Height,
		Format:     pixels.RGBA8,
		OnKey:      j.HandleKey,
		OnResize:   j.resize,
		OnTick:     j.Scene.Tick,
		ExportPath: opts.ExportPath,
	}
	return t, j, nil
}

// Mirror returns the scene mirror.
func (j *JugCLer) Mirror() *toys.Mirror { return j.mirror }

func (j *JugCLer) resize(w, h int) (int, int, error) {
	if err := j.pixels.Resize(4 * w * h); err != nil {
		return 0, 0, err
	}
	j.Scene.Width, j.Scene.Height = w, h
	j.Scene.Camera.Update(w, h)
	return w, h, nil
}

// HandleKey moves the camera and the selected sphere. The scene is uploaded
// every frame, so edits need no further bookkeeping.
func (j *JugCLer) HandleKey(k toys.Key) error {
	sc := j.Scene
	cam := &sc.Camera
	switch k {
	case 'a':
		cam.Strafe(-scene.MoveStep)
	case 'd':
		cam.Strafe(scene.MoveStep)
	case 'w':
		cam.Advance(scene.MoveStep)
	case 's':
		cam.Advance(-scene.MoveStep)
	case 'r':
		cam.Lift(scene.MoveStep)
	case 'f':
		cam.Lift(-scene.MoveStep)
	case toys.KeyUp:
		cam.Pitch(-scene.RotateStep)
	case toys.KeyDown:
		cam.Pitch(scene.RotateStep)
	case toys.KeyLeft:
		cam.Yaw(-scene.RotateStep)
	case toys.KeyRight:
		cam.Yaw(scene.RotateStep)
	case toys.KeyPageUp:
		cam.LiftTarget(scene.MoveStep)
	case toys.KeyPageDown:
		cam.LiftTarget(-scene.MoveStep)
	case '+':
		toys.Logger().Info("jugcler: selected sphere", "index", sc.SelectNext())
		return nil
	case '-':
		toys.Logger().Info("jugcler: selected sphere", "index", sc.SelectPrev())
		return nil
	case '4':
		sc.MoveSelected(scene.Vec{X: -SphereStep})
		return nil
	case '6':
		sc.MoveSelected(scene.Vec{X: SphereStep})
		return nil
	case '8':
		sc.MoveSelected(scene.Vec{Z: -SphereStep})
		return nil
	case '2':
		sc.MoveSelected(scene.Vec{Z: SphereStep})
		return nil
	case '9':
		sc.MoveSelected(scene.Vec{Y: SphereStep})
		return nil
	case '3':
		sc.MoveSelected(scene.Vec{Y: -SphereStep})
		return nil
	default:
		return toys.ErrUnhandledKey
	}
	cam.Update(sc.Width, sc.Height)
	return nil
}

// caption reports the smoothed frame rate. One pass renders every pixel
// once, so frames per second is the throughput over the pixel count.
func (j *JugCLer) caption(st toys.FrameStats) string {
	fps := 0.0
	if n := j.Scene.Width * j.Scene.Height; n > 0 {
		fps = st.Throughput / float64(n)
	}
	return toys.Captionf("[%.1f Frame/sec][%.1fM Sample/sec]", fps, st.Throughput/1e6)
}

// String describes the animation state.
func (j *JugCLer) String() string {
	return fmt.Sprintf("jugcler %dx%d t=%.2fs", j.Scene.Width, j.Scene.Height, j.Scene.Time)
}
