// Package smallpt is the progressive path tracer toy. Every frame issues an
// adaptive number of accumulation passes followed by tone mapping.
package smallpt

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/gpucore"
	"github.com/gogpu/toys/internal/toys/common"
	"github.com/gogpu/toys/pixels"
	"github.com/gogpu/toys/scene"
)

// Kernel entry points.
const (
	EntryPoint            = "SmallPTGPU"
	ToneMappingEntryPoint = "ToneMapping"
)

var (
	//go:embed smallpt.wgsl
	wgslSource string

	//go:embed tonemap.wgsl
	wgslToneMapping string

	//go:embed smallpt.cl
	openclSource string

	//go:embed cornell.scn
	cornell []byte
)

// SphereStep is how far the movement keys push the selected sphere.
const SphereStep = 0.5 * scene.MoveStep

// DefaultScene returns the built-in Cornell box.
func DefaultScene() *scene.Scene {
	s, err := scene.Parse(bytes.NewReader(cornell))
	if err != nil {
		panic("smallpt: built-in scene: " + err.Error())
	}
	return s
}

// SmallPT is the toy state.
type SmallPT struct {
	Scene *scene.Scene

	width, height int
	rng           *rand.Rand

	samples, pixels, seeds *toys.Buffer
	camera, spheres        *toys.Mirror
	pipeline               *toys.Pipeline
}

// New builds the toy on s. The scene must already be parsed: scene errors
// never reach the device.
func New(s *toys.Session, sc *scene.Scene, opts common.Options) (*toys.Toy, *SmallPT, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	if len(sc.Spheres) == 0 {
		return nil, nil, fmt.Errorf("smallpt: scene has no spheres")
	}
	pt := &SmallPT{
		Scene:  sc,
		width:  opts.Width,
		height: opts.Height,
		rng:    rand.New(rand.NewPCG(uint64(opts.Width), uint64(opts.Height))),
	}
	sc.Camera.Update(pt.width, pt.height)

	sources, err := common.Select(s, common.Sources{
		WGSL:   []string{wgslSource, wgslToneMapping},
		OpenCL: []string{openclSource},
	}, opts.KernelPath)
	if err != nil {
		return nil, nil, err
	}
	progs, err := common.Compile(s, sources, opts.Compile, EntryPoint, ToneMappingEntryPoint)
	if err != nil {
		return nil, nil, err
	}
	trace, err := progs.Prepare(EntryPoint, opts.WorkGroupSize)
	if err != nil {
		return nil, nil, err
	}
	tone, err := progs.Prepare(ToneMappingEntryPoint, opts.WorkGroupSize)
	if err != nil {
		return nil, nil, err
	}

	bufs := s.Buffers()
	cameraBuf, err := bufs.AllocateReadOnly(sc.Camera.Encode(), "CameraBuffer")
	if err != nil {
		return nil, nil, err
	}
	spheresBuf, err := bufs.AllocateReadOnly(sc.EncodeSpheres(), "SpheresBuffer")
	if err != nil {
		return nil, nil, err
	}
	pt.camera = toys.NewMirror(cameraBuf, sc.Camera.Encode)
	pt.spheres = toys.NewMirror(spheresBuf, sc.EncodeSpheres)

	n := pt.width * pt.height
	if pt.samples, err = bufs.AllocateReadWrite(12*n, "SamplesBuffer"); err != nil {
		return nil, nil, err
	}
	if pt.pixels, err = bufs.AllocateWriteOnly(12*n, "PixelsBuffer"); err != nil {
		return nil, nil, err
	}
	if pt.seeds, err = bufs.AllocateReadWrite(8*n, "SeedsBuffer"); err != nil {
		return nil, nil, err
	}
	if err := bufs.Upload(pt.seeds, pt.newSeeds(n), true); err != nil {
		return nil, nil, err
	}

	width := toys.DynamicArg(func() gpucore.Scalar { return gpucore.Uint32(uint32(pt.width)) })
	height := toys.DynamicArg(func() gpucore.Scalar { return gpucore.Uint32(uint32(pt.height)) })
	err = trace.Bind(toys.ArgTable{
		argSamples:       toys.BufferArg(pt.samples),
		argSeeds:         toys.BufferArg(pt.seeds),
		argCamera:        toys.BufferArg(cameraBuf),
		argSphereCount:   toys.DynamicArg(func() gpucore.Scalar { return gpucore.Uint32(uint32(len(sc.Spheres))) }),
		argSpheres:       toys.BufferArg(spheresBuf),
		argWidth:         width,
		argHeight:        height,
		argCurrentSample: toys.Uint32Arg(0),
	})
	if err != nil {
		return nil, nil, err
	}
	err = tone.Bind(toys.ArgTable{
		toneSamples: toys.BufferArg(pt.samples),
		tonePixels:  toys.BufferArg(pt.pixels),
		toneWidth:   width,
		toneHeight:  height,
	})
	if err != nil {
		return nil, nil, err
	}

	budget := opts.Budget
	if budget == (toys.BudgetConfig{}) {
		budget = toys.DefaultBudgetConfig()
	}
	pt.pipeline, err = toys.NewPipeline(s, toys.PipelineConfig{
		Accumulate:     trace,
		FrameIndexSlot: argCurrentSample,
		Extent:         func() int { return pt.width * pt.height },
		PostProcess:    tone,
		Display:        pt.pixels,
		Mirrors:        []*toys.Mirror{pt.camera, pt.spheres},
		Budget:         budget,
	})
	if err != nil {
		return nil, nil, err
	}

	t := &toys.Toy{
		Name:       "smallptgpu",
		Session:    s,
		Pipeline:   pt.pipeline,
		Width:      pt.width,
		Height:     pt.height,
		Format:     pixels.RGBFloat32,
		OnKey:      pt.HandleKey,
		OnResize:   pt.resize,
		ExportPath: opts.ExportPath,
	}
	return t, pt, nil
}

// newSeeds returns 2*n random words, each at least 2.
func (pt *SmallPT) newSeeds(n int) []byte {
	b := make([]byte, 0, 8*n)
	for range 2 * n {
		b = binary.LittleEndian.AppendUint32(b, max(pt.rng.Uint32(), 2))
	}
	return b
}

// Size returns the frame size.
func (pt *SmallPT) Size() (width, height int) { return pt.width, pt.height }

// Mirrors returns the camera and sphere mirrors.
func (pt *SmallPT) Mirrors() (camera, spheres *toys.Mirror) { return pt.camera, pt.spheres }

func (pt *SmallPT) resize(w, h int) (int, int, error) {
	pt.width, pt.height = w, h
	n := w * h
	for _, b := range []*toys.Buffer{pt.samples, pt.pixels} {
		if err := b.Resize(12 * n); err != nil {
			return 0, 0, err
		}
	}
	if err := pt.seeds.ResizeWith(pt.newSeeds(n)); err != nil {
		return 0, 0, err
	}
	pt.Scene.Camera.Update(w, h)
	pt.camera.MarkDirty()
	return w, h, nil
}

// HandleKey applies the camera and scene edits. Every edit marks the
// matching mirror dirty, which restarts accumulation on the next frame.
func (pt *SmallPT) HandleKey(k toys.Key) error {
	cam := &pt.Scene.Camera
	moved := true
	switch k {
	case ' ':
		pt.pipeline.RestartAccumulation()
		return nil
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
	default:
		moved = false
	}
	if moved {
		cam.Update(pt.width, pt.height)
		pt.camera.MarkDirty()
		return nil
	}

	sc := pt.Scene
	switch k {
	case '+':
		sc.SelectNext()
		pt.logSelection()
	case '-':
		sc.SelectPrev()
		pt.logSelection()
	case '4':
		sc.MoveSelected(scene.Vec{X: -SphereStep})
	case '6':
		sc.MoveSelected(scene.Vec{X: SphereStep})
	case '8':
		sc.MoveSelected(scene.Vec{Z: -SphereStep})
	case '2':
		sc.MoveSelected(scene.Vec{Z: SphereStep})
	case '9':
		sc.MoveSelected(scene.Vec{Y: SphereStep})
	case '3':
		sc.MoveSelected(scene.Vec{Y: -SphereStep})
	default:
		return toys.ErrUnhandledKey
	}
	pt.spheres.MarkDirty()
	return nil
}

func (pt *SmallPT) logSelection() {
	i := pt.Scene.Selected()
	p := pt.Scene.Spheres[i].Position
	toys.Logger().Info("smallpt: selected sphere", "index", i, "x", p.X, "y", p.Y, "z", p.Z)
}
