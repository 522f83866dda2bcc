// Package julia is the quaternion Julia set toy: one ray-marching dispatch
// per frame, driven by a rendering configuration held in a read-only device
// buffer.
package julia

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/internal/toys/common"
	"github.com/gogpu/toys/pixels"
	"github.com/gogpu/toys/scene"
)

// EntryPoint is the kernel the toy dispatches.
const EntryPoint = "JuliaGPU"

var (
	//go:embed julia.wgsl
	wgslSource string

	//go:embed julia.cl
	openclSource string
)

// Edit steps.
const (
	MuStep         float32 = 0.01
	EpsilonScale   float32 = 0.75
	IterationsStep uint32  = 1
)

// ConfigWords is the number of 32-bit words in an encoded Config.
const ConfigWords = 32

// Config is the rendering configuration the kernel reads.
type Config struct {
	Width, Height uint32

	// Shadow casts a second ray toward the light.
	Shadow bool

	// SuperSampling is the per-axis sample count. FastRendering forces
	// one sample per pixel.
	SuperSampling uint32
	FastRendering bool

	MaxIterations uint32

	// Epsilon is the distance at which the marcher reports a hit.
	Epsilon float32

	Light scene.Vec

	// Mu is the quaternion constant of the set.
	Mu [4]float32

	Camera scene.Camera
}

// DefaultConfig returns the starting view.
func DefaultConfig(width, height int) Config {
	c := Config{
		Width:         uint32(width),
		Height:        uint32(height),
		Shadow:        true,
		SuperSampling: 2,
		FastRendering: true,
		MaxIterations: 9,
		Epsilon:       0.003 * EpsilonScale,
		Light:         scene.Vec{X: 5, Y: 10, Z: 15},
		Mu:            [4]float32{-0.2, 0.4, -0.4, -0.4},
		Camera: scene.Camera{
			Orig:   scene.Vec{X: 1, Y: 2, Z: 8},
			Target: scene.Vec{},
		},
	}
	c.Camera.Update(width, height)
	return c
}

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Encode returns the device image of c.
func (c *Config) Encode() []byte {
	b := make([]byte, 0, ConfigWords*4)
	for _, v := range []uint32{c.Width, c.Height, flag(c.Shadow), c.SuperSampling, flag(c.FastRendering), c.MaxIterations} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	f := []float32{c.Epsilon, c.Light.X, c.Light.Y, c.Light.Z}
	f = append(f, c.Mu[:]...)
	for _, v := range f {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	b = append(b, c.Camera.Encode()...)
	return append(b, make([]byte, ConfigWords*4-len(b))...)
}

// Julia is the toy state.
type Julia struct {
	Config Config

	pixels *toys.Buffer
	config *toys.Mirror
	kernel *toys.Kernel
}

// New builds the toy on s.
func New(s *toys.Session, opts common.Options) (*toys.Toy, *Julia, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	j := &Julia{Config: DefaultConfig(opts.Width, opts.Height)}

	bufs := s.Buffers()
	var err error
	if j.pixels, err = bufs.AllocateWriteOnly(12*opts.Width*opts.Height, "FrameBuffer"); err != nil {
		return nil, nil, err
	}
	configBuf, err := bufs.AllocateReadOnly(j.Config.Encode(), "RenderingConfig")
	if err != nil {
		return nil, nil, err
	}
	j.config = toys.NewMirror(configBuf, j.Config.Encode)

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
	if j.kernel, err = progs.Prepare(EntryPoint, opts.WorkGroupSize); err != nil {
		return nil, nil, err
	}
	err = j.kernel.Bind(toys.ArgTable{
		argPixels: toys.BufferArg(j.pixels),
		argConfig: toys.BufferArg(configBuf),
	})
	if err != nil {
		return nil, nil, err
	}

	budget := opts.Budget
	if budget == (toys.BudgetConfig{}) {
		budget = toys.FixedBudgetConfig()
	}
	p, err := toys.NewPipeline(s, toys.PipelineConfig{
		Accumulate:     j.kernel,
		FrameIndexSlot: toys.NoFrameIndex,
		Extent:         func() int { return int(j.Config.Width * j.Config.Height) },
		Display:        j.pixels,
		Mirrors:        []*toys.Mirror{j.config},
		Budget:         budget,
		Caption:        caption,
	})
	if err != nil {
		return nil, nil, err
	}

	t := &toys.Toy{
		Name:       "juliagpu",
		Session:    s,
		Pipeline:   p,
		Width:      opts.Width,
		Height:     opts.Height,
		Format:     pixels.RGBFloat32,
		OnKey:      j.HandleKey,
		OnResize:   j.resize,
		ExportPath: opts.ExportPath,
	}
	return t, j, nil
}

// Mirror returns the configuration mirror.
func (j *Julia) Mirror() *toys.Mirror { return j.config }

func (j *Julia) resize(w, h int) (int, int, error) {
	if err := j.pixels.Resize(12 * w * h); err != nil {
		return 0, 0, err
	}
	j.Config.Width, j.Config.Height = uint32(w), uint32(h)
	j.Config.Camera.Update(w, h)
	j.config.MarkDirty()
	return w, h, nil
}

// HandleKey edits the configuration. Arrows orbit the camera, w/s move it
// closer and further, +/- change the iteration count, 1 to 8 lower and
// raise the components of mu, l toggles shadows and f fast rendering.
func (j *Julia) HandleKey(k toys.Key) error {
	c := &j.Config
	switch k {
	case toys.KeyLeft:
		c.Camera.OrbitY(-scene.RotateStep)
	case toys.KeyRight:
		c.Camera.OrbitY(scene.RotateStep)
	case toys.KeyUp:
		c.Camera.OrbitX(-scene.RotateStep)
	case toys.KeyDown:
		c.Camera.OrbitX(scene.RotateStep)
	case 'w':
		c.Camera.Advance(scene.MoveStep)
	case 's':
		c.Camera.Advance(-scene.MoveStep)
	case '+':
		c.MaxIterations += IterationsStep
	case '-':
		c.MaxIterations = max(c.MaxIterations-IterationsStep, 1)
	case '1', '2', '3', '4', '5', '6', '7', '8':
		i := int(k-'1') / 2
		if (k-'1')%2 == 0 {
			c.Mu[i] -= MuStep
		} else {
			c.Mu[i] += MuStep
		}
	case 'l':
		c.Shadow = !c.Shadow
	case 'f':
		c.FastRendering = !c.FastRendering
	case ' ':
		return nil
	default:
		return toys.ErrUnhandledKey
	}
	c.Camera.Update(int(c.Width), int(c.Height))
	j.config.MarkDirty()
	return nil
}

func caption(st toys.FrameStats) string {
	return toys.Captionf("Rendering time: %.3f secs (Sample/sec %.1fK)",
		st.Elapsed.Seconds(), st.Throughput/1000)
}

// String describes the current view.
func (j *Julia) String() string {
	c := &j.Config
	return fmt.Sprintf("julia %dx%d mu %v iterations %d", c.Width, c.Height, c.Mu, c.MaxIterations)
}
