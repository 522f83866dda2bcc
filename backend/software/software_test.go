package software

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/toys/gpucore"
)

const scaleSource = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(32)
fn testScale(@builtin(global_invocation_id) gid: vec3<u32>) {}
`

func init() {
	// testScale multiplies buffer 0 by scalar 2 over the first n elements,
	// n being scalar 1.
	Register("testScale", func(gid int, args *Args) {
		if gid >= int(args.Uint32(1)) {
			return
		}
		data := args.Float32s(0)
		data[gid] *= args.Float32(2)
	})
}

// openTest returns a context and queue over the default CPU device.
func openTest(t *testing.T) (*Backend, gpucore.Context, gpucore.Queue) {
	t.Helper()
	b := New(DefaultConfig())
	t.Cleanup(b.Close)

	plats, err := b.Platforms()
	if err != nil || len(plats) != 1 {
		t.Fatalf("Platforms() = %v, %v", plats, err)
	}
	devs, err := plats[0].Devices(gpucore.DeviceTypeAll)
	if err != nil || len(devs) != 1 {
		t.Fatalf("Devices() = %v, %v", devs, err)
	}
	ctx, err := b.CreateContext(devs)
	if err != nil {
		t.Fatalf("CreateContext() error = %v", err)
	}
	t.Cleanup(ctx.Release)
	q, err := ctx.CreateQueue(devs[0])
	if err != nil {
		t.Fatalf("CreateQueue() error = %v", err)
	}
	return b, ctx, q
}

func floatsToBytes(v []float32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func TestDeviceFilter(t *testing.T) {
	b := New(Config{Platforms: []PlatformConfig{
		{Name: "A", Devices: []gpucore.DeviceInfo{
			{Name: "cpu0", Type: gpucore.DeviceTypeCPU},
			{Name: "gpu0", Type: gpucore.DeviceTypeGPU},
			{Name: "gpu1", Type: gpucore.DeviceTypeGPU},
		}},
	}})
	plats, _ := b.Platforms()

	tests := []struct {
		filter gpucore.DeviceType
		want   []string
	}{
		{gpucore.DeviceTypeAll, []string{"cpu0", "gpu0", "gpu1"}},
		{gpucore.DeviceTypeGPU, []string{"gpu0", "gpu1"}},
		{gpucore.DeviceTypeCPU, []string{"cpu0"}},
		{gpucore.DeviceTypeDefault, []string{"cpu0"}},
	}
	for _, tt := range tests {
		devs, err := plats[0].Devices(tt.filter)
		if err != nil {
			t.Fatalf("Devices(%v) error = %v", tt.filter, err)
		}
		var got []string
		for _, d := range devs {
			got = append(got, d.Info().Name)
			if d.Info().Platform != "A" {
				t.Errorf("device %s platform = %q, want A", d.Info().Name, d.Info().Platform)
			}
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Devices(%v) = %v, want %v", tt.filter, got, tt.want)
		}
	}
}

func TestBufferRoundTrip(t *testing.T) {
	be, ctx, q := openTest(t)

	data := []byte("0123456789abcdef0123")
	buf, err := ctx.CreateBuffer(gpucore.BufferDesc{Label: "rt", Size: len(data), Access: gpucore.AccessReadWrite})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := q.WriteBuffer(buf, data, true); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}
	got := make([]byte, len(data))
	if err := q.ReadBuffer(buf, got, true); err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip = %q, want %q", got, data)
	}

	st := be.Stats()
	if st.Writes != 1 || st.Reads != 1 || st.BytesWritten != 20 || st.Allocations != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestBufferInitAndErrors(t *testing.T) {
	_, ctx, q := openTest(t)

	seed := []byte{1, 2, 3, 4}
	buf, err := ctx.CreateBuffer(gpucore.BufferDesc{Label: "ro", Size: 4, Access: gpucore.AccessReadOnly, Init: seed})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	got := make([]byte, 4)
	_ = q.ReadBuffer(buf, got, true)
	if !bytes.Equal(got, seed) {
		t.Errorf("initial contents = %v, want %v", got, seed)
	}

	if err := q.WriteBuffer(buf, make([]byte, 8), true); !errors.Is(err, gpucore.ErrSizeMismatch) {
		t.Errorf("oversized write error = %v, want ErrSizeMismatch", err)
	}

	buf.Release()
	if err := q.ReadBuffer(buf, got, true); !errors.Is(err, gpucore.ErrReleased) {
		t.Errorf("read after release error = %v, want ErrReleased", err)
	}

	if _, err := ctx.CreateBuffer(gpucore.BufferDesc{Size: 0, Access: gpucore.AccessReadOnly}); err == nil {
		t.Error("zero-size buffer accepted")
	}
	if _, err := ctx.CreateBuffer(gpucore.BufferDesc{Size: 4}); err == nil {
		t.Error("buffer without access mode accepted")
	}
}

func TestProgramBuild(t *testing.T) {
	_, ctx, _ := openTest(t)
	dev := ctx.Devices()[0]

	p, err := ctx.CreateProgram(dev, scaleSource, gpucore.BuildOptions{})
	if err != nil {
		t.Fatalf("CreateProgram() error = %v", err)
	}
	if !strings.Contains(p.BuildLog(), "testScale") {
		t.Errorf("BuildLog() = %q", p.BuildLog())
	}
	k, err := p.Kernel("testScale")
	if err != nil {
		t.Fatalf("Kernel() error = %v", err)
	}
	if size, _ := k.PreferredWorkGroupSize(); size != 32 {
		t.Errorf("PreferredWorkGroupSize() = %d, want 32", size)
	}
	if _, err := p.Kernel("nope"); !errors.Is(err, gpucore.ErrEntryPointNotFound) {
		t.Errorf("Kernel(nope) error = %v, want ErrEntryPointNotFound", err)
	}
}

func TestProgramBuildErrors(t *testing.T) {
	_, ctx, _ := openTest(t)
	dev := ctx.Devices()[0]

	tests := []struct {
		name    string
		src     string
		wantLog string
	}{
		{"no entry points", "fn helper() {}", "no compute entry points"},
		{"unregistered", "@compute @workgroup_size(1) fn ghost() {}", `kernel "ghost"`},
		{"missing include", "#include \"nowhere.wgsl\"\n" + scaleSource, "include not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.CreateProgram(dev, tt.src, gpucore.BuildOptions{})
			var be *gpucore.BuildError
			if !errors.As(err, &be) {
				t.Fatalf("CreateProgram() error = %v, want *BuildError", err)
			}
			if !strings.Contains(be.Log, tt.wantLog) {
				t.Errorf("build log %q does not contain %q", be.Log, tt.wantLog)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	be, ctx, q := openTest(t)
	dev := ctx.Devices()[0]

	const n = 100
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(i)
	}
	buf, _ := ctx.CreateBuffer(gpucore.BufferDesc{Label: "data", Size: n * 4, Access: gpucore.AccessReadWrite, Init: floatsToBytes(in)})

	p, _ := ctx.CreateProgram(dev, scaleSource, gpucore.BuildOptions{})
	k, _ := p.Kernel("testScale")
	_ = k.SetBuffer(0, buf)
	_ = k.SetScalar(1, gpucore.Uint32(n))
	_ = k.SetScalar(2, gpucore.Float32(3))

	// 128 work-items: the kernel masks the 28 extra invocations.
	if err := q.Dispatch(k, 128, 32); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := q.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	out := make([]byte, n*4)
	_ = q.ReadBuffer(buf, out, true)
	for i := range n {
		got := gpucore.Scalar{Kind: gpucore.ScalarFloat32, Bits: binary.LittleEndian.Uint32(out[i*4:])}.Float32()
		if got != float32(i)*3 {
			t.Fatalf("data[%d] = %v, want %v", i, got, float32(i)*3)
		}
	}

	st := be.Stats()
	if st.Dispatches != 1 || st.Invocations != 128 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestDispatchErrors(t *testing.T) {
	_, ctx, q := openTest(t)
	dev := ctx.Devices()[0]
	p, _ := ctx.CreateProgram(dev, scaleSource, gpucore.BuildOptions{})
	k, _ := p.Kernel("testScale")

	// Slot 1 left unbound.
	buf, _ := ctx.CreateBuffer(gpucore.BufferDesc{Label: "data", Size: 16, Access: gpucore.AccessReadWrite})
	_ = k.SetBuffer(0, buf)
	_ = k.SetScalar(2, gpucore.Float32(1))
	if err := q.Dispatch(k, 4, 4); err == nil || !strings.Contains(err.Error(), "argument 1 not set") {
		t.Errorf("Dispatch() with gap error = %v", err)
	}

	// Wrong scalar kind panics inside the kernel and is reported.
	_ = k.SetScalar(1, gpucore.Int32(4))
	if err := q.Dispatch(k, 4, 4); err == nil || !strings.Contains(err.Error(), "not a u32 scalar") {
		t.Errorf("Dispatch() with wrong kind error = %v", err)
	}

	_ = k.SetScalar(1, gpucore.Uint32(4))
	buf.Release()
	if err := q.Dispatch(k, 4, 4); !errors.Is(err, gpucore.ErrReleased) {
		t.Errorf("Dispatch() with released buffer error = %v, want ErrReleased", err)
	}

	if err := q.Dispatch(k, 4, 4096); err == nil {
		t.Error("Dispatch() above device limit accepted")
	}
}

func TestCreateContextForeignDevice(t *testing.T) {
	a := New(DefaultConfig())
	b := New(DefaultConfig())
	plats, _ := a.Platforms()
	devs, _ := plats[0].Devices(gpucore.DeviceTypeAll)
	if _, err := b.CreateContext(devs); !errors.Is(err, gpucore.ErrForeignResource) {
		t.Errorf("CreateContext(foreign) error = %v, want ErrForeignResource", err)
	}
}
