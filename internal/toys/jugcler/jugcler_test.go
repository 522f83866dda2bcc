package jugcler

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/chewxy/math32"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/backend/software"
	"github.com/gogpu/toys/internal/toys/common"
	"github.com/gogpu/toys/scene"
)

func openToy(t *testing.T, w, h int) (*toys.Toy, *JugCLer) {
	t.Helper()
	b := software.New(software.DefaultConfig())
	t.Cleanup(b.Close)
	s, err := toys.Open(context.Background(), toys.SessionConfig{Backend: b})
	if err != nil {
		t.Fatal(err)
	}
	toy, j, err := New(s, common.Options{Width: w, Height: h})
	if err != nil {
		s.Close()
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { toy.Close() })
	return toy, j
}

func near(a, b float32) bool { return math32.Abs(a-b) < 1e-4 }

func nearVec(a, b scene.Vec) bool { return near(a.X, b.X) && near(a.Y, b.Y) && near(a.Z, b.Z) }

func TestEncode(t *testing.T) {
	sc := NewScene(32, 24)
	b := sc.Encode()
	if len(b) != SceneWords*4 {
		t.Fatalf("len(Encode()) = %d, want %d", len(b), SceneWords*4)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(b[4*i:]) }
	f := func(i int) float32 { return math.Float32frombits(word(i)) }

	if word(offWidth) != 32 || word(offHeight) != 24 || int(word(offCount)) != len(sc.Spheres) {
		t.Errorf("header = %d %d %d", word(offWidth), word(offHeight), word(offCount))
	}
	if f(offCamera+2) != 9 || f(offLight+1) != 10 {
		t.Errorf("camera z %v, light y %v", f(offCamera+2), f(offLight+1))
	}
	first := offSpheres
	if f(first+3) != ballRadius || f(first+7) != 0.85 {
		t.Errorf("ball radius %v, reflect %v", f(first+3), f(first+7))
	}
	for i := offSpheres + len(sc.Spheres)*SphereWords; i < SceneWords; i++ {
		if word(i) != 0 {
			t.Fatalf("unused word %d = %#x", i, word(i))
		}
	}
}

func TestBallPosition(t *testing.T) {
	tests := []struct {
		ball int
		t    float32
		want scene.Vec
	}{
		{0, 0, scene.Vec{X: -handX, Y: handY, Z: handZ}},
		{0, JugglePeriod / 4, scene.Vec{X: 0, Y: handY + throwApex, Z: handZ}},
		{0, JugglePeriod / 2, scene.Vec{X: handX, Y: handY, Z: handZ}},
		{0, 3 * JugglePeriod / 4, scene.Vec{X: 0, Y: handY + throwApex, Z: handZ}},
		{0, JugglePeriod, scene.Vec{X: -handX, Y: handY, Z: handZ}},
	}
	for _, tt := range tests {
		if got := BallPosition(tt.ball, tt.t); !nearVec(got, tt.want) {
			t.Errorf("BallPosition(%d, %v) = %+v, want %+v", tt.ball, tt.t, got, tt.want)
		}
	}
	// Balls are a third of a period apart.
	if a, b := BallPosition(1, 0), BallPosition(0, JugglePeriod/3); !nearVec(a, b) {
		t.Errorf("ball 1 at 0 = %+v, ball 0 a third later = %+v", a, b)
	}
}

func TestTickMovesBalls(t *testing.T) {
	sc := NewScene(16, 16)
	before := sc.Spheres[0].Center
	for range 10 {
		sc.Tick()
	}
	if !near(sc.Time, 10*TickSeconds) {
		t.Errorf("Time = %v, want %v", sc.Time, 10*TickSeconds)
	}
	if got := sc.Spheres[0].Center; nearVec(got, before) {
		t.Errorf("ball 0 did not move: %+v", got)
	}
	if got, want := sc.Spheres[0].Center, BallPosition(0, sc.Time); !nearVec(got, want) {
		t.Errorf("ball 0 = %+v, want %+v", got, want)
	}
}

func TestMoveSelectedSurvivesAnimation(t *testing.T) {
	sc := NewScene(16, 16)
	sc.SelectPrev()
	last := len(sc.Spheres) - 1
	if sc.Selected() != last {
		t.Fatalf("Selected() = %d, want %d", sc.Selected(), last)
	}
	y0 := sc.Spheres[last].Center.Y
	sc.MoveSelected(scene.Vec{Y: 1})
	if got := sc.Spheres[last].Center.Y; !near(got, y0+1) {
		t.Errorf("moved sphere y = %v, want %v", got, y0+1)
	}
	sc.Tick()
	if got, want := sc.Spheres[last].Center.Y, y0+1+bob(sc.Time); !near(got, want) {
		t.Errorf("after a tick y = %v, want %v", got, want)
	}
	if sc.SelectNext() != 0 {
		t.Error("SelectNext did not wrap")
	}
}

func TestTrace(t *testing.T) {
	wd := world{light: scene.Vec{X: 0.5, Y: 10, Z: 0.5}}
	if got := wd.trace(scene.Vec{Y: 1}, scene.Vec{Y: 1}); !nearVec(got, zenith) {
		t.Errorf("sky = %+v, want %+v", got, zenith)
	}

	// Straight down onto a lit tile: full diffuse plus the highlight.
	want := floorA.Add(scene.Vec{X: 0.6, Y: 0.6, Z: 0.6})
	if got := wd.trace(scene.Vec{X: 0.5, Y: 5, Z: 0.5}, scene.Vec{Y: -1}); !nearVec(got, want) {
		t.Errorf("lit floor = %+v, want %+v", got, want)
	}

	// The same point shadowed by a sphere between it and the light.
	wd.spheres = []Sphere{{Center: scene.Vec{X: 0.5, Y: 5, Z: 0.5}, Radius: 0.5, Color: scene.Vec{X: 1}}}
	o := scene.Vec{X: 3, Y: 1, Z: 0.5}
	d := scene.Vec{X: 0.5, Z: 0.5}.Sub(o).Norm()
	want = floorA.Scale(ambient + (1-ambient)*shadowGain)
	if got := wd.trace(o, d); !nearVec(got, want) {
		t.Errorf("shadowed floor = %+v, want %+v", got, want)
	}

	// A mirror ball reflects the sky above it.
	wd.spheres[0].Reflect = 1
	if got := wd.trace(scene.Vec{X: 0.5, Y: 8, Z: 0.5}, scene.Vec{Y: -1}); !nearVec(got, zenith) {
		t.Errorf("mirror = %+v, want %+v", got, zenith)
	}
}

func TestPack(t *testing.T) {
	if got := pack(scene.Vec{X: 1, Y: 0.5, Z: -3}); got != 0xff0080ff {
		t.Errorf("pack = %#x, want 0xff0080ff", got)
	}
}

func TestAdvance(t *testing.T) {
	toy, j := openToy(t, 16, 12)
	var fr toys.Frame
	var err error
	for i := range 3 {
		if fr, err = toy.Advance(context.Background()); err != nil {
			t.Fatal(err)
		}
		if fr.Stats.Passes != 1 || fr.Stats.Uploads != 1 {
			t.Errorf("frame %d: Passes = %d, Uploads = %d, want 1, 1", i, fr.Stats.Passes, fr.Stats.Uploads)
		}
	}
	// Unconditional uploads never restart the frame index.
	if fr.Stats.SampleIndex != 3 {
		t.Errorf("SampleIndex = %d, want 3", fr.Stats.SampleIndex)
	}
	if j.Mirror().Uploads() != 3 {
		t.Errorf("Uploads() = %d, want 3", j.Mirror().Uploads())
	}
	if !near(j.Scene.Time, 3*TickSeconds) {
		t.Errorf("Time = %v, want %v", j.Scene.Time, 3*TickSeconds)
	}

	if len(fr.Pixels) != 4*16*12 {
		t.Fatalf("len(Pixels) = %d", len(fr.Pixels))
	}
	colors := map[uint32]bool{}
	for i := 0; i < len(fr.Pixels); i += 4 {
		if fr.Pixels[i+3] != 0xff {
			t.Fatalf("pixel %d alpha = %d", i/4, fr.Pixels[i+3])
		}
		colors[binary.LittleEndian.Uint32(fr.Pixels[i:])] = true
	}
	if len(colors) < 3 {
		t.Errorf("only %d distinct colors", len(colors))
	}
	if !strings.Contains(fr.Caption, "Frame/sec]") {
		t.Errorf("Caption = %q", fr.Caption)
	}
}

func TestHandleKey(t *testing.T) {
	toy, j := openToy(t, 8, 8)
	orig := j.Scene.Camera.Orig
	for _, k := range []toys.Key{'w', 'a', 'r', toys.KeyLeft, toys.KeyPageUp} {
		if err := toy.HandleKey(k); err != nil {
			t.Fatalf("HandleKey(%v) error = %v", k, err)
		}
	}
	if j.Scene.Camera.Orig == orig {
		t.Error("camera did not move")
	}

	if err := toy.HandleKey('+'); err != nil || j.Scene.Selected() != 1 {
		t.Fatalf("select: err %v, Selected() = %d", err, j.Scene.Selected())
	}
	x := j.Scene.Spheres[1].Center.X
	if err := toy.HandleKey('6'); err != nil {
		t.Fatal(err)
	}
	if got := j.Scene.Spheres[1].Center.X; !near(got, x+SphereStep) {
		t.Errorf("selected x = %v, want %v", got, x+SphereStep)
	}
	if err := toy.HandleKey('x'); !errors.Is(err, toys.ErrUnhandledKey) {
		t.Errorf("HandleKey(x) error = %v", err)
	}
	if _, err := toy.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestResize(t *testing.T) {
	toy, j := openToy(t, 8, 8)
	if err := toy.Resize(12, 6); err != nil {
		t.Fatal(err)
	}
	if j.Scene.Width != 12 || j.Scene.Height != 6 {
		t.Fatalf("scene size = %dx%d", j.Scene.Width, j.Scene.Height)
	}
	fr, err := toy.Advance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fr.Pixels) != 4*12*6 {
		t.Errorf("len(Pixels) = %d", len(fr.Pixels))
	}
}

func TestCaptionUsesSmoothedRate(t *testing.T) {
	j := &JugCLer{Scene: NewScene(100, 100)}
	got := j.caption(toys.FrameStats{Elapsed: time.Second, Throughput: 300000})
	if want := "[30.0 Frame/sec][0.3M Sample/sec]"; got != want {
		t.Errorf("caption = %q, want %q", got, want)
	}
}
