package scene

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
)

// Camera movement steps.
const (
	MoveStep   float32 = 0.5
	RotateStep float32 = 2 * math32.Pi / 180
)

// fieldOfView is the vertical field of view in radians.
const fieldOfView = math32.Pi / 180 * 45

// CameraWords is the number of 32-bit words in an encoded Camera.
const CameraWords = 15

// Camera is a pinhole camera. Orig and Target are the user-facing
// parameters; Dir, X and Y form the image plane basis derived by Update.
type Camera struct {
	Orig, Target Vec
	Dir, X, Y    Vec
}

// Update recomputes the basis for an image of width x height pixels.
// X spans the image width and Y the height; both are scaled by the field of
// view so the kernel can map pixel coordinates directly.
func (c *Camera) Update(width, height int) {
	c.Dir = c.Target.Sub(c.Orig).Norm()

	up := Vec{0, 1, 0}
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	c.X = c.Dir.Cross(up).Norm().Scale(aspect * fieldOfView)
	c.Y = c.X.Cross(c.Dir).Norm().Scale(fieldOfView)
}

// translate moves origin and target together.
func (c *Camera) translate(d Vec) {
	c.Orig = c.Orig.Add(d)
	c.Target = c.Target.Add(d)
}

// Strafe moves the camera sideways along its X axis. The basis must be
// current.
func (c *Camera) Strafe(step float32) { c.translate(c.X.Norm().Scale(step)) }

// Advance moves the camera along its viewing direction.
func (c *Camera) Advance(step float32) { c.translate(c.Dir.Scale(step)) }

// Lift moves the camera vertically.
func (c *Camera) Lift(step float32) { c.translate(Vec{0, step, 0}) }

// LiftTarget moves only the target vertically, tilting the view.
func (c *Camera) LiftTarget(step float32) { c.Target.Y += step }

// Pitch rotates the target around the origin about the X axis.
func (c *Camera) Pitch(angle float32) {
	c.Target = c.Target.Sub(c.Orig).RotateX(angle).Add(c.Orig)
}

// Yaw rotates the target around the origin about the Y axis.
func (c *Camera) Yaw(angle float32) {
	c.Target = c.Target.Sub(c.Orig).RotateY(angle).Add(c.Orig)
}

// OrbitY rotates the origin around the target about the Y axis.
func (c *Camera) OrbitY(angle float32) {
	c.Orig = c.Orig.Sub(c.Target).RotateY(angle).Add(c.Target)
}

// OrbitX rotates the origin around the target about the X axis.
func (c *Camera) OrbitX(angle float32) {
	c.Orig = c.Orig.Sub(c.Target).RotateX(angle).Add(c.Target)
}

// Encode returns the device image of the camera.
func (c *Camera) Encode() []byte {
	b := make([]byte, 0, CameraWords*4)
	for _, v := range []Vec{c.Orig, c.Target, c.Dir, c.X, c.Y} {
		b = appendVec(b, v)
	}
	return b
}

func appendVec(b []byte, v Vec) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v.X))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v.Y))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v.Z))
}
