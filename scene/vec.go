package scene

import "github.com/chewxy/math32"

// Vec is a 3-component float32 vector.
type Vec struct {
	X, Y, Z float32
}

// Add returns v+w.
func (v Vec) Add(w Vec) Vec { return Vec{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Sub returns v-w.
func (v Vec) Sub(w Vec) Vec { return Vec{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }

// Scale returns v*s.
func (v Vec) Scale(s float32) Vec { return Vec{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and w.
func (v Vec) Dot(w Vec) float32 { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }

// Cross returns the cross product v x w.
func (v Vec) Cross(w Vec) Vec {
	return Vec{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Len returns the Euclidean length of v.
func (v Vec) Len() float32 { return math32.Sqrt(v.Dot(v)) }

// Norm returns v scaled to unit length. The zero vector is returned as is.
func (v Vec) Norm() Vec {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// RotateX rotates v around the X axis by angle radians.
func (v Vec) RotateX(angle float32) Vec {
	s, c := math32.Sin(angle), math32.Cos(angle)
	return Vec{v.X, v.Y*c + v.Z*s, -v.Y*s + v.Z*c}
}

// RotateY rotates v around the Y axis by angle radians.
func (v Vec) RotateY(angle float32) Vec {
	s, c := math32.Sin(angle), math32.Cos(angle)
	return Vec{v.X*c - v.Z*s, v.Y, v.X*s + v.Z*c}
}
