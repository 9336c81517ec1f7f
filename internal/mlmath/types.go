// Package mlmath holds the vector types carried by actor properties and the
// fixed binary layout used to pack them.
package mlmath

import "math"

// Vec3 represents a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector.
type Vec4 struct {
	X, Y, Z, W float32
}

// Quaternion is a rotation stored as (x, y, z, w).
type Quaternion Vec4

// Transform is the presentation state a role hands to its set.
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec4(x, y, z, w float32) Vec4 {
	return Vec4{X: x, Y: y, Z: z, W: w}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Normalized returns v scaled to unit length, or v unchanged if it is zero.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.MulScalar(1 / l)
}

// Compare reports whether every component is within tolerance.
func (v Vec3) Compare(o Vec3, tolerance float32) bool {
	return near(v.X, o.X, tolerance) && near(v.Y, o.Y, tolerance) && near(v.Z, o.Z, tolerance)
}

func (v Vec4) Compare(o Vec4, tolerance float32) bool {
	return near(v.X, o.X, tolerance) && near(v.Y, o.Y, tolerance) &&
		near(v.Z, o.Z, tolerance) && near(v.W, o.W, tolerance)
}

func NewQuatIdentity() Quaternion {
	return Quaternion{W: 1}
}

// NewQuatFromAxisAngle builds a rotation of angle radians around axis.
func NewQuatFromAxisAngle(axis Vec3, angle float32) Quaternion {
	axis = axis.Normalized()
	s, c := math.Sincos(float64(angle) / 2)
	return Quaternion{
		X: float32(s) * axis.X,
		Y: float32(s) * axis.Y,
		Z: float32(s) * axis.Z,
		W: float32(c),
	}
}

// Mul composes q then o (Hamilton product q*o).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quaternion) Normalize() Quaternion {
	n := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if n == 0 {
		return NewQuatIdentity()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

func near(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a-b))) <= tolerance
}
