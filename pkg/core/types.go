// pkg/core/types.go
package core

import (
	"fmt"
	"math"
)

// Vec3 is a point or direction in simulator world space (meters).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec3FromSlice converts a 3-element tuple, as found in config and layout
// files, into a Vec3.
func Vec3FromSlice(field string, v []float64) (Vec3, error) {
	if len(v) != 3 {
		return Vec3{}, fmt.Errorf("%w: %s must have 3 values (x, y, z), got %d", ErrInvalidConfiguration, field, len(v))
	}
	return Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Slice returns the vector as the [x, y, z] tuple the simulator expects.
func (v Vec3) Slice() []float64 {
	return []float64{v.X, v.Y, v.Z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Norm returns the euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Quat is a rotation quaternion in the simulator's (x, y, z, w) order.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// QuatFromSlice converts a 4-element (x, y, z, w) tuple into a Quat.
func QuatFromSlice(field string, v []float64) (Quat, error) {
	if len(v) != 4 {
		return Quat{}, fmt.Errorf("%w: %s must have 4 values (x, y, z, w), got %d", ErrInvalidConfiguration, field, len(v))
	}
	return Quat{X: v[0], Y: v[1], Z: v[2], W: v[3]}, nil
}

// Slice returns the quaternion as an (x, y, z, w) tuple.
func (q Quat) Slice() []float64 {
	return []float64{q.X, q.Y, q.Z, q.W}
}

func (q Quat) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", q.X, q.Y, q.Z, q.W)
}

// Pose is a capture location: where the vehicle is teleported to and how it
// is oriented.
type Pose struct {
	Pos Vec3 `json:"pos"`
	Rot Quat `json:"rot"`
}

func (p Pose) String() string {
	return fmt.Sprintf("pos=%s rot=%s", p.Pos, p.Rot)
}
