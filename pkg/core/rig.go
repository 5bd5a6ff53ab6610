// pkg/core/rig.go
package core

import (
	"fmt"
	"math"
)

// Camera defaults used when a rig leaves a field unset.
const (
	DefaultFOV    = 70.0
	DefaultNear   = 0.1
	DefaultFar    = 1000.0
	DefaultWidth  = 224
	DefaultHeight = 224
)

// Image channel names returned by a camera poll.
const (
	ChannelColor      = "colour"
	ChannelAnnotation = "annotation"
	ChannelDepth      = "depth"
	ChannelInstance   = "instance"
)

// RigDefaults holds the optical parameters applied to rigs that omit them.
type RigDefaults struct {
	FOV    float64
	Near   float64
	Far    float64
	Width  int
	Height int
}

// DefaultRigDefaults returns the built-in camera defaults.
func DefaultRigDefaults() RigDefaults {
	return RigDefaults{
		FOV:    DefaultFOV,
		Near:   DefaultNear,
		Far:    DefaultFar,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// CameraRig describes a camera mounted on a vehicle: its pose relative to
// the vehicle and its optical parameters. Zero optical fields are filled
// from defaults on evaluation.
type CameraRig struct {
	Pos    Vec3
	Dir    Vec3
	Up     Vec3
	FOV    float64
	Near   float64
	Far    float64
	Width  int
	Height int
}

// RigState is a camera rig evaluated to concrete values at plan-build time.
type RigState struct {
	Pos    Vec3    `json:"pos"`
	Dir    Vec3    `json:"dir"`
	Up     Vec3    `json:"up"`
	FOV    float64 `json:"fov"`
	Near   float64 `json:"near"`
	Far    float64 `json:"far"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// NewCameraRig returns a rig at pos looking along dir, with the built-in
// optical defaults.
func NewCameraRig(pos, dir, up Vec3) CameraRig {
	d := DefaultRigDefaults()
	return CameraRig{
		Pos:    pos,
		Dir:    dir,
		Up:     up,
		FOV:    d.FOV,
		Near:   d.Near,
		Far:    d.Far,
		Width:  d.Width,
		Height: d.Height,
	}
}

// WithDefaults returns a copy of r with unset optical fields taken from d.
func (r CameraRig) WithDefaults(d RigDefaults) CameraRig {
	if r.FOV == 0 {
		r.FOV = d.FOV
	}
	if r.Near == 0 {
		r.Near = d.Near
	}
	if r.Far == 0 {
		r.Far = d.Far
	}
	if r.Width == 0 {
		r.Width = d.Width
	}
	if r.Height == 0 {
		r.Height = d.Height
	}
	return r
}

// Validate reports whether the rig describes a camera the simulator can open.
func (r CameraRig) Validate() error {
	switch {
	case math.IsNaN(r.FOV) || r.FOV <= 0 || r.FOV >= 180:
		return fmt.Errorf("%w: field of view %g must be in (0, 180)", ErrInvalidConfiguration, r.FOV)
	case r.Near <= 0 || r.Near >= r.Far:
		return fmt.Errorf("%w: clip planes (%g, %g) must satisfy 0 < near < far", ErrInvalidConfiguration, r.Near, r.Far)
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidConfiguration, r.Width, r.Height)
	case r.Dir.Norm() == 0:
		return fmt.Errorf("%w: camera direction must be non-zero", ErrInvalidConfiguration)
	case r.Up.Norm() == 0:
		return fmt.Errorf("%w: camera up vector must be non-zero", ErrInvalidConfiguration)
	}
	return nil
}

// Evaluate returns the rig's concrete values. Rigs are fixed, so every call
// yields the same state.
func (r CameraRig) Evaluate() (RigState, error) {
	if err := r.Validate(); err != nil {
		return RigState{}, err
	}
	return RigState(r), nil
}

func (s RigState) String() string {
	return fmt.Sprintf("pos=%s dir=%s up=%s fov=%g near=%g far=%g resolution=%dx%d",
		s.Pos, s.Dir, s.Up, s.FOV, s.Near, s.Far, s.Width, s.Height)
}

// Car is a vehicle model and the camera rigs mounted on it.
type Car struct {
	Model string
	Rigs  []CameraRig
}

// Shot is one planned capture: a car at a location with its evaluated rigs.
// Car is the car's index in the plan.
type Shot struct {
	Car      int        `json:"car"`
	CarModel string     `json:"carModel"`
	Location Pose       `json:"location"`
	Rigs     []RigState `json:"rigs"`
}
