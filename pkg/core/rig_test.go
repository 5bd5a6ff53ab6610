package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCameraRig_Defaults(t *testing.T) {
	r := NewCameraRig(Vec3{X: -0.3, Y: 1, Z: 2}, Vec3{Y: -1}, Vec3{Z: 1})

	assert.Equal(t, 70.0, r.FOV)
	assert.Equal(t, 0.1, r.Near)
	assert.Equal(t, 1000.0, r.Far)
	assert.Equal(t, 224, r.Width)
	assert.Equal(t, 224, r.Height)
}

func TestCameraRig_WithDefaults_KeepsSetFields(t *testing.T) {
	r := CameraRig{Dir: Vec3{Y: -1}, Up: Vec3{Z: 1}, FOV: 90, Width: 640}
	r = r.WithDefaults(DefaultRigDefaults())

	assert.Equal(t, 90.0, r.FOV)
	assert.Equal(t, 640, r.Width)
	assert.Equal(t, 224, r.Height)
	assert.Equal(t, 0.1, r.Near)
}

func TestCameraRig_Evaluate(t *testing.T) {
	r := NewCameraRig(Vec3{X: 1, Y: 2, Z: 3}, Vec3{Y: -1}, Vec3{Z: 1})

	s, err := r.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, s.Pos)
	assert.Equal(t, Vec3{Y: -1}, s.Dir)
	assert.Equal(t, 70.0, s.FOV)

	again, err := r.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestCameraRig_Validate(t *testing.T) {
	base := NewCameraRig(Vec3{}, Vec3{Y: -1}, Vec3{Z: 1})

	tests := []struct {
		name   string
		mutate func(r *CameraRig)
	}{
		{"zero fov", func(r *CameraRig) { r.FOV = 0 }},
		{"fov too wide", func(r *CameraRig) { r.FOV = 180 }},
		{"near not positive", func(r *CameraRig) { r.Near = 0 }},
		{"near beyond far", func(r *CameraRig) { r.Near = 10; r.Far = 5 }},
		{"zero width", func(r *CameraRig) { r.Width = 0 }},
		{"negative height", func(r *CameraRig) { r.Height = -1 }},
		{"zero direction", func(r *CameraRig) { r.Dir = Vec3{} }},
		{"zero up", func(r *CameraRig) { r.Up = Vec3{} }},
	}

	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)

			_, err = r.Evaluate()
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestVec3FromSlice(t *testing.T) {
	v, err := Vec3FromSlice("pos", []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, v)

	_, err = Vec3FromSlice("pos", []float64{1, 2})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "pos must have 3 values")
}

func TestQuatFromSlice(t *testing.T) {
	q, err := QuatFromSlice("rot", []float64{0, 0, -0.998, 0.0598})
	require.NoError(t, err)
	assert.Equal(t, Quat{Z: -0.998, W: 0.0598}, q)
	assert.Equal(t, []float64{0, 0, -0.998, 0.0598}, q.Slice())

	_, err = QuatFromSlice("rot", []float64{0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
