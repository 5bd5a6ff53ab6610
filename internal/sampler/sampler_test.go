package sampler

import (
	"math"
	"testing"

	"github.com/bngseg/collector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func path() []core.Vec3 {
	return []core.Vec3{
		{X: -177.105, Y: -106.766, Z: 155.2},
		{X: -160.0, Y: -110.5, Z: 155.4},
		{X: -140.2, Y: -115.0, Z: 155.9},
	}
}

func nearest(points []core.Vec3, pos core.Vec3) core.Vec3 {
	best := points[0]
	bestDist := math.Inf(1)
	for _, p := range points {
		d := math.Max(math.Abs(p.X-pos.X), math.Abs(p.Y-pos.Y))
		if d < bestDist && math.Abs(pos.Z-(p.Z+ZOffset)) < 1e-9 {
			best, bestDist = p, d
		}
	}
	return best
}

func TestSampleNear_Bounds(t *testing.T) {
	s := New(42)
	pts := path()

	for i := 0; i < 500; i++ {
		pose, err := s.SampleNear(pts, DefaultRadius)
		require.NoError(t, err)

		src := nearest(pts, pose.Pos)
		assert.LessOrEqual(t, math.Abs(pose.Pos.X-src.X), DefaultRadius)
		assert.LessOrEqual(t, math.Abs(pose.Pos.Y-src.Y), DefaultRadius)
		assert.Equal(t, src.Z+ZOffset, pose.Pos.Z)

		assert.Zero(t, pose.Rot.X)
		assert.Zero(t, pose.Rot.Y)
		norm := math.Hypot(pose.Rot.Z, pose.Rot.W)
		assert.InDelta(t, 1.0, norm, 1e-12)
	}
}

func TestSampleNear_SinglePointZeroRadius(t *testing.T) {
	p := core.Vec3{X: 1, Y: 2, Z: 3}
	pose, err := New(7).SampleNear([]core.Vec3{p}, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3.5}, pose.Pos)
}

func TestSampleNear_EmptyInput(t *testing.T) {
	_, err := New(1).SampleNear(nil, DefaultRadius)
	assert.ErrorIs(t, err, core.ErrEmptyInput)

	_, err = SampleNear([]core.Vec3{}, DefaultRadius)
	assert.ErrorIs(t, err, core.ErrEmptyInput)
}

func TestSampleNear_InvalidRadius(t *testing.T) {
	for _, r := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		pose, err := New(1).SampleNear(path(), r)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration, "radius %g", r)
		assert.Equal(t, core.Pose{}, pose)
	}
}

func TestSampleNear_Deterministic(t *testing.T) {
	a, err := New(99).SampleMany(path(), DefaultRadius, 10)
	require.NoError(t, err)
	b, err := New(99).SampleMany(path(), DefaultRadius, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSampleMany(t *testing.T) {
	poses, err := New(3).SampleMany(path(), DefaultRadius, 10)
	require.NoError(t, err)
	assert.Len(t, poses, 10)

	poses, err = New(3).SampleMany(path(), DefaultRadius, 0)
	require.NoError(t, err)
	assert.Empty(t, poses)

	_, err = New(3).SampleMany(nil, DefaultRadius, 2)
	assert.ErrorIs(t, err, core.ErrEmptyInput)

	_, err = New(3).SampleMany(path(), DefaultRadius, -1)
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestYawQuat(t *testing.T) {
	tests := []struct {
		deg  float64
		want core.Quat
	}{
		{0, core.Quat{W: 1}},
		{90, core.Quat{Z: math.Sqrt2 / 2, W: math.Sqrt2 / 2}},
		{-90, core.Quat{Z: -math.Sqrt2 / 2, W: math.Sqrt2 / 2}},
		{180, core.Quat{Z: 1, W: 0}},
	}

	for _, tt := range tests {
		got := YawQuat(tt.deg)
		assert.Zero(t, got.X)
		assert.Zero(t, got.Y)
		assert.InDelta(t, tt.want.Z, got.Z, 1e-12, "deg=%g", tt.deg)
		assert.InDelta(t, tt.want.W, got.W, 1e-12, "deg=%g", tt.deg)
	}
}
