// Package sampler generates randomized capture locations near a recorded
// path.
package sampler

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/bngseg/collector/pkg/core"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultRadius is the horizontal sampling radius in meters.
const DefaultRadius = 4.0

// ZOffset lifts sampled locations above the recorded point so the vehicle
// is not spawned into the road surface.
const ZOffset = 0.5

// Sampler draws locations from its own random source. A Sampler is not safe
// for concurrent use.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// New returns a sampler seeded with seed. A zero seed seeds from the clock.
func New(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Sampler{src: src, rng: rand.New(src)}
}

// SampleNear picks one of points uniformly and offsets it by up to radius
// meters on x and y, and by ZOffset on z. The heading is a uniformly random
// yaw about the vertical axis.
func (s *Sampler) SampleNear(points []core.Vec3, radius float64) (core.Pose, error) {
	if len(points) == 0 {
		return core.Pose{}, fmt.Errorf("sample near path: %w: no recorded points", core.ErrEmptyInput)
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return core.Pose{}, fmt.Errorf("%w: sample radius %g must be finite and non-negative", core.ErrInvalidConfiguration, radius)
	}

	p := points[s.rng.IntN(len(points))]
	offset := distuv.Uniform{Min: -radius, Max: radius, Src: s.src}
	yaw := distuv.Uniform{Min: -180, Max: 180, Src: s.src}

	return core.Pose{
		Pos: core.Vec3{
			X: p.X + offset.Rand(),
			Y: p.Y + offset.Rand(),
			Z: p.Z + ZOffset,
		},
		Rot: YawQuat(yaw.Rand()),
	}, nil
}

// SampleMany returns n independent samples from points.
func (s *Sampler) SampleMany(points []core.Vec3, radius float64, n int) ([]core.Pose, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: sample count %d must be non-negative", core.ErrInvalidConfiguration, n)
	}
	poses := make([]core.Pose, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.SampleNear(points, radius)
		if err != nil {
			return nil, err
		}
		poses = append(poses, p)
	}
	return poses, nil
}

// SampleNear samples with a clock-seeded sampler.
func SampleNear(points []core.Vec3, radius float64) (core.Pose, error) {
	return New(0).SampleNear(points, radius)
}

// YawQuat returns the unit quaternion rotating deg degrees about +Z.
func YawQuat(deg float64) core.Quat {
	half := deg * math.Pi / 360
	q := quat.Exp(quat.Number{Kmag: half})
	return core.Quat{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}
