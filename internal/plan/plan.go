// Package plan builds capture plans: the ordered cross product of cars and
// capture locations, each shot carrying the car's evaluated camera rigs.
package plan

import (
	"fmt"
	"slices"

	"github.com/bngseg/collector/pkg/core"
)

// Plan is a fixed set of cars and locations on a base/annotated map pair.
// Building a plan eagerly materializes its History.
type Plan struct {
	baseMap      string
	annotatedMap string
	history      *History
}

// New validates every car and camera rig and builds the plan's shots. Shots
// are ordered car-major: all locations for car 0, then all locations for
// car 1, and so on. An empty location list yields a plan with zero shots.
func New(baseMap, annotatedMap string, cars []core.Car, locations []core.Pose) (*Plan, error) {
	h := NewHistory(baseMap, annotatedMap)
	h.shots = make([]core.Shot, 0, len(cars)*len(locations))

	for ci, car := range cars {
		if len(car.Rigs) == 0 {
			return nil, fmt.Errorf("%w: car %d (%s) has no cameras", core.ErrInvalidConfiguration, ci, car.Model)
		}
		rigs := make([]core.RigState, 0, len(car.Rigs))
		for ri, rig := range car.Rigs {
			state, err := rig.Evaluate()
			if err != nil {
				return nil, fmt.Errorf("car %d (%s) camera %d: %w", ci, car.Model, ri, err)
			}
			rigs = append(rigs, state)
		}

		for _, loc := range locations {
			h.add(core.Shot{
				Car:      ci,
				CarModel: car.Model,
				Location: loc,
				Rigs:     slices.Clone(rigs),
			})
		}
	}

	return &Plan{baseMap: baseMap, annotatedMap: annotatedMap, history: h}, nil
}

// BaseMap returns the map the base images are captured on.
func (p *Plan) BaseMap() string { return p.baseMap }

// AnnotatedMap returns the map the annotated images are captured on.
func (p *Plan) AnnotatedMap() string { return p.annotatedMap }

// History returns the shots built for this plan.
func (p *Plan) History() *History { return p.history }
