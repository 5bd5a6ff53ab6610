package plan

import (
	"fmt"

	"github.com/bngseg/collector/pkg/core"
	"github.com/spf13/viper"
)

// Layout is a repeatable capture layout: the maps to capture on and the
// cars with their camera rigs. Locations are supplied separately.
type Layout struct {
	BaseMap      string
	AnnotatedMap string
	Cars         []core.Car
}

type layoutFile struct {
	BaseMap      string      `mapstructure:"baseMap"`
	AnnotatedMap string      `mapstructure:"annotatedMap"`
	Cars         []layoutCar `mapstructure:"cars"`
}

type layoutCar struct {
	Model   string         `mapstructure:"model"`
	Cameras []layoutCamera `mapstructure:"cameras"`
}

type layoutCamera struct {
	Pos        []float64 `mapstructure:"pos"`
	Dir        []float64 `mapstructure:"dir"`
	Up         []float64 `mapstructure:"up"`
	FOV        float64   `mapstructure:"fov"`
	NearFar    []float64 `mapstructure:"nearFar"`
	Resolution []int     `mapstructure:"resolution"`
}

// LoadLayout reads a layout file. The format follows the file extension
// (json, yaml or toml). Camera fields left out are taken from defaults, and
// an omitted up vector points along +Z.
func LoadLayout(path string, defaults core.RigDefaults) (*Layout, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}

	var f layoutFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	if f.BaseMap == "" {
		return nil, fmt.Errorf("%w: layout %s has no baseMap", core.ErrInvalidConfiguration, path)
	}

	l := &Layout{BaseMap: f.BaseMap, AnnotatedMap: f.AnnotatedMap}
	if l.AnnotatedMap == "" {
		l.AnnotatedMap = l.BaseMap
	}

	for ci, c := range f.Cars {
		if c.Model == "" {
			return nil, fmt.Errorf("%w: car %d has no model", core.ErrInvalidConfiguration, ci)
		}
		car := core.Car{Model: c.Model}
		for ri, cam := range c.Cameras {
			rig, err := cam.rig(defaults)
			if err != nil {
				return nil, fmt.Errorf("car %d (%s) camera %d: %w", ci, c.Model, ri, err)
			}
			car.Rigs = append(car.Rigs, rig)
		}
		l.Cars = append(l.Cars, car)
	}
	return l, nil
}

func (c layoutCamera) rig(defaults core.RigDefaults) (core.CameraRig, error) {
	pos, err := core.Vec3FromSlice("pos", c.Pos)
	if err != nil {
		return core.CameraRig{}, err
	}
	dir, err := core.Vec3FromSlice("dir", c.Dir)
	if err != nil {
		return core.CameraRig{}, err
	}
	up := core.Vec3{Z: 1}
	if c.Up != nil {
		if up, err = core.Vec3FromSlice("up", c.Up); err != nil {
			return core.CameraRig{}, err
		}
	}

	rig := core.CameraRig{Pos: pos, Dir: dir, Up: up, FOV: c.FOV}
	if c.NearFar != nil {
		if len(c.NearFar) != 2 {
			return core.CameraRig{}, fmt.Errorf("%w: nearFar must have 2 values (near, far), got %d",
				core.ErrInvalidConfiguration, len(c.NearFar))
		}
		rig.Near, rig.Far = c.NearFar[0], c.NearFar[1]
	}
	if c.Resolution != nil {
		if len(c.Resolution) != 2 {
			return core.CameraRig{}, fmt.Errorf("%w: resolution must have 2 values (width, height), got %d",
				core.ErrInvalidConfiguration, len(c.Resolution))
		}
		rig.Width, rig.Height = c.Resolution[0], c.Resolution[1]
	}
	return rig.WithDefaults(defaults), nil
}
