package simulator

import (
	"context"
	"fmt"

	"github.com/bngseg/collector/pkg/core"
)

// VehicleSpec places a vehicle model in a scenario.
type VehicleSpec struct {
	ID    string
	Model string
	Pose  core.Pose
}

func (s VehicleSpec) message() Message {
	return Message{
		"vid":   s.ID,
		"model": s.Model,
		"pos":   s.Pose.Pos.Slice(),
		"rot":   s.Pose.Rot.Slice(),
	}
}

// Scenario describes a scenario to create on a level.
type Scenario struct {
	Level       string
	Name        string
	Description string
	Vehicles    []VehicleSpec
}

// CreateScenario writes the scenario files in the simulator's user
// directory and returns the scenario path to load.
func (c *Client) CreateScenario(ctx context.Context, s Scenario) (string, error) {
	vehicles := make([]Message, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		vehicles = append(vehicles, v.message())
	}

	resp, err := c.Request(ctx, "CreateScenario", Message{
		"level":       s.Level,
		"name":        s.Name,
		"description": s.Description,
		"vehicles":    vehicles,
	})
	if err != nil {
		return "", fmt.Errorf("create scenario %s on %s: %w", s.Name, s.Level, err)
	}

	path := resp.GetString("path")
	if path == "" {
		return "", fmt.Errorf("create scenario %s: simulator returned no scenario path", s.Name)
	}
	return path, nil
}

// LoadScenario loads a created scenario. The simulator switches to the
// scenario's level.
func (c *Client) LoadScenario(ctx context.Context, path string) error {
	if _, err := c.Request(ctx, "LoadScenario", Message{"path": path}); err != nil {
		return fmt.Errorf("load scenario %s: %w", path, err)
	}
	c.logger.Info("Scenario loaded", "path", path)
	return nil
}

// StartScenario starts the loaded scenario.
func (c *Client) StartScenario(ctx context.Context) error {
	if _, err := c.Request(ctx, "StartScenario", nil); err != nil {
		return fmt.Errorf("start scenario: %w", err)
	}
	return nil
}

// QuickScenario creates, loads and starts a scenario on level holding a
// single vehicle, and returns a handle to that vehicle.
func (c *Client) QuickScenario(ctx context.Context, level, name string, v VehicleSpec) (*Vehicle, error) {
	path, err := c.CreateScenario(ctx, Scenario{
		Level:    level,
		Name:     name,
		Vehicles: []VehicleSpec{v},
	})
	if err != nil {
		return nil, err
	}
	if err := c.LoadScenario(ctx, path); err != nil {
		return nil, err
	}
	if err := c.StartScenario(ctx); err != nil {
		return nil, err
	}
	return c.Vehicle(v.ID, v.Model), nil
}
