package simulator

import (
	"context"
	"fmt"

	"github.com/bngseg/collector/pkg/core"
)

// Vehicle is a handle to a vehicle in the running scenario.
type Vehicle struct {
	client *Client
	id     string
	model  string
}

// Vehicle returns a handle for an already present vehicle.
func (c *Client) Vehicle(id, model string) *Vehicle {
	return &Vehicle{client: c, id: id, model: model}
}

// SpawnVehicle adds a vehicle to the running scenario.
func (c *Client) SpawnVehicle(ctx context.Context, spec VehicleSpec) (*Vehicle, error) {
	msg := spec.message()
	msg["cling"] = true
	if _, err := c.Request(ctx, "SpawnVehicle", msg); err != nil {
		return nil, fmt.Errorf("spawn %s as %s: %w", spec.Model, spec.ID, err)
	}
	c.logger.Info("Vehicle spawned", "vid", spec.ID, "model", spec.Model, "pose", spec.Pose.String())
	return c.Vehicle(spec.ID, spec.Model), nil
}

func (v *Vehicle) ID() string    { return v.id }
func (v *Vehicle) Model() string { return v.model }

// Despawn removes the vehicle from the scenario.
func (v *Vehicle) Despawn(ctx context.Context) error {
	if _, err := v.client.Request(ctx, "DespawnVehicle", Message{"vid": v.id}); err != nil {
		return fmt.Errorf("despawn %s: %w", v.id, err)
	}
	return nil
}

// Teleport moves the vehicle to pose and resets its physics state.
func (v *Vehicle) Teleport(ctx context.Context, pose core.Pose) error {
	resp, err := v.client.Request(ctx, "Teleport", Message{
		"vehicle": v.id,
		"pos":     pose.Pos.Slice(),
		"rot":     pose.Rot.Slice(),
		"reset":   true,
	})
	if err != nil {
		return fmt.Errorf("teleport %s to %s: %w", v.id, pose.Pos, err)
	}
	if ok, present := resp["success"].(bool); present && !ok {
		return fmt.Errorf("teleport %s to %s: rejected by simulator", v.id, pose.Pos)
	}
	return nil
}

// CenterOfGravity returns the vehicle's current center of gravity in world
// coordinates.
func (v *Vehicle) CenterOfGravity(ctx context.Context) (core.Vec3, error) {
	resp, err := v.client.Request(ctx, "GetCenterOfGravity", Message{"vid": v.id})
	if err != nil {
		return core.Vec3{}, fmt.Errorf("center of gravity of %s: %w", v.id, err)
	}
	vals, err := resp.GetFloats("result")
	if err != nil {
		return core.Vec3{}, fmt.Errorf("center of gravity of %s: %w", v.id, err)
	}
	pos, err := core.Vec3FromSlice("result", vals)
	if err != nil {
		return core.Vec3{}, fmt.Errorf("center of gravity of %s: %w", v.id, err)
	}
	return pos, nil
}
