package simulator

import (
	"context"
	"fmt"

	"github.com/bngseg/collector/pkg/core"
)

// Frame is one camera poll: raw RGBA buffers keyed by channel name.
type Frame struct {
	Width    int
	Height   int
	Channels map[string][]byte
}

// Channel returns the buffer of the named channel.
func (f *Frame) Channel(name string) ([]byte, error) {
	buf, ok := f.Channels[name]
	if !ok {
		return nil, fmt.Errorf("frame has no %q channel", name)
	}
	return buf, nil
}

// Camera is a camera sensor attached to a vehicle.
type Camera struct {
	client *Client
	name   string
	vid    string
	rig    core.RigState
}

// OpenCamera attaches a camera named name to vehicle v at the rig's
// vehicle-relative pose. Color and annotation channels are rendered.
func (c *Client) OpenCamera(ctx context.Context, name string, v *Vehicle, rig core.RigState) (*Camera, error) {
	cam := &Camera{client: c, name: name, vid: v.id, rig: rig}
	if err := cam.open(ctx); err != nil {
		return nil, err
	}
	c.logger.Debug("Camera opened", "name", name, "vid", v.id, "rig", rig.String())
	return cam, nil
}

// Reopen attaches the camera again with its original settings. Loading a
// scenario removes all sensors, so cameras must be reopened afterwards.
func (cam *Camera) Reopen(ctx context.Context) error {
	return cam.open(ctx)
}

func (cam *Camera) open(ctx context.Context) error {
	rig := cam.rig
	_, err := cam.client.Request(ctx, "OpenCamera", Message{
		"name":                  cam.name,
		"vid":                   cam.vid,
		"updateTime":            -1.0,
		"priority":              0,
		"size":                  []int{rig.Width, rig.Height},
		"fovY":                  rig.FOV,
		"nearFarPlanes":         []float64{rig.Near, rig.Far},
		"pos":                   rig.Pos.Slice(),
		"dir":                   rig.Dir.Slice(),
		"up":                    rig.Up.Slice(),
		"renderColours":         true,
		"renderAnnotations":     true,
		"renderInstance":        false,
		"renderDepth":           false,
		"isVisualised":          false,
		"isStatic":              false,
		"isSnappingDesired":     true,
		"isForceInsideTriangle": true,
		"isUsingSharedMemory":   false,
	})
	if err != nil {
		return fmt.Errorf("open camera %s on %s: %w", cam.name, cam.vid, err)
	}
	return nil
}

func (cam *Camera) Name() string       { return cam.name }
func (cam *Camera) Rig() core.RigState { return cam.rig }

// Poll renders the camera once and returns the rendered channels.
func (cam *Camera) Poll(ctx context.Context) (*Frame, error) {
	resp, err := cam.client.Request(ctx, "PollCamera", Message{
		"name":                cam.name,
		"isUsingSharedMemory": false,
	})
	if err != nil {
		return nil, fmt.Errorf("poll camera %s: %w", cam.name, err)
	}

	f := &Frame{Width: cam.rig.Width, Height: cam.rig.Height, Channels: map[string][]byte{}}
	for _, ch := range []string{core.ChannelColor, core.ChannelAnnotation, core.ChannelDepth, core.ChannelInstance} {
		if buf, ok := resp.GetBytes(ch); ok && len(buf) > 0 {
			f.Channels[ch] = buf
		}
	}
	return f, nil
}

// Close removes the camera from the simulator.
func (cam *Camera) Close(ctx context.Context) error {
	if _, err := cam.client.Request(ctx, "CloseCamera", Message{"name": cam.name}); err != nil {
		return fmt.Errorf("close camera %s: %w", cam.name, err)
	}
	return nil
}
