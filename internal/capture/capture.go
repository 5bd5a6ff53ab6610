// Package capture drives a vehicle through capture locations, polls its
// cameras, pairs base and annotated images and writes them to disk.
package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/bngseg/collector/internal/imaging"
	"github.com/bngseg/collector/internal/simulator"
	"github.com/bngseg/collector/pkg/core"
)

// Teleporter moves a vehicle to a pose.
type Teleporter interface {
	Teleport(ctx context.Context, pose core.Pose) error
}

// Poller renders one camera frame.
type Poller interface {
	Poll(ctx context.Context) (*simulator.Frame, error)
}

// Observer is notified of polled frames and saved sessions. Implementations
// must be cheap; they run on the capture path.
type Observer interface {
	FramePolled(ctx context.Context, channel string, took time.Duration)
	SessionSaved(ctx context.Context, carModel string, pairs int, took time.Duration)
}

// Key names the image taken at location i by camera j.
func Key(i, j int) string {
	return fmt.Sprintf("%d_%d", i, j)
}

// Channel returns the frame channel captured in a pass.
func Channel(annotated bool) string {
	if annotated {
		return core.ChannelAnnotation
	}
	return core.ChannelColor
}

// CaptureImages teleports v to each location in turn and polls every camera
// once there, keeping the color channel, or the annotation channel when
// annotated is set. Images are keyed by Key(location, camera).
func CaptureImages(ctx context.Context, v Teleporter, locations []core.Pose, cameras []Poller, annotated bool) (map[string]image.Image, error) {
	return captureImages(ctx, v, locations, cameras, annotated, nil)
}

func captureImages(ctx context.Context, v Teleporter, locations []core.Pose, cameras []Poller, annotated bool, obs Observer) (map[string]image.Image, error) {
	channel := Channel(annotated)
	images := make(map[string]image.Image, len(locations)*len(cameras))

	for i, loc := range locations {
		if err := v.Teleport(ctx, loc); err != nil {
			return nil, fmt.Errorf("location %d: %w", i, err)
		}

		for j, cam := range cameras {
			start := time.Now()
			frame, err := cam.Poll(ctx)
			if err != nil {
				return nil, fmt.Errorf("location %d camera %d: %w", i, j, err)
			}
			if obs != nil {
				obs.FramePolled(ctx, channel, time.Since(start))
			}

			buf, err := frame.Channel(channel)
			if err != nil {
				return nil, fmt.Errorf("location %d camera %d: %w", i, j, err)
			}
			img, err := imaging.FromRGBA(frame.Width, frame.Height, buf)
			if err != nil {
				return nil, fmt.Errorf("location %d camera %d %s: %w", i, j, channel, err)
			}
			images[Key(i, j)] = img
		}
	}
	return images, nil
}
