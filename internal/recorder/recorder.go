// Package recorder records the path a vehicle drives by polling its
// position.
package recorder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bngseg/collector/pkg/core"
)

const (
	DefaultInterval = time.Second
	countdownFrom   = 5
)

// Positioner reports a vehicle's position.
type Positioner interface {
	CenterOfGravity(ctx context.Context) (core.Vec3, error)
}

// Recorder polls a vehicle's center of gravity on a fixed interval.
type Recorder struct {
	Interval  time.Duration
	Countdown bool

	// Out receives the operator prompts. Defaults to os.Stdout.
	Out    io.Writer
	Logger *slog.Logger

	// OnPoint, if set, is called with each recorded point.
	OnPoint func(core.Vec3)

	countdownStep time.Duration
}

// New returns a recorder with the given poll interval.
func New(interval time.Duration, countdown bool) *Recorder {
	return &Recorder{
		Interval:      interval,
		Countdown:     countdown,
		countdownStep: time.Second,
	}
}

// RecordPath records with a default recorder. See Recorder.Record.
func RecordPath(ctx context.Context, v Positioner, interval time.Duration, withCountdown bool) ([]core.Vec3, error) {
	return New(interval, withCountdown).Record(ctx, v)
}

// Record polls v until ctx is cancelled and returns the recorded points.
// Cancellation is the normal way to stop and is not reported as an error.
// A failed poll stops recording and returns the points so far with the
// error.
func (r *Recorder) Record(ctx context.Context, v Positioner) ([]core.Vec3, error) {
	if r.Interval <= 0 {
		return nil, fmt.Errorf("%w: record interval %s must be positive", core.ErrInvalidConfiguration, r.Interval)
	}
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var points []core.Vec3

	if r.Countdown {
		step := r.countdownStep
		if step <= 0 {
			step = time.Second
		}
		for i := countdownFrom; i >= 0; i-- {
			fmt.Fprintf(out, "Starting in %d...\n", i)
			if !sleep(ctx, step) {
				logger.Info("Recording interrupted during countdown")
				return points, nil
			}
		}
	}
	fmt.Fprintln(out, "Press CTRL+C to stop recording...")
	logger.Info("Recording path", "interval", r.Interval)

	for {
		p, err := v.CenterOfGravity(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return points, fmt.Errorf("record path after %d points: %w", len(points), err)
		}

		points = append(points, p)
		logger.Debug("Recorded point", "index", len(points)-1, "pos", p.String())
		if r.OnPoint != nil {
			r.OnPoint(p)
		}

		if !sleep(ctx, r.Interval) {
			break
		}
	}

	logger.Info("Recording stopped", "points", len(points))
	return points, nil
}

// sleep waits for d and reports whether it completed before ctx was done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
