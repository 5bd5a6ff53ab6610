package recorder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bngseg/collector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVehicle moves one meter along X per poll and cancels after limit polls.
type fakeVehicle struct {
	mu     sync.Mutex
	polls  int
	limit  int
	cancel context.CancelFunc
	failAt int
}

func (f *fakeVehicle) CenterOfGravity(ctx context.Context) (core.Vec3, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.failAt > 0 && f.polls == f.failAt {
		return core.Vec3{}, errors.New("vehicle not found")
	}
	if f.limit > 0 && f.polls >= f.limit && f.cancel != nil {
		f.cancel()
	}
	return core.Vec3{X: float64(f.polls), Y: 2, Z: 3}, nil
}

func TestRecord_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v := &fakeVehicle{limit: 3, cancel: cancel}

	var out bytes.Buffer
	var seen []core.Vec3
	r := New(time.Millisecond, false)
	r.Out = &out
	r.OnPoint = func(p core.Vec3) { seen = append(seen, p) }

	points, err := r.Record(ctx, v)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3}, points[0])
	assert.Equal(t, core.Vec3{X: 3, Y: 2, Z: 3}, points[2])
	assert.Equal(t, points, seen)
	assert.Equal(t, "Press CTRL+C to stop recording...\n", out.String())
}

func TestRecord_Countdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v := &fakeVehicle{limit: 1, cancel: cancel}

	var out bytes.Buffer
	r := New(time.Millisecond, true)
	r.Out = &out
	r.countdownStep = time.Millisecond

	points, err := r.Record(ctx, v)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"Starting in 5...",
		"Starting in 4...",
		"Starting in 3...",
		"Starting in 2...",
		"Starting in 1...",
		"Starting in 0...",
		"Press CTRL+C to stop recording...",
	}, lines)
}

func TestRecord_CancelDuringCountdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := &fakeVehicle{}

	r := New(time.Millisecond, true)
	r.Out = &bytes.Buffer{}

	points, err := r.Record(ctx, v)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Zero(t, v.polls)
}

func TestRecord_PollError(t *testing.T) {
	v := &fakeVehicle{failAt: 3}
	r := New(time.Millisecond, false)
	r.Out = &bytes.Buffer{}

	points, err := r.Record(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 points")
	assert.Contains(t, err.Error(), "vehicle not found")
	assert.Len(t, points, 2)
}

func TestRecord_InvalidInterval(t *testing.T) {
	_, err := New(0, false).Record(context.Background(), &fakeVehicle{})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestRecordPath_Interval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	start := time.Now()
	points, err := RecordPath(ctx, &fakeVehicle{}, 100*time.Millisecond, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.GreaterOrEqual(t, len(points), 2)
	assert.LessOrEqual(t, len(points), 4)
}
