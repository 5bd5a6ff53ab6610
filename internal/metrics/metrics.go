// Package metrics counts capture activity with OpenTelemetry instruments
// and, when configured, writes the same events to InfluxDB.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/bngseg/collector/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bngseg/collector/internal/metrics"

// Measurement names written to InfluxDB.
const (
	MeasurementFrame   = "frame_poll"
	MeasurementSession = "capture_session"
	MeasurementPoint   = "path_point"
)

// Writer receives InfluxDB points. *Manager implements it.
type Writer interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Recorder observes capture and recording events.
type Recorder struct {
	influx Writer
	logger *slog.Logger
	now    func() time.Time

	framesPolled metric.Int64Counter
	pollDuration metric.Float64Histogram
	pairsSaved   metric.Int64Counter
	sessionTime  metric.Float64Histogram
	pathPoints   metric.Int64Counter
}

// New creates a recorder on meter. influx may be nil.
func New(meter metric.Meter, influx Writer, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{influx: influx, logger: logger, now: time.Now}

	var err error
	if r.framesPolled, err = meter.Int64Counter("bngseg.frames.polled",
		metric.WithDescription("Camera frames polled"),
		metric.WithUnit("{frame}")); err != nil {
		return nil, err
	}
	if r.pollDuration, err = meter.Float64Histogram("bngseg.frames.poll_duration",
		metric.WithDescription("Time to poll one camera frame"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if r.pairsSaved, err = meter.Int64Counter("bngseg.pairs.saved",
		metric.WithDescription("Image pairs written to disk"),
		metric.WithUnit("{pair}")); err != nil {
		return nil, err
	}
	if r.sessionTime, err = meter.Float64Histogram("bngseg.session.duration",
		metric.WithDescription("Time to capture and save one session"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.pathPoints, err = meter.Int64Counter("bngseg.path.points",
		metric.WithDescription("Vehicle positions recorded"),
		metric.WithUnit("{point}")); err != nil {
		return nil, err
	}
	return r, nil
}

// FramePolled records one camera poll.
func (r *Recorder) FramePolled(ctx context.Context, channel string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("channel", channel))
	r.framesPolled.Add(ctx, 1, attrs)
	r.pollDuration.Record(ctx, float64(took)/float64(time.Millisecond), attrs)

	r.write(influxdb2_write.NewPoint(MeasurementFrame,
		map[string]string{"channel": channel},
		map[string]interface{}{"took_ms": float64(took) / float64(time.Millisecond)},
		r.now()))
}

// SessionSaved records a saved session.
func (r *Recorder) SessionSaved(ctx context.Context, carModel string, pairs int, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("car", carModel))
	r.pairsSaved.Add(ctx, int64(pairs), attrs)
	r.sessionTime.Record(ctx, took.Seconds(), attrs)

	r.write(influxdb2_write.NewPoint(MeasurementSession,
		map[string]string{"car": carModel},
		map[string]interface{}{"pairs": pairs, "took_s": took.Seconds()},
		r.now()))
}

// PointRecorded records one vehicle position of a path recording.
func (r *Recorder) PointRecorded(p core.Vec3) {
	r.pathPoints.Add(context.Background(), 1)

	r.write(influxdb2_write.NewPoint(MeasurementPoint,
		nil,
		map[string]interface{}{"x": p.X, "y": p.Y, "z": p.Z},
		r.now()))
}

func (r *Recorder) write(p *influxdb2_write.Point) {
	if r.influx == nil {
		return
	}
	if err := r.influx.WritePoint(p); err != nil {
		r.logger.Warn("Failed to write metric point", "measurement", p.Name(), "error", err)
	}
}
