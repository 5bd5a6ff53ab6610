package metrics

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type pointLog struct {
	points []*influxdb2_write.Point
}

func (l *pointLog) WritePoint(p *influxdb2_write.Point) error {
	l.points = append(l.points, p)
	return nil
}

func newTestRecorder(t *testing.T, w Writer) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	r, err := New(mp.Meter("test"), w, nil)
	require.NoError(t, err)
	return r, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecorder_Instruments(t *testing.T) {
	log := &pointLog{}
	r, reader := newTestRecorder(t, log)
	ctx := context.Background()

	r.FramePolled(ctx, core.ChannelColor, 20*time.Millisecond)
	r.FramePolled(ctx, core.ChannelAnnotation, 30*time.Millisecond)
	r.SessionSaved(ctx, "indycar", 12, 3*time.Second)
	r.PointRecorded(core.Vec3{X: 1, Y: 2, Z: 3})
	r.PointRecorded(core.Vec3{X: 2, Y: 2, Z: 3})

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["bngseg.frames.polled"]))
	assert.Equal(t, int64(12), sumOf(t, got["bngseg.pairs.saved"]))
	assert.Equal(t, int64(2), sumOf(t, got["bngseg.path.points"]))

	hist, ok := got["bngseg.frames.poll_duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	require.Len(t, log.points, 5)
	assert.Equal(t, MeasurementFrame, log.points[0].Name())
	assert.Equal(t, MeasurementSession, log.points[2].Name())
	assert.Equal(t, MeasurementPoint, log.points[4].Name())
}

func TestRecorder_NoInflux(t *testing.T) {
	r, reader := newTestRecorder(t, nil)
	r.SessionSaved(context.Background(), "indycar", 1, time.Second)
	assert.Equal(t, int64(1), sumOf(t, collect(t, reader)["bngseg.pairs.saved"]))
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false}, "")
	assert.ErrorIs(t, m.Connect(context.Background()), ErrInfluxDisabled)
}

func TestManager_BackupWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "metrics.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "bngseg",
		Bucket:   "bngseg",
	}, backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	r, _ := newTestRecorder(t, m)
	r.SessionSaved(context.Background(), "indycar", 4, time.Second)
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "capture_session,car=indycar "), lines[0])
	assert.Contains(t, lines[0], "pairs=4i")
}

func TestManager_WriteWithoutConnect(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "")
	err := m.WritePoint(influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}
