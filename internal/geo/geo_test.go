package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bngseg/collector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var track = []core.Vec3{
	{X: -177.105, Y: -106.766, Z: 155.2},
	{X: -174.105, Y: -102.766, Z: 155.2},
	{X: -174.105, Y: -102.766, Z: 157.2},
}

func TestLineString_RoundTrip(t *testing.T) {
	ls, err := LineString(track)
	require.NoError(t, err)
	assert.Equal(t, track, Points(ls))
}

func TestLineString_Empty(t *testing.T) {
	ls, err := LineString(nil)
	require.NoError(t, err)
	assert.True(t, ls.IsEmpty())
	assert.Empty(t, Points(ls))
}

func TestLineString_SinglePoint(t *testing.T) {
	_, err := LineString(track[:1])
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = Georeference(track[:1], Origin{})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestLineString_NoHorizontalMovement(t *testing.T) {
	still := []core.Vec3{{X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 5}}

	_, err := LineString(still)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	err = SavePath(filepath.Join(t.TempDir(), "still.wkt"), still)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = Georeference(still, Origin{Lon: 9.28, Lat: 45.62})
	assert.ErrorIs(t, err, ErrTooFewPoints)
}

func TestWKT(t *testing.T) {
	text, err := WKT(track)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "LINESTRING Z"), text)

	points, err := ParseWKT(text)
	require.NoError(t, err)
	assert.Equal(t, track, points)
}

func TestParseWKT_Errors(t *testing.T) {
	_, err := ParseWKT("POINT Z (1 2 3)")
	assert.ErrorContains(t, err, "want LINESTRING")

	_, err = ParseWKT("not wkt")
	assert.Error(t, err)
}

func TestParseWKT_2D(t *testing.T) {
	points, err := ParseWKT("LINESTRING (0 0, 3 4)")
	require.NoError(t, err)
	assert.Equal(t, []core.Vec3{{}, {X: 3, Y: 4}}, points)
}

func TestSaveLoadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monza.wkt")
	require.NoError(t, SavePath(path, track))

	points, err := LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, track, points)
}

func TestLoadPath_Missing(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "missing.wkt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLength(t *testing.T) {
	assert.InDelta(t, 7.0, Length(track), 1e-9)
	assert.Equal(t, 0.0, Length(nil))
	assert.Equal(t, 0.0, Length(track[:1]))
}

func TestParseOrigin(t *testing.T) {
	o, err := ParseOrigin("9.2811, 45.6156")
	require.NoError(t, err)
	assert.Equal(t, Origin{Lon: 9.2811, Lat: 45.6156}, o)

	for _, bad := range []string{"", "9.2", "a,b", "9,1,2", "200,10", "10,89"} {
		_, err := ParseOrigin(bad)
		assert.ErrorIs(t, err, ErrInvalidCoordinates, bad)
	}
}

func TestGeoreference(t *testing.T) {
	o := Origin{Lon: 9.2811, Lat: 45.6156}
	path := []core.Vec3{{Z: 10}, {X: 1000, Z: 11}, {X: 1000, Y: 1000, Z: 12}}

	ls, err := Georeference(path, o)
	require.NoError(t, err)
	got := Points(ls)
	require.Len(t, got, 3)

	assert.InDelta(t, o.Lon, got[0].X, 1e-9)
	assert.InDelta(t, o.Lat, got[0].Y, 1e-9)
	assert.Equal(t, 10.0, got[0].Z)

	// 1km east at ~45.6N is ~0.01285 degrees of longitude
	assert.InDelta(t, 0.01285, got[1].X-o.Lon, 1e-4)
	assert.InDelta(t, o.Lat, got[1].Y, 1e-9)
	// 1km north is ~0.009 degrees of latitude
	assert.InDelta(t, 0.009, got[2].Y-o.Lat, 1e-4)
	assert.Equal(t, 12.0, got[2].Z)
}
