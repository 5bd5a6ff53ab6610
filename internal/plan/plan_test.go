package plan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bngseg/collector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCars() []core.Car {
	return []core.Car{
		{
			Model: "indycar",
			Rigs: []core.CameraRig{
				core.NewCameraRig(core.Vec3{X: -0.3, Y: 1, Z: 2}, core.Vec3{Y: -1}, core.Vec3{Z: 1}),
			},
		},
		{
			Model: "etk800",
			Rigs: []core.CameraRig{
				core.NewCameraRig(core.Vec3{Y: 1, Z: 1.5}, core.Vec3{Y: -1}, core.Vec3{Z: 1}),
				core.NewCameraRig(core.Vec3{X: 0.5, Z: 1.5}, core.Vec3{X: 1}, core.Vec3{Z: 1}),
			},
		},
	}
}

func testLocations() []core.Pose {
	return []core.Pose{
		{Pos: core.Vec3{X: 1, Y: 2, Z: 3}, Rot: core.IdentityQuat},
		{Pos: core.Vec3{X: 4, Y: 5, Z: 6}, Rot: core.Quat{Z: 0.7071, W: 0.7071}},
		{Pos: core.Vec3{X: 7, Y: 8, Z: 9}, Rot: core.Quat{Z: -1}},
	}
}

func TestNew_CrossProductOrder(t *testing.T) {
	cars := testCars()
	locs := testLocations()

	p, err := New("rb_ks_monza", "rb_ks_monza_annotated", cars, locs)
	require.NoError(t, err)

	shots := p.History().Shots()
	require.Len(t, shots, len(cars)*len(locs))

	for i, s := range shots {
		car := cars[i/len(locs)]
		assert.Equal(t, i/len(locs), s.Car, "shot %d", i)
		assert.Equal(t, car.Model, s.CarModel, "shot %d", i)
		assert.Equal(t, locs[i%len(locs)], s.Location, "shot %d", i)
		assert.Len(t, s.Rigs, len(car.Rigs), "shot %d", i)
	}

	assert.Equal(t, "etk800", shots[3].CarModel)
	assert.Equal(t, 1.5, shots[3].Rigs[0].Pos.Z)
	assert.Equal(t, core.Vec3{X: 1}, shots[3].Rigs[1].Dir)
}

func TestNew_EmptyLocations(t *testing.T) {
	p, err := New("map", "map", testCars(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, p.History().Len())
	assert.Empty(t, p.History().ShotsByCar())
}

func TestNew_NoCars(t *testing.T) {
	p, err := New("map", "map", nil, testLocations())
	require.NoError(t, err)
	assert.Equal(t, 0, p.History().Len())
}

func TestNew_InvalidRig(t *testing.T) {
	cars := testCars()
	cars[1].Rigs[1].FOV = 0

	_, err := New("map", "map", cars, testLocations())
	require.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "car 1 (etk800) camera 1")
}

func TestNew_CarWithoutCameras(t *testing.T) {
	cars := testCars()
	cars[1].Rigs = nil

	_, err := New("map", "map", cars, testLocations())
	require.ErrorIs(t, err, core.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "car 1 (etk800) has no cameras")
}

func TestNew_CopiesInputs(t *testing.T) {
	cars := testCars()
	locs := testLocations()
	p, err := New("map", "map", cars, locs)
	require.NoError(t, err)

	locs[0].Pos.X = 100
	cars[0].Model = "changed"
	cars[0].Rigs[0].FOV = 10

	shot := p.History().Shots()[0]
	assert.Equal(t, 1.0, shot.Location.Pos.X)
	assert.Equal(t, "indycar", shot.CarModel)
	assert.Equal(t, core.DefaultFOV, shot.Rigs[0].FOV)
}

func TestHistory_ShotsByCar(t *testing.T) {
	p, err := New("map", "map", testCars(), testLocations())
	require.NoError(t, err)

	groups := p.History().ShotsByCar()
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 3)
	for _, s := range groups[0] {
		assert.Equal(t, "indycar", s.CarModel)
	}
	require.Len(t, groups[1], 3)
	assert.Equal(t, testLocations()[2], groups[1][2].Location)
}

func TestHistory_ShotsByCarSameModel(t *testing.T) {
	wide := core.NewCameraRig(core.Vec3{Z: 2}, core.Vec3{Y: -1}, core.Vec3{Z: 1})
	wide.FOV = 100
	cars := []core.Car{
		{Model: "etk800", Rigs: []core.CameraRig{core.NewCameraRig(core.Vec3{Z: 2}, core.Vec3{Y: -1}, core.Vec3{Z: 1})}},
		{Model: "etk800", Rigs: []core.CameraRig{wide, wide}},
	}
	p, err := New("map", "map", cars, testLocations()[:2])
	require.NoError(t, err)

	groups := p.History().ShotsByCar()
	require.Len(t, groups, 2)
	assert.Len(t, groups[0][0].Rigs, 1)
	require.Len(t, groups[1][0].Rigs, 2)
	assert.Equal(t, 100.0, groups[1][0].Rigs[0].FOV)
}

func TestHistory_FileName(t *testing.T) {
	p, err := New("rb_ks_monza", "rb_ks_monza", testCars(), testLocations())
	require.NoError(t, err)
	assert.Equal(t, "rb_ks_monza_6.bin", p.History().FileName())

	h := NewHistory("levels/west coast", "")
	assert.Equal(t, "levels_west_coast_0.bin", h.FileName())
}

func TestHistory_RoundTrip(t *testing.T) {
	p, err := New("rb_ks_monza", "rb_ks_monza_seg", testCars(), testLocations())
	require.NoError(t, err)
	want := p.History()

	path, err := want.Save(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "rb_ks_monza_6.bin", filepath.Base(path))

	got, err := LoadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, want.BaseMap(), got.BaseMap())
	assert.Equal(t, want.AnnotatedMap(), got.AnnotatedMap())
	assert.Equal(t, want.Shots(), got.Shots())
}

func TestHistory_RoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHistory("map", "map_seg").Encode(&buf))

	got, err := DecodeHistory(&buf)
	require.NoError(t, err)
	assert.Equal(t, "map", got.BaseMap())
	assert.Equal(t, "map_seg", got.AnnotatedMap())
	assert.Equal(t, 0, got.Len())
}

func TestHistory_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHistory("map", "map").Encode(&buf))

	b := buf.Bytes()
	require.Greater(t, len(b), 6)
	assert.Equal(t, "BNGH", string(b[:4]))
	assert.Equal(t, HistoryVersion, binary.BigEndian.Uint16(b[4:6]))
}

func TestDecodeHistory_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHistory("map", "map").Encode(&buf))

	b := buf.Bytes()
	binary.BigEndian.PutUint16(b[4:6], HistoryVersion+1)

	_, err := DecodeHistory(bytes.NewReader(b))
	require.ErrorIs(t, err, core.ErrUnsupportedVersion)
	assert.Contains(t, err.Error(), fmt.Sprintf("history version %d", HistoryVersion+1))
}

func TestDecodeHistory_BadMagic(t *testing.T) {
	_, err := DecodeHistory(bytes.NewReader([]byte("PK\x03\x04\x00\x01")))
	assert.ErrorIs(t, err, core.ErrUnsupportedVersion)
}

func TestDecodeHistory_Truncated(t *testing.T) {
	_, err := DecodeHistory(bytes.NewReader([]byte("BN")))
	assert.Error(t, err)
}

func TestLoadHistory_Missing(t *testing.T) {
	_, err := LoadHistory(filepath.Join(t.TempDir(), "nope.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
