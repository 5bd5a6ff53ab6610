package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(folder string) *core.SessionInfo {
	return &core.SessionInfo{
		Folder:       folder,
		Map:          "rb_ks_monza",
		AnnotatedMap: "rb_ks_monza_seg",
		CarModel:     "indycar",
		StartedAt:    time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func testPair(folder, name string) *core.PairRecord {
	return &core.PairRecord{
		Name:          name,
		Location:      core.Pose{Pos: core.Vec3{X: 1, Y: 2, Z: 3.5}, Rot: core.IdentityQuat},
		Rig:           core.RigState{Dir: core.Vec3{Y: -1}, Up: core.Vec3{Z: 1}, FOV: 70, Near: 0.1, Far: 1000, Width: 224, Height: 224},
		BasePath:      filepath.Join(folder, name+"_b.png"),
		AnnotatedPath: filepath.Join(folder, name+"_a.png"),
	}
}

func TestSessionLifecycle(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "01032026123000")
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init())

	s := testSession(folder)
	require.NoError(t, b.StartSession(s))
	assert.Equal(t, uint(1), s.ID)

	p0, p1 := testPair(folder, "0_0"), testPair(folder, "1_0")
	require.NoError(t, b.RecordPair(p0))
	require.NoError(t, b.RecordPair(p1))
	assert.Equal(t, uint(1), p0.SessionID)
	require.NoError(t, b.EndSession())

	sessions := b.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].Session.PairCount)
	assert.Len(t, sessions[0].Pairs, 2)

	data, err := os.ReadFile(filepath.Join(folder, "session.json"))
	require.NoError(t, err)
	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, "01032026123000", export.Name)
	assert.Equal(t, 2, export.PairCount)
	assert.Equal(t, "0_0_b.png", export.Pairs[0].Base)
	assert.Equal(t, "1_0_a.png", export.Pairs[1].Annotated)
	assert.Equal(t, 70.0, export.Pairs[0].Camera.FOV)
	assert.Equal(t, "rb_ks_monza_seg", export.AnnotatedMap)

	require.NoError(t, b.Close())
}

func TestSessionIDsIncrease(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	for i := 1; i <= 3; i++ {
		s := testSession("")
		require.NoError(t, b.StartSession(s))
		assert.Equal(t, uint(i), s.ID)
		require.NoError(t, b.EndSession())
	}
	assert.Len(t, b.Sessions(), 3)
}

func TestRecordPair_NoSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.Error(t, b.RecordPair(testPair("", "0_0")))
	assert.Error(t, b.EndSession())
}

func TestExport_CompressedWithoutFolder(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	require.NoError(t, b.StartSession(testSession("")))
	require.NoError(t, b.RecordPair(testPair("", "0_0")))
	require.NoError(t, b.EndSession())

	f, err := os.Open(filepath.Join(dir, "rb_ks_monza_20260301_123000.json.gz"))
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, 1, export.PairCount)
	assert.Equal(t, filepath.Join("", "0_0_b.png"), export.Pairs[0].Base)
}

func TestRecordPath(t *testing.T) {
	b := New(config.MemoryConfig{})
	pts := []core.Vec3{{X: 1}, {X: 2}}
	require.NoError(t, b.RecordPath("rb_ks_monza", pts))
	pts[0].X = 100

	paths := b.Paths()
	require.Len(t, paths, 1)
	assert.Equal(t, "rb_ks_monza", paths[0].MapID)
	assert.Equal(t, 1.0, paths[0].Points[0].X)
}
