package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bngseg/collector/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"simulator": { "host": "10.0.0.1", "port": 64526 },
		"db": { "host": "10.0.0.2", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "10.0.0.1", viper.GetString("simulator.host"))
	assert.Equal(t, 64526, viper.GetInt("simulator.port"))
	assert.Equal(t, "10.0.0.2", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "localhost", viper.GetString("simulator.host"))
	assert.Equal(t, 64256, viper.GetInt("simulator.port"))
	assert.Equal(t, "rb_ks_monza", viper.GetString("scenario.map"))
	assert.Equal(t, "quick", viper.GetString("scenario.name"))
	assert.Equal(t, "2022__4_navaro_ssr_700_indycar", viper.GetString("vehicle.model"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./captures", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, "postgres", viper.GetString("db.username"))
	assert.Equal(t, "bngseg", viper.GetString("db.database"))
	assert.Equal(t, "ws://localhost:5000/api/stream", viper.GetString("websocket.url"))
	assert.Equal(t, "bngseg", viper.GetString("influx.bucket"))
	assert.Equal(t, "http://localhost:5000", viper.GetString("api.serverUrl"))
	assert.Equal(t, "", viper.GetString("api.apiKey"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(errors.New("other")))

	// defaults stay usable after a missing file
	assert.Equal(t, "png", viper.GetString("capture.format"))
}

func TestLoadFile_YAML(t *testing.T) {
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "collect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenario:\n  map: italy\n  annotatedMap: italy_seg\n"), 0644))
	require.NoError(t, LoadFile(path))

	sc := GetScenarioConfig()
	assert.Equal(t, "italy", sc.Map)
	assert.Equal(t, "italy_seg", sc.AnnotatedMap)
	assert.Equal(t, "quick", sc.Name)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": true },
			"sqlite": { "path": "/tmp/cat.db" }
		},
		"websocket": { "url": "ws://example:1/s", "secret": "s3" }
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, true, sc.Memory.CompressOutput)
	assert.Equal(t, "/tmp/cat.db", sc.SQLite.Path)
	assert.Equal(t, "ws://example:1/s", sc.WebSocket.URL)
	assert.Equal(t, "s3", sc.WebSocket.Secret)
}

func TestGetSimulatorConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	sc := GetSimulatorConfig()
	assert.Equal(t, "localhost", sc.Host)
	assert.Equal(t, 64256, sc.Port)
	assert.Equal(t, false, sc.Launch)
	assert.Equal(t, 60*time.Second, sc.Timeout)
	assert.Equal(t, "v1.26", sc.ProtocolVersion)
}

func TestGetScenarioConfig_AnnotatedDefaultsToMap(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("scenario.map", "gridmap")

	sc := GetScenarioConfig()
	assert.Equal(t, "gridmap", sc.AnnotatedMap)
}

func TestGetVehicleConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"vehicle": { "model": "etk800", "startPos": [1, 2, 3] }
	}`)))

	vc, err := GetVehicleConfig()
	require.NoError(t, err)
	assert.Equal(t, "etk800", vc.Model)
	assert.Equal(t, core.Vec3{X: 1, Y: 2, Z: 3}, vc.Start.Pos)
	assert.InDelta(t, -0.998, vc.Start.Rot.Z, 1e-9)
}

func TestGetVehicleConfig_BadTuple(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"vehicle": { "startPos": [1, 2] }}`)))

	_, err := GetVehicleConfig()
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestGetCameraDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	d, err := GetCameraDefaults()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultRigDefaults(), d)

	viper.Set("camera.resolution", []int{640})
	_, err = GetCameraDefaults()
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestGetRecordAndSampleConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"record": { "interval": "250ms", "countdown": false },
		"sample": { "count": 3, "radius": 2.5, "seed": 7 }
	}`)))

	rc := GetRecordConfig()
	assert.Equal(t, 250*time.Millisecond, rc.Interval)
	assert.False(t, rc.Countdown)

	sc := GetSampleConfig()
	assert.Equal(t, 3, sc.Count)
	assert.Equal(t, 2.5, sc.Radius)
	assert.Equal(t, uint64(7), sc.Seed)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"otel": { "enabled": true, "serviceName": "my-service", "exportInterval": "30s" }
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.ExportInterval)
}

func TestGetInfluxAndAPIConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "bngseg", ic.Org)

	ac := GetAPIConfig()
	assert.Equal(t, "http://localhost:5000", ac.ServerURL)
	assert.False(t, ac.Upload)
}
