package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/bngseg/collector/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "bngseg.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite catalog settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// WebSocketConfig holds streaming sink settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// DBConfig holds the Postgres catalog connection
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// StorageConfig selects and configures the capture sink
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	DB        DBConfig        `json:"db" mapstructure:"db"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// SimulatorConfig holds the simulator connection settings
type SimulatorConfig struct {
	Host            string
	Port            int
	Home            string
	User            string
	Launch          bool
	Timeout         time.Duration
	ProtocolVersion string
}

// ScenarioConfig names the maps and scenario to capture on
type ScenarioConfig struct {
	Map          string
	AnnotatedMap string
	Name         string
}

// VehicleConfig is the vehicle spawned for recording
type VehicleConfig struct {
	Model string
	Start core.Pose
}

// RecordConfig holds path recording settings
type RecordConfig struct {
	Interval  time.Duration
	Countdown bool
}

// SampleConfig holds location sampling settings
type SampleConfig struct {
	Count  int
	Radius float64
	Seed   uint64
}

// CaptureConfig holds image output settings
type CaptureConfig struct {
	OutputDir string
	Format    string
}

// OTelConfig holds OpenTelemetry metric settings
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	ExportInterval time.Duration
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// APIConfig holds dataset server settings
type APIConfig struct {
	ServerURL string
	APIKey    string
	Upload    bool
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("simulator.host", "localhost")
	viper.SetDefault("simulator.port", 64256)
	viper.SetDefault("simulator.home", "")
	viper.SetDefault("simulator.user", "")
	viper.SetDefault("simulator.launch", false)
	viper.SetDefault("simulator.timeout", "60s")
	viper.SetDefault("simulator.protocolVersion", "v1.26")

	viper.SetDefault("scenario.map", "rb_ks_monza")
	viper.SetDefault("scenario.annotatedMap", "")
	viper.SetDefault("scenario.name", "quick")

	viper.SetDefault("vehicle.model", "2022__4_navaro_ssr_700_indycar")
	viper.SetDefault("vehicle.startPos", []float64{-177.105, -106.766, 155.2})
	viper.SetDefault("vehicle.startRot", []float64{0, 0, -0.998, 0.0598})

	viper.SetDefault("record.interval", "1s")
	viper.SetDefault("record.countdown", true)

	viper.SetDefault("sample.count", 10)
	viper.SetDefault("sample.radius", 4.0)
	viper.SetDefault("sample.seed", 0)

	viper.SetDefault("camera.fov", core.DefaultFOV)
	viper.SetDefault("camera.nearFar", []float64{core.DefaultNear, core.DefaultFar})
	viper.SetDefault("camera.resolution", []int{core.DefaultWidth, core.DefaultHeight})

	viper.SetDefault("capture.outputDir", "./captures")
	viper.SetDefault("capture.format", "png")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./captures")
	viper.SetDefault("storage.memory.compressOutput", false)
	viper.SetDefault("storage.sqlite.path", "./captures/catalog.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "bngseg")

	viper.SetDefault("websocket.url", "ws://localhost:5000/api/stream")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "bngseg")
	viper.SetDefault("influx.bucket", "bngseg")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "bngseg")
	viper.SetDefault("otel.exportInterval", "10s")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.upload", false)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadFile sets default values and reads the config file at path. The
// format follows the file extension.
func LoadFile(path string) error {
	SetDefaults()

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a missing config file error from Load.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// GetStorageConfig returns the capture sink settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
	}
}

// GetSimulatorConfig returns the simulator connection settings.
func GetSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Host:            viper.GetString("simulator.host"),
		Port:            viper.GetInt("simulator.port"),
		Home:            viper.GetString("simulator.home"),
		User:            viper.GetString("simulator.user"),
		Launch:          viper.GetBool("simulator.launch"),
		Timeout:         viper.GetDuration("simulator.timeout"),
		ProtocolVersion: viper.GetString("simulator.protocolVersion"),
	}
}

// GetScenarioConfig returns the scenario settings. An empty annotated map
// means the base map is used for both passes.
func GetScenarioConfig() ScenarioConfig {
	sc := ScenarioConfig{
		Map:          viper.GetString("scenario.map"),
		AnnotatedMap: viper.GetString("scenario.annotatedMap"),
		Name:         viper.GetString("scenario.name"),
	}
	if sc.AnnotatedMap == "" {
		sc.AnnotatedMap = sc.Map
	}
	return sc
}

// GetVehicleConfig returns the recording vehicle and its start pose.
func GetVehicleConfig() (VehicleConfig, error) {
	pos, err := core.Vec3FromSlice("vehicle.startPos", getFloats("vehicle.startPos"))
	if err != nil {
		return VehicleConfig{}, err
	}
	rot, err := core.QuatFromSlice("vehicle.startRot", getFloats("vehicle.startRot"))
	if err != nil {
		return VehicleConfig{}, err
	}
	return VehicleConfig{
		Model: viper.GetString("vehicle.model"),
		Start: core.Pose{Pos: pos, Rot: rot},
	}, nil
}

// GetRecordConfig returns the path recording settings.
func GetRecordConfig() RecordConfig {
	return RecordConfig{
		Interval:  viper.GetDuration("record.interval"),
		Countdown: viper.GetBool("record.countdown"),
	}
}

// GetSampleConfig returns the location sampling settings.
func GetSampleConfig() SampleConfig {
	return SampleConfig{
		Count:  viper.GetInt("sample.count"),
		Radius: viper.GetFloat64("sample.radius"),
		Seed:   viper.GetUint64("sample.seed"),
	}
}

// GetCameraDefaults returns the optical defaults for rigs that omit them.
func GetCameraDefaults() (core.RigDefaults, error) {
	d := core.RigDefaults{FOV: viper.GetFloat64("camera.fov")}

	nearFar := getFloats("camera.nearFar")
	if len(nearFar) != 2 {
		return d, fmt.Errorf("%w: camera.nearFar must have 2 values (near, far), got %d",
			core.ErrInvalidConfiguration, len(nearFar))
	}
	d.Near, d.Far = nearFar[0], nearFar[1]

	res := viper.GetIntSlice("camera.resolution")
	if len(res) != 2 {
		return d, fmt.Errorf("%w: camera.resolution must have 2 values (width, height), got %d",
			core.ErrInvalidConfiguration, len(res))
	}
	d.Width, d.Height = res[0], res[1]
	return d, nil
}

// GetCaptureConfig returns the image output settings.
func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		OutputDir: viper.GetString("capture.outputDir"),
		Format:    viper.GetString("capture.format"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		ExportInterval: viper.GetDuration("otel.exportInterval"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the dataset server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Upload:    viper.GetBool("api.upload"),
	}
}

// getFloats reads a numeric list. viper has no float slice getter, and
// values from JSON files arrive as []any.
func getFloats(key string) []float64 {
	switch v := viper.Get(key).(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, x := range v {
			switch n := x.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil
			}
		}
		return out
	}
	return nil
}
