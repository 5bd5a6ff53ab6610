// Package collect runs a full data collection: it records a path on the
// base map, samples capture locations along it, builds the capture plan and
// captures paired images for every car.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bngseg/collector/internal/capture"
	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/internal/geo"
	"github.com/bngseg/collector/internal/imaging"
	"github.com/bngseg/collector/internal/plan"
	"github.com/bngseg/collector/internal/recorder"
	"github.com/bngseg/collector/internal/sampler"
	"github.com/bngseg/collector/internal/simulator"
	"github.com/bngseg/collector/internal/storage"
	"github.com/bngseg/collector/pkg/core"
)

// VehicleID is the simulator id of the captured vehicle.
const VehicleID = "car0"

// RecordPrompt is shown before path recording starts.
const RecordPrompt = "Press Enter to start recording..."

// DefaultRig is the camera used when no layout is given: above the car,
// looking backwards along it.
var DefaultRig = core.NewCameraRig(
	core.Vec3{X: -0.3, Y: 1, Z: 2},
	core.Vec3{X: 0, Y: -1, Z: 0},
	core.Vec3{X: 0, Y: 0, Z: 1},
)

// Uploader sends a saved session folder to the dataset server.
type Uploader interface {
	UploadSession(folder string, meta core.UploadMetadata) error
}

// Deps are the collaborators of a run. All fields are optional.
type Deps struct {
	Sink     storage.Backend
	Observer capture.Observer
	OnPoint  func(core.Vec3)
	Uploader Uploader

	// In and Out carry operator prompts. Default to os.Stdin and os.Stdout.
	In  io.Reader
	Out io.Writer

	// RecordContext returns the context path recording runs under; its
	// cancellation ends the recording. Defaults to stopping on os.Interrupt.
	RecordContext func(ctx context.Context) (context.Context, context.CancelFunc)

	Logger *slog.Logger
}

// Options configure a run.
type Options struct {
	Simulator config.SimulatorConfig
	Scenario  config.ScenarioConfig
	Vehicle   config.VehicleConfig
	Record    config.RecordConfig
	Sample    config.SampleConfig
	Capture   config.CaptureConfig

	// Cars to capture with. Empty means Vehicle.Model with DefaultRig.
	Cars []core.Car

	// PathFile, if set, is a WKT path loaded instead of recording one.
	PathFile string

	// PathOut is where a recorded path is saved. Defaults to a timestamped
	// file in Capture.OutputDir.
	PathOut string

	// History, if set, is replayed instead of recording and sampling.
	History *plan.History
}

// Result lists what a run wrote.
type Result struct {
	PathFile    string
	HistoryFile string
	Sessions    []*core.SessionInfo
}

// Run performs a collection. See the package doc for the steps.
func Run(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	r, err := newRunner(deps, opts)
	if err != nil {
		return nil, err
	}

	client, err := simulator.Dial(ctx, simulatorConfig(opts.Simulator), r.logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	r.client = client

	return r.run(ctx)
}

// Record loads the base map and records a path only. Options.PathFile and
// Options.History are ignored.
func Record(ctx context.Context, deps Deps, opts Options) ([]core.Vec3, string, error) {
	opts.PathFile, opts.History = "", nil
	r, err := newRunner(deps, opts)
	if err != nil {
		return nil, "", err
	}

	client, err := simulator.Dial(ctx, simulatorConfig(opts.Simulator), r.logger)
	if err != nil {
		return nil, "", err
	}
	defer client.Close()
	r.client = client

	if err := r.loadScenario(ctx, r.baseMap); err != nil {
		return nil, "", err
	}
	return r.path(ctx)
}

// BuildHistory samples Sample.Count locations along points and crosses them
// with the cars on the scenario maps.
func BuildHistory(opts Options, points []core.Vec3) (*plan.History, error) {
	baseMap, annotatedMap := opts.Scenario.Map, opts.Scenario.AnnotatedMap
	if baseMap == "" {
		return nil, fmt.Errorf("%w: no base map", core.ErrInvalidConfiguration)
	}
	if annotatedMap == "" {
		annotatedMap = baseMap
	}

	radius := opts.Sample.Radius
	if radius == 0 {
		radius = sampler.DefaultRadius
	}
	locations, err := sampler.New(opts.Sample.Seed).SampleMany(points, radius, opts.Sample.Count)
	if err != nil {
		return nil, err
	}

	cars := opts.Cars
	if len(cars) == 0 {
		cars = []core.Car{{Model: opts.Vehicle.Model, Rigs: []core.CameraRig{DefaultRig}}}
	}
	p, err := plan.New(baseMap, annotatedMap, cars, locations)
	if err != nil {
		return nil, err
	}
	return p.History(), nil
}

// runner holds the state of one collection.
type runner struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	writer *capture.Writer
	client *simulator.Client
	// in is shared by every prompt so no typed line is lost.
	in *capture.LineReader

	baseMap      string
	annotatedMap string

	spec    simulator.VehicleSpec
	vehicle *simulator.Vehicle
	cameras []*simulator.Camera
}

func newRunner(deps Deps, opts Options) (*runner, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}

	format, err := imaging.ParseFormat(opts.Capture.Format)
	if err != nil {
		return nil, err
	}

	baseMap, annotatedMap := opts.Scenario.Map, opts.Scenario.AnnotatedMap
	if opts.History != nil {
		baseMap, annotatedMap = opts.History.BaseMap(), opts.History.AnnotatedMap()
	}
	if baseMap == "" {
		return nil, fmt.Errorf("%w: no base map", core.ErrInvalidConfiguration)
	}
	if annotatedMap == "" {
		annotatedMap = baseMap
	}
	if opts.Vehicle.Model == "" {
		return nil, fmt.Errorf("%w: no vehicle model", core.ErrInvalidConfiguration)
	}

	return &runner{
		deps:         deps,
		opts:         opts,
		logger:       logger,
		writer:       capture.NewWriter(opts.Capture.OutputDir, format),
		in:           capture.NewLineReader(deps.In),
		baseMap:      baseMap,
		annotatedMap: annotatedMap,
		spec: simulator.VehicleSpec{
			ID:    VehicleID,
			Model: opts.Vehicle.Model,
			Pose:  opts.Vehicle.Start,
		},
	}, nil
}

func simulatorConfig(c config.SimulatorConfig) simulator.Config {
	return simulator.Config{
		Host:            c.Host,
		Port:            c.Port,
		Home:            c.Home,
		User:            c.User,
		Launch:          c.Launch,
		Timeout:         c.Timeout,
		ProtocolVersion: c.ProtocolVersion,
	}
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	res := &Result{}

	if err := r.loadScenario(ctx, r.baseMap); err != nil {
		return nil, err
	}

	history := r.opts.History
	if history == nil {
		points, pathFile, err := r.path(ctx)
		if err != nil {
			return nil, err
		}
		res.PathFile = pathFile

		if history, err = BuildHistory(r.opts, points); err != nil {
			return nil, err
		}
		if res.HistoryFile, err = history.Save(r.opts.Capture.OutputDir); err != nil {
			return nil, err
		}
		r.logger.Info("Saved capture history", "file", res.HistoryFile, "shots", history.Len())
	}

	switcher := r.switcher()
	for _, group := range groupShots(history) {
		info, err := r.captureCar(ctx, switcher, group)
		if info != nil {
			res.Sessions = append(res.Sessions, info)
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// loadScenario starts a scenario on level holding the current vehicle.
func (r *runner) loadScenario(ctx context.Context, level string) error {
	v, err := r.client.QuickScenario(ctx, level, r.opts.Scenario.Name, r.spec)
	if err != nil {
		return err
	}
	r.vehicle = v
	return nil
}

// path loads the path file, or records a new path on the base map and
// stores it.
func (r *runner) path(ctx context.Context) ([]core.Vec3, string, error) {
	if r.opts.PathFile != "" {
		points, err := geo.LoadPath(r.opts.PathFile)
		if err != nil {
			return nil, "", err
		}
		r.logger.Info("Loaded path", "file", r.opts.PathFile, "points", len(points))
		return points, r.opts.PathFile, nil
	}

	if err := capture.WaitForEnter(ctx, r.in, r.deps.Out, RecordPrompt); err != nil {
		return nil, "", err
	}

	recordCtx, stop := r.recordContext(ctx)
	rec := recorder.New(r.opts.Record.Interval, r.opts.Record.Countdown)
	rec.Out = r.deps.Out
	rec.Logger = r.logger
	rec.OnPoint = r.deps.OnPoint
	points, err := rec.Record(recordCtx, r.vehicle)
	stop()
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if len(points) == 0 {
		return nil, "", fmt.Errorf("%w: no points recorded", core.ErrEmptyInput)
	}

	pathFile := r.opts.PathOut
	if pathFile == "" {
		pathFile = filepath.Join(r.opts.Capture.OutputDir,
			fmt.Sprintf("path_%s.wkt", time.Now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(pathFile), 0755); err != nil {
		return nil, "", fmt.Errorf("create output directory: %w", err)
	}
	switch err := geo.SavePath(pathFile, points); {
	case errors.Is(err, geo.ErrTooFewPoints):
		r.logger.Warn("Vehicle did not move, path not saved", "points", len(points))
		pathFile = ""
	case err != nil:
		return nil, "", err
	default:
		r.logger.Info("Saved path", "file", pathFile, "points", len(points), "length", geo.Length(points))
	}

	if r.deps.Sink != nil {
		if err := r.deps.Sink.RecordPath(r.baseMap, points); err != nil {
			r.logger.Error("Failed to record path in storage", "error", err)
		}
	}
	return points, pathFile, nil
}

func (r *runner) recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.deps.RecordContext != nil {
		return r.deps.RecordContext(ctx)
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

// switcher reloads the scenario on the other map when the maps differ.
// Otherwise the operator switches the track by hand.
func (r *runner) switcher() *capture.TrackSwitcher {
	if r.baseMap == r.annotatedMap {
		return capture.NewPromptSwitcher(r.in, r.deps.Out)
	}
	return &capture.TrackSwitcher{
		Do: func(ctx context.Context, to capture.Mode) error {
			level := r.baseMap
			if to == capture.ModeAnnotated {
				level = r.annotatedMap
			}
			if err := r.loadScenario(ctx, level); err != nil {
				return err
			}
			for _, cam := range r.cameras {
				if err := cam.Reopen(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// carShots are the consecutive shots of one car.
type carShots struct {
	model string
	rigs  []core.RigState
	shots []core.Shot
}

func groupShots(h *plan.History) []carShots {
	var groups []carShots
	for _, shots := range h.ShotsByCar() {
		groups = append(groups, carShots{model: shots[0].CarModel, rigs: shots[0].Rigs, shots: shots})
	}
	return groups
}

// captureCar puts the group's car in the scenario on the base map, opens
// its cameras and runs a capture session.
func (r *runner) captureCar(ctx context.Context, sw *capture.TrackSwitcher, g carShots) (*core.SessionInfo, error) {
	if err := r.useCar(ctx, sw, g.model); err != nil {
		return nil, err
	}

	r.cameras = r.cameras[:0]
	pollers := make([]capture.Poller, 0, len(g.rigs))
	for j, rig := range g.rigs {
		cam, err := r.client.OpenCamera(ctx, fmt.Sprintf("cam%d", j), r.vehicle, rig)
		if err != nil {
			r.closeCameras(ctx)
			return nil, err
		}
		r.cameras = append(r.cameras, cam)
		pollers = append(pollers, cam)
	}
	defer r.closeCameras(ctx)

	sess := &capture.Session{
		Vehicle:      vehicleRef{r},
		Cameras:      pollers,
		Switcher:     sw,
		Writer:       r.writer,
		Map:          r.baseMap,
		AnnotatedMap: r.annotatedMap,
		Sink:         r.deps.Sink,
		Observer:     r.deps.Observer,
		Logger:       r.logger,
	}
	info, err := sess.Run(ctx, g.shots)
	if info == nil {
		return nil, err
	}
	if err != nil {
		r.logger.Warn("Session saved with storage error", "folder", info.Folder, "error", err)
	}
	r.upload(info)
	return info, nil
}

// useCar makes model the scenario's vehicle, on the base map.
func (r *runner) useCar(ctx context.Context, sw *capture.TrackSwitcher, model string) error {
	// A reload back to the base map brings the new car with it.
	if sw.Current() == capture.ModeAnnotated && sw.Do != nil && r.baseMap != r.annotatedMap {
		r.spec.Model = model
		return sw.Switch(ctx, capture.ModeBase)
	}
	if model == r.spec.Model {
		return nil
	}
	r.spec.Model = model

	if err := r.vehicle.Despawn(ctx); err != nil {
		return err
	}
	v, err := r.client.SpawnVehicle(ctx, r.spec)
	if err != nil {
		return err
	}
	r.vehicle = v
	return nil
}

func (r *runner) closeCameras(ctx context.Context) {
	for _, cam := range r.cameras {
		if err := cam.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("Failed to close camera", "name", cam.Name(), "error", err)
		}
	}
	r.cameras = r.cameras[:0]
}

func (r *runner) upload(info *core.SessionInfo) {
	if r.deps.Uploader == nil {
		return
	}
	err := r.deps.Uploader.UploadSession(info.Folder, core.UploadMetadata{
		SessionName:  filepath.Base(info.Folder),
		Map:          info.Map,
		AnnotatedMap: info.AnnotatedMap,
		CarModel:     info.CarModel,
		PairCount:    info.PairCount,
	})
	if err != nil {
		r.logger.Error("Failed to upload session", "folder", info.Folder, "error", err)
		return
	}
	r.logger.Info("Uploaded session", "folder", info.Folder)
}

// vehicleRef teleports whichever vehicle the runner currently holds, since
// a scenario reload replaces the handle mid-session.
type vehicleRef struct{ r *runner }

func (v vehicleRef) Teleport(ctx context.Context, pose core.Pose) error {
	return v.r.vehicle.Teleport(ctx, pose)
}
