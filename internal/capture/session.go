package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/bngseg/collector/internal/storage"
	"github.com/bngseg/collector/pkg/core"
)

// Session captures one car's shots on both tracks and saves the pairs.
// Cameras[j] must be the camera opened for the shots' j-th rig.
type Session struct {
	Vehicle      Teleporter
	Cameras      []Poller
	Switcher     Switcher
	Writer       *Writer
	Map          string
	AnnotatedMap string

	// Optional
	Sink     storage.Backend
	Observer Observer
	Logger   *slog.Logger
}

// Run captures every shot on the base track, switches to the annotated
// track, captures them again, then pairs and saves the images. All shots
// must be for the same car with the same rigs. Storage sinks are notified
// once the files are on disk; a sink error is returned but the files are
// kept.
func (s *Session) Run(ctx context.Context, shots []core.Shot) (*core.SessionInfo, error) {
	if len(shots) == 0 {
		return nil, fmt.Errorf("%w: no shots to capture", core.ErrEmptyInput)
	}
	carModel := shots[0].CarModel
	rigs := shots[0].Rigs
	if len(rigs) != len(s.Cameras) {
		return nil, fmt.Errorf("%w: %d rigs but %d cameras", core.ErrInvalidConfiguration, len(rigs), len(s.Cameras))
	}

	locations := make([]core.Pose, len(shots))
	for i, shot := range shots {
		if shot.CarModel != carModel || shot.Car != shots[0].Car {
			return nil, fmt.Errorf("%w: shot %d is for car %d (%s), session car is %d (%s)",
				core.ErrInvalidConfiguration, i, shot.Car, shot.CarModel, shots[0].Car, carModel)
		}
		if !slices.Equal(shot.Rigs, rigs) {
			return nil, fmt.Errorf("%w: shot %d cameras differ from the session's", core.ErrInvalidConfiguration, i)
		}
		locations[i] = shot.Location
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	base, err := s.pass(ctx, ModeBase, locations)
	if err != nil {
		return nil, err
	}
	annotated, err := s.pass(ctx, ModeAnnotated, locations)
	if err != nil {
		return nil, err
	}

	paired, err := PairImages(base, annotated)
	if err != nil {
		return nil, err
	}

	writer := s.Writer
	if writer == nil {
		writer = NewWriter(".", "")
	}
	folder, err := writer.Save(paired, &Manifest{
		Map:          s.Map,
		AnnotatedMap: s.AnnotatedMap,
		CarModel:     carModel,
		Rigs:         rigs,
		Locations:    locations,
	})
	if err != nil {
		return nil, err
	}

	info := &core.SessionInfo{
		Folder:       folder,
		Map:          s.Map,
		AnnotatedMap: s.AnnotatedMap,
		CarModel:     carModel,
		StartedAt:    start,
		PairCount:    len(paired),
	}
	logger.Info("Saved capture session",
		"folder", folder,
		"car", carModel,
		"pairs", len(paired),
		"took", time.Since(start))
	if s.Observer != nil {
		s.Observer.SessionSaved(ctx, carModel, len(paired), time.Since(start))
	}

	if s.Sink != nil {
		if err := s.notify(info, locations, rigs, writer); err != nil {
			logger.Error("Failed to record session in storage", "folder", folder, "error", err)
			return info, err
		}
	}
	return info, nil
}

func (s *Session) pass(ctx context.Context, mode Mode, locations []core.Pose) (map[string]image.Image, error) {
	if s.Switcher != nil {
		if err := s.Switcher.Switch(ctx, mode); err != nil {
			return nil, err
		}
	}
	images, err := captureImages(ctx, s.Vehicle, locations, s.Cameras, mode == ModeAnnotated, s.Observer)
	if err != nil {
		return nil, fmt.Errorf("%s pass: %w", mode, err)
	}
	return images, nil
}

func (s *Session) notify(info *core.SessionInfo, locations []core.Pose, rigs []core.RigState, w *Writer) error {
	if err := s.Sink.StartSession(info); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	format := w.format()
	for i, loc := range locations {
		for j, rig := range rigs {
			name := Key(i, j)
			err := s.Sink.RecordPair(&core.PairRecord{
				SessionID:     info.ID,
				Name:          name,
				LocationIndex: i,
				CameraIndex:   j,
				Location:      loc,
				Rig:           rig,
				BasePath:      BasePath(info.Folder, name, format),
				AnnotatedPath: AnnotatedPath(info.Folder, name, format),
			})
			if err != nil {
				return fmt.Errorf("record pair %s: %w", name, err)
			}
		}
	}
	if err := s.Sink.EndSession(); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
