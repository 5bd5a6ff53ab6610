package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bngseg/collector/internal/collect"
	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/internal/geo"
	"github.com/bngseg/collector/internal/plan"
	"github.com/bngseg/collector/pkg/core"
	"github.com/spf13/cobra"
)

// collectOptions builds run options from the configuration. Cars and maps
// come from the layout file when one is given.
func collectOptions(layoutPath string) (collect.Options, error) {
	vehicle, err := config.GetVehicleConfig()
	if err != nil {
		return collect.Options{}, err
	}
	defaults, err := config.GetCameraDefaults()
	if err != nil {
		return collect.Options{}, err
	}

	opts := collect.Options{
		Simulator: config.GetSimulatorConfig(),
		Scenario:  config.GetScenarioConfig(),
		Vehicle:   vehicle,
		Record:    config.GetRecordConfig(),
		Sample:    config.GetSampleConfig(),
		Capture:   config.GetCaptureConfig(),
	}

	if layoutPath == "" {
		rig := core.CameraRig{Pos: collect.DefaultRig.Pos, Dir: collect.DefaultRig.Dir, Up: collect.DefaultRig.Up}
		opts.Cars = []core.Car{{Model: vehicle.Model, Rigs: []core.CameraRig{rig.WithDefaults(defaults)}}}
		return opts, nil
	}

	layout, err := plan.LoadLayout(layoutPath, defaults)
	if err != nil {
		return collect.Options{}, err
	}
	opts.Scenario.Map = layout.BaseMap
	opts.Scenario.AnnotatedMap = layout.AnnotatedMap
	opts.Cars = layout.Cars
	return opts, nil
}

func newCollectCmd(intr *interrupter) *cobra.Command {
	var layoutPath, pathFile string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Record a path, sample locations along it and capture image pairs",
		Long: `Starts a scenario on the base map, records the path driven until Ctrl+C
(or loads --path), samples capture locations along it, saves the capture
history and captures base and annotated images for every car and location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := collectOptions(layoutPath)
			if err != nil {
				return err
			}
			opts.PathFile = pathFile

			a, err := newApp(cmd.Context(), appOptions{storage: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := collect.Run(cmd.Context(), a.deps(intr), opts)
			if res != nil {
				printResult(cmd, res)
			}
			if err != nil {
				a.Logger.Error("Collection failed", "error", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&layoutPath, "layout", "", "layout file with maps, cars and camera rigs")
	f.StringVar(&pathFile, "path", "", "WKT path file to sample from instead of recording")
	addSampleFlags(cmd)
	addCaptureFlags(cmd)
	f.String("map", "", "base map (overridden by --layout)")
	f.Bool("upload", false, "upload each session to the dataset server")
	return cmd
}

func newRecordCmd(intr *interrupter) *cobra.Command {
	var out, origin string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the path driven on the base map until Ctrl+C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := collectOptions("")
			if err != nil {
				return err
			}
			opts.PathOut = out

			var o geo.Origin
			if origin != "" {
				if o, err = geo.ParseOrigin(origin); err != nil {
					return fmt.Errorf("--origin %q: %w", origin, err)
				}
			}

			a, err := newApp(cmd.Context(), appOptions{storage: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			points, file, err := collect.Record(cmd.Context(), a.deps(intr), opts)
			if err != nil {
				a.Logger.Error("Recording failed", "error", err)
				return err
			}
			if file == "" {
				return fmt.Errorf("%w: recorded %d points at one position", core.ErrEmptyInput, len(points))
			}
			fmt.Fprintln(cmd.OutOrStdout(), file)

			if origin != "" {
				geoFile, err := writeGeoreferenced(file, points, o)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), geoFile)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&out, "out", "", "path file to write (WKT)")
	f.StringVar(&origin, "origin", "", `"long,lat" of the map origin; also writes a WGS84 copy of the path`)
	f.Duration("interval", 0, "position poll interval (default 1s)")
	f.Bool("countdown", true, "count down before recording starts")
	f.String("map", "", "map to record on")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// writeGeoreferenced writes points placed at o next to file as
// <name>.wgs84.wkt.
func writeGeoreferenced(file string, points []core.Vec3, o geo.Origin) (string, error) {
	ls, err := geo.Georeference(points, o)
	if err != nil {
		return "", err
	}
	geoFile := strings.TrimSuffix(file, filepath.Ext(file)) + ".wgs84.wkt"
	if err := os.WriteFile(geoFile, []byte(ls.AsText()+"\n"), 0644); err != nil {
		return "", fmt.Errorf("save georeferenced path: %w", err)
	}
	return geoFile, nil
}

func newPlanCmd() *cobra.Command {
	var layoutPath, pathFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Sample locations along a path and save the capture history without capturing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := collectOptions(layoutPath)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			points, err := geo.LoadPath(pathFile)
			if err != nil {
				return err
			}
			h, err := collect.BuildHistory(opts, points)
			if err != nil {
				return err
			}
			file, err := h.Save(opts.Capture.OutputDir)
			if err != nil {
				return err
			}
			a.Logger.Info("Saved capture history", "file", file, "shots", h.Len())
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&layoutPath, "layout", "", "layout file with maps, cars and camera rigs")
	f.StringVar(&pathFile, "path", "", "WKT path file to sample from")
	f.String("out-dir", "", "directory to write the history to")
	f.String("map", "", "base map (overridden by --layout)")
	addSampleFlags(cmd)
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newCaptureCmd(intr *interrupter) *cobra.Command {
	var historyFile string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the shots of a saved capture history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := plan.LoadHistory(historyFile)
			if err != nil {
				return err
			}
			opts, err := collectOptions("")
			if err != nil {
				return err
			}
			opts.History = h

			a, err := newApp(cmd.Context(), appOptions{storage: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := collect.Run(cmd.Context(), a.deps(intr), opts)
			if res != nil {
				printResult(cmd, res)
			}
			if err != nil {
				a.Logger.Error("Capture failed", "error", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&historyFile, "history", "", "capture history file (.bin)")
	addCaptureFlags(cmd)
	f.Bool("upload", false, "upload each session to the dataset server")
	_ = cmd.MarkFlagRequired("history")
	return cmd
}

func addSampleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("count", 10, "number of capture locations to sample")
	f.Float64("radius", 4, "max x/y offset of a location from the path (meters)")
	f.Uint64("seed", 0, "sampling seed (0 seeds from the clock)")
}

func addCaptureFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Lookup("out-dir") == nil {
		f.String("out-dir", "", "directory to write sessions to")
	}
	f.String("format", "png", "image format (png, bmp, tiff)")
	f.String("storage", "", "storage backend (memory, sqlite, postgres, websocket)")
}

func printResult(cmd *cobra.Command, res *collect.Result) {
	w := cmd.OutOrStdout()
	if res.PathFile != "" {
		fmt.Fprintln(w, "path:", res.PathFile)
	}
	if res.HistoryFile != "" {
		fmt.Fprintln(w, "history:", res.HistoryFile)
	}
	for _, s := range res.Sessions {
		fmt.Fprintf(w, "session: %s (%s, %d pairs)\n", s.Folder, s.CarModel, s.PairCount)
	}
}
