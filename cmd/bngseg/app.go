package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/bngseg/collector/internal/api"
	"github.com/bngseg/collector/internal/collect"
	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/internal/logging"
	"github.com/bngseg/collector/internal/metrics"
	intOtel "github.com/bngseg/collector/internal/otel"
	"github.com/bngseg/collector/internal/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const appName = "bngseg"

// app holds the services shared by the commands for one invocation.
type app struct {
	start time.Time

	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	logFile     *os.File
	graylog     *gelf.Writer

	OTelProvider *intOtel.Provider
	influx       *metrics.Manager
	Metrics      *metrics.Recorder

	Storage storage.Backend
}

// appOptions selects the optional services a command needs.
type appOptions struct {
	storage bool
	metrics bool
}

// newApp sets up logging, then the services selected by opts. Console
// output goes to stderr so command output on stdout stays clean.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{start: time.Now()}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, appName, a.start)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	a.logFile = f

	var graylogErr error
	if viper.GetBool("graylog.enabled") {
		a.graylog, graylogErr = logging.NewGraylogWriter(viper.GetString("graylog.address"))
	}

	a.SlogManager = logging.NewSlogManager()
	var gw logging.MessageWriter
	if a.graylog != nil {
		gw = a.graylog
	}
	a.SlogManager.Setup(io.MultiWriter(os.Stderr, f), viper.GetString("logLevel"), gw)
	a.Logger = a.SlogManager.Logger()
	slog.SetDefault(a.Logger)
	if graylogErr != nil {
		a.Logger.Warn("Graylog output disabled", "error", graylogErr)
	}
	a.Logger.Debug("Session log file", "path", logPath)

	if opts.metrics {
		if err := a.initMetrics(ctx, logsDir); err != nil {
			a.Close()
			return nil, err
		}
	}
	if opts.storage {
		if err := a.initStorage(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) initMetrics(ctx context.Context, logsDir string) error {
	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ExportInterval: otelCfg.ExportInterval,
		Writer:         a.logFile, // metrics are exported next to the logs
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OTel provider: %w", err)
	}
	a.OTelProvider = provider
	if provider.Enabled() {
		a.Logger.Info("OTel provider initialized", "interval", otelCfg.ExportInterval)
	}

	var influx metrics.Writer
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		zl := zerolog.New(zerolog.ConsoleWriter{
			Out:        a.logFile,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}).With().Timestamp().Str("component", "influx").Logger()

		backup := filepath.Join(logsDir, fmt.Sprintf("influx_backup.%s.lp.gz", a.start.Format("20060102_150405")))
		a.influx = metrics.NewManager(zl, influxCfg, backup)
		if err := a.influx.Connect(ctx); err != nil {
			a.Logger.Warn("InfluxDB unavailable, metrics not recorded", "error", err)
			a.influx = nil
		} else {
			influx = a.influx
		}
	}

	rec, err := metrics.New(provider.Meter(appName), influx, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}
	a.Metrics = rec
	return nil
}

func (a *app) initStorage() error {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.NewBackend(storageCfg, a.Logger)
	if err != nil {
		a.Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		a.Logger.Error("Failed to initialize storage backend", "type", storageCfg.Type, "error", err)
		return err
	}
	a.Storage = backend
	a.Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return nil
}

// deps builds the collaborators of a collection run.
func (a *app) deps(intr *interrupter) collect.Deps {
	d := collect.Deps{
		Logger:        a.Logger,
		RecordContext: intr.RecordContext,
	}
	if a.Storage != nil {
		d.Sink = a.Storage
	}
	if a.Metrics != nil {
		d.Observer = a.Metrics
		d.OnPoint = a.Metrics.PointRecorded
	}

	apiCfg := config.GetAPIConfig()
	if apiCfg.Upload {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := client.Healthcheck(); err != nil {
			a.Logger.Warn("Dataset server unreachable, sessions will not be uploaded", "url", apiCfg.ServerURL, "error", err)
		} else {
			d.Uploader = client
		}
	}
	return d
}

// Close releases everything newApp opened, flushing metrics first.
func (a *app) Close() error {
	var errs []error

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.OTelProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.OTelProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown otel: %w", err))
		}
		cancel()
	}
	if a.Logger != nil {
		a.Logger.Info("Finished", "took", time.Since(a.start).Round(time.Millisecond))
	}
	if a.graylog != nil {
		_ = a.graylog.Close()
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
