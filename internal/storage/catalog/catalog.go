// Package catalogstorage implements the storage.Backend interface on the
// GORM capture catalog. Pairs of the open session are buffered and written
// in one transaction when the session ends.
package catalogstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bngseg/collector/internal/catalog"
	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/internal/geo"
	"github.com/bngseg/collector/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNoSession = errors.New("no session started")

// Backend writes capture sessions, pairs and paths to a SQL catalog.
type Backend struct {
	open   func() (*gorm.DB, error)
	db     *gorm.DB
	logger *slog.Logger

	mu      sync.Mutex
	current *catalog.CaptureSession
	pending []catalog.ImagePair
}

// New creates a backend that connects with open on Init.
func New(open func() (*gorm.DB, error), logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{open: open, logger: logger}
}

// NewSQLite creates a backend on the SQLite file at path.
func NewSQLite(cfg config.SQLiteConfig, logger *slog.Logger) *Backend {
	return New(func() (*gorm.DB, error) { return catalog.OpenSQLite(cfg.Path) }, logger)
}

// NewPostgres creates a backend on a Postgres database.
func NewPostgres(cfg config.DBConfig, logger *slog.Logger) *Backend {
	return New(func() (*gorm.DB, error) { return catalog.OpenPostgres(cfg) }, logger)
}

// NewWithDB creates a backend on an open connection.
func NewWithDB(db *gorm.DB, logger *slog.Logger) *Backend {
	b := New(nil, logger)
	b.db = db
	return b
}

// Init connects if needed and migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		if b.open == nil {
			return fmt.Errorf("catalog: no database configured")
		}
		db, err := b.open()
		if err != nil {
			return fmt.Errorf("failed to connect to catalog: %w", err)
		}
		b.db = db
	}
	if err := catalog.Migrate(b.db); err != nil {
		return err
	}
	b.logger.Info("Catalog ready", "dialect", b.db.Name())
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// StartSession inserts the session row and assigns its ID to s.
func (b *Backend) StartSession(s *core.SessionInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	row := catalog.CaptureSession{
		Folder:       s.Folder,
		Name:         filepath.Base(s.Folder),
		MapName:      s.Map,
		AnnotatedMap: s.AnnotatedMap,
		CarModel:     s.CarModel,
		StartedAt:    s.StartedAt,
		PairCount:    s.PairCount,
	}
	if err := b.db.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert capture session: %w", err)
	}
	s.ID = row.ID
	b.current = &row
	b.pending = b.pending[:0]
	return nil
}

// RecordPair buffers a pair of the current session.
func (b *Backend) RecordPair(p *core.PairRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	location, err := json.Marshal(p.Location)
	if err != nil {
		return fmt.Errorf("failed to encode pair location: %w", err)
	}
	rig, err := json.Marshal(p.Rig)
	if err != nil {
		return fmt.Errorf("failed to encode pair rig: %w", err)
	}

	p.SessionID = b.current.ID
	b.pending = append(b.pending, catalog.ImagePair{
		SessionID:     b.current.ID,
		Name:          p.Name,
		LocationIndex: p.LocationIndex,
		CameraIndex:   p.CameraIndex,
		PosX:          p.Location.Pos.X,
		PosY:          p.Location.Pos.Y,
		PosZ:          p.Location.Pos.Z,
		Location:      datatypes.JSON(location),
		Rig:           datatypes.JSON(rig),
		BasePath:      p.BasePath,
		AnnotatedPath: p.AnnotatedPath,
	})
	return nil
}

// EndSession writes the buffered pairs and the final pair count.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	session := b.current
	pairs := b.pending
	b.current = nil
	b.pending = nil

	start := time.Now()
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if len(pairs) > 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(pairs, 500).Error; err != nil {
				return fmt.Errorf("failed to insert image pairs: %w", err)
			}
		}
		return tx.Model(&catalog.CaptureSession{}).
			Where("id = ?", session.ID).
			Update("pair_count", len(pairs)).Error
	})
	if err != nil {
		return err
	}
	b.logger.Debug("Wrote session to catalog",
		"session", session.ID,
		"pairs", len(pairs),
		"took", time.Since(start))
	return nil
}

// RecordPath stores a recorded path as WKT.
func (b *Backend) RecordPath(mapID string, path []core.Vec3) error {
	wkt, err := geo.WKT(path)
	if err != nil {
		return fmt.Errorf("failed to encode path: %w", err)
	}
	row := catalog.RecordedPath{
		Time:       time.Now(),
		MapName:    mapID,
		PointCount: len(path),
		LengthM:    geo.Length(path),
		Path:       wkt,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert recorded path: %w", err)
	}
	return nil
}

// Sessions returns every stored session with its pairs, oldest first.
func (b *Backend) Sessions() ([]catalog.CaptureSession, error) {
	var sessions []catalog.CaptureSession
	err := b.db.Preload("Pairs", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("id").Find(&sessions).Error
	return sessions, err
}

// Paths returns the recorded paths of a map, newest first.
func (b *Backend) Paths(mapID string) ([]catalog.RecordedPath, error) {
	var paths []catalog.RecordedPath
	err := b.db.Where("map_name = ?", mapID).Order("time desc").Find(&paths).Error
	return paths, err
}
