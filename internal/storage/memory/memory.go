// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"slices"
	"sync"

	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/pkg/core"
)

var errNoSession = errors.New("no active capture session")

// SessionRecord groups a session with the pairs saved in it
type SessionRecord struct {
	Session core.SessionInfo
	Pairs   []core.PairRecord
}

// PathRecord is a recorded path on a map
type PathRecord struct {
	MapID  string
	Points []core.Vec3
}

// Backend keeps capture sessions in memory and exports each to JSON
type Backend struct {
	cfg config.MemoryConfig

	current  *SessionRecord
	sessions []*SessionRecord
	paths    []PathRecord

	idCounter uint
	mu        sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.SessionInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	b.current = &SessionRecord{Session: *s}
	return nil
}

// EndSession finalizes and exports the session
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	rec := b.current
	rec.Session.PairCount = len(rec.Pairs)
	b.sessions = append(b.sessions, rec)
	b.current = nil

	return b.exportJSON(rec)
}

// RecordPair adds a saved image pair to the active session
func (b *Backend) RecordPair(p *core.PairRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	p.SessionID = b.current.Session.ID
	b.current.Pairs = append(b.current.Pairs, *p)
	return nil
}

// RecordPath stores a recorded path
func (b *Backend) RecordPath(mapID string, path []core.Vec3) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.paths = append(b.paths, PathRecord{MapID: mapID, Points: slices.Clone(path)})
	return nil
}

// Sessions returns the finished sessions
func (b *Backend) Sessions() []SessionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SessionRecord, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, *s)
	}
	return out
}

// Paths returns the recorded paths
func (b *Backend) Paths() []PathRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.paths)
}
