// internal/storage/storage.go
package storage

import "github.com/bngseg/collector/pkg/core"

// Backend is the interface all capture sinks must satisfy. Sinks are told
// about a session after its files are on disk.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (assigns ID to the passed session)
	StartSession(s *core.SessionInfo) error
	EndSession() error

	// Recording
	RecordPair(p *core.PairRecord) error
	RecordPath(mapID string, path []core.Vec3) error
}
