// Package websocket implements the storage.Backend interface by streaming
// session records to a dataset server.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bngseg/collector/internal/config"
	"github.com/bngseg/collector/internal/geo"
	"github.com/bngseg/collector/pkg/core"
	"github.com/bngseg/collector/pkg/streaming"
)

var errNoSession = errors.New("no session started")

// Backend streams capture sessions over WebSocket. Session start and end
// wait for a server ack; pairs and paths are only written. A lost socket is
// redialed on the next write and the open session resumed.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig

	mu        sync.Mutex
	current   *core.SessionInfo
	pairs     int
	idCounter uint
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(cfg.URL, cfg.Secret, logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and writes it.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if err := b.conn.send(data); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	return nil
}

// StartSession announces the session and waits for the server ack. The
// server may assign the session ID in its ack; otherwise IDs count up
// from 1 per connection.
func (b *Backend) StartSession(s *core.SessionInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	id, err := b.conn.startSession(data)
	if err != nil {
		return err
	}

	b.idCounter++
	s.ID = b.idCounter
	if id != 0 {
		s.ID = id
	}
	// a replay after a redial carries the assigned ID
	resume, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}
	b.conn.setResume(resume)
	b.current = s
	b.pairs = 0
	return nil
}

// RecordPair sends one pair of the current session.
func (b *Backend) RecordPair(p *core.PairRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	p.SessionID = b.current.ID
	if err := b.sendEnvelope(streaming.TypeImagePair, p); err != nil {
		return err
	}
	b.pairs++
	return nil
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return errNoSession
	}
	payload := streaming.EndSessionPayload{SessionID: b.current.ID, PairCount: b.pairs}
	data, err := marshalEnvelope(streaming.TypeEndSession, payload)
	if err != nil {
		return err
	}
	err = b.conn.endSession(data)
	b.current = nil
	b.pairs = 0
	return err
}

// RecordPath sends a recorded path as WKT.
func (b *Backend) RecordPath(mapID string, path []core.Vec3) error {
	wkt, err := geo.WKT(path)
	if err != nil {
		return fmt.Errorf("encode path: %w", err)
	}
	return b.sendEnvelope(streaming.TypeRecordedPath, streaming.RecordedPathPayload{
		Map:    mapID,
		Points: len(path),
		Length: geo.Length(path),
		WKT:    wkt,
	})
}

// ackTimeout bounds the wait for start_session and end_session acks.
var ackTimeout = 10 * time.Second
