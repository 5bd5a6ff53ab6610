// Package streaming defines the messages a capture client streams to a
// dataset server over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/bngseg/collector/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeImagePair    = "image_pair"
	TypeRecordedPath = "recorded_path"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
	ID   uint   `json:"id,omitempty"`
}

// StartSessionPayload announces a saved session folder.
type StartSessionPayload struct {
	Session *core.SessionInfo `json:"session"`
}

// EndSessionPayload closes the session with its final pair count.
type EndSessionPayload struct {
	SessionID uint `json:"sessionId"`
	PairCount int  `json:"pairCount"`
}

// RecordedPathPayload carries a recorded path as WKT.
type RecordedPathPayload struct {
	Map    string  `json:"map"`
	Points int     `json:"points"`
	Length float64 `json:"length"`
	WKT    string  `json:"wkt"`
}
