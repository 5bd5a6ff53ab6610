package simulator

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"

	"github.com/ugorji/go/codec"
)

// maxFrameSize bounds a single message. Camera polls at high resolution
// are the largest messages on the wire.
const maxFrameSize = 256 << 20

var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	return h
}()

// Message is a decoded protocol message: a msgpack map keyed by field name.
type Message map[string]any

// writeFrame writes msg as a 4-byte big-endian length followed by its
// msgpack encoding.
func writeFrame(w io.Writer, msg Message) error {
	var body []byte
	if err := codec.NewEncoderBytes(&body, msgpackHandle).Encode(msg); err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed message from r.
func readFrame(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read message header: %w", err)
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit of %d", size, maxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}

	msg := Message{}
	if err := codec.NewDecoderBytes(body, msgpackHandle).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// RemoteError is an error reported by the simulator in a response.
type RemoteError struct {
	Request string
	Kind    string // bngError or bngValueError
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("simulator %s for %s: %s", e.Kind, e.Request, e.Message)
}

func (m Message) remoteError(request string) error {
	for _, kind := range []string{"bngError", "bngValueError"} {
		if v, ok := m[kind]; ok {
			return &RemoteError{Request: request, Kind: kind, Message: fmt.Sprint(v)}
		}
	}
	return nil
}

// GetString returns the string field key, or "" if absent.
func (m Message) GetString(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// GetBytes returns the binary field key.
func (m Message) GetBytes(key string) ([]byte, bool) {
	switch v := m[key].(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	}
	return nil, false
}

// GetFloats returns the numeric array field key.
func (m Message) GetFloats(key string) ([]float64, error) {
	raw, ok := m[key].([]any)
	if !ok {
		return nil, fmt.Errorf("field %q: expected array, got %T", key, m[key])
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("field %q[%d]: expected number, got %T", key, i, v)
		}
		out[i] = f
	}
	return out, nil
}

// ID returns the numeric request id echoed in a response.
func (m Message) ID() (uint64, bool) {
	f, ok := toFloat(m["_id"])
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}
