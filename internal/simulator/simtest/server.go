// Package simtest provides an in-process fake simulator speaking the
// simulator TCP protocol, for tests of code built on the simulator client.
package simtest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"testing"

	"github.com/ugorji/go/codec"
)

// Handler answers one request. A returned error is reported to the client
// as a bngError.
type Handler func(req map[string]any) (map[string]any, error)

// Server is a fake simulator listening on a loopback port.
type Server struct {
	ln     net.Listener
	handle *codec.MsgpackHandle

	mu       sync.Mutex
	handlers map[string]Handler
	requests []map[string]any
	vehicles map[string][]float64
	cameras  map[string][2]int
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer starts a fake simulator with handlers for every request the
// client issues. It is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("simtest: listen: %v", err)
	}

	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]any(nil))

	s := &Server{
		ln:       ln,
		handle:   h,
		handlers: map[string]Handler{},
		vehicles: map[string][]float64{},
		cameras:  map[string][2]int{},
		conns:    map[net.Conn]struct{}{},
	}
	s.installDefaults()

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Host returns the listening host.
func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Handle replaces the handler for a request type.
func (s *Server) Handle(typ string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[typ] = h
}

// Requests returns the received requests of the given type, or all
// requests when typ is empty.
func (s *Server) Requests(typ string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for _, r := range s.requests {
		if typ == "" || r["type"] == typ {
			out = append(out, r)
		}
	}
	return out
}

// SetPosition sets the position GetCenterOfGravity reports for vid.
func (s *Server) SetPosition(vid string, x, y, z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[vid] = []float64{x, y, z}
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		req, err := s.read(conn)
		if err != nil {
			return
		}
		typ, _ := req["type"].(string)

		s.mu.Lock()
		s.requests = append(s.requests, req)
		h := s.handlers[typ]
		s.mu.Unlock()

		var resp map[string]any
		if h == nil {
			resp = map[string]any{"bngError": fmt.Sprintf("unknown request type %q", typ)}
		} else if resp, err = h(req); err != nil {
			resp = map[string]any{"bngError": err.Error()}
		}
		if resp == nil {
			resp = map[string]any{}
		}
		resp["_id"] = req["_id"]
		if _, ok := resp["type"]; !ok {
			resp["type"] = typ
		}

		if err := s.write(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) read(r io.Reader) (map[string]any, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	msg := map[string]any{}
	if err := codec.NewDecoderBytes(body, s.handle).Decode(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Server) write(w io.Writer, msg map[string]any) error {
	var body []byte
	if err := codec.NewEncoderBytes(&body, s.handle).Encode(msg); err != nil {
		return err
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err := w.Write(frame)
	return err
}

// ColorValue and AnnotationValue fill the RGB bytes of polled frames.
const (
	ColorValue      byte = 0x80
	AnnotationValue byte = 0x20
)

func (s *Server) installDefaults() {
	ok := func(map[string]any) (map[string]any, error) { return map[string]any{}, nil }

	s.handlers["Hello"] = func(req map[string]any) (map[string]any, error) {
		return map[string]any{"protocolVersion": req["protocolVersion"]}, nil
	}
	s.handlers["CreateScenario"] = func(req map[string]any) (map[string]any, error) {
		if vs, ok := req["vehicles"].([]any); ok {
			for _, v := range vs {
				s.trackVehicle(v)
			}
		}
		return map[string]any{
			"path": fmt.Sprintf("levels/%v/scenarios/%v.json", req["level"], req["name"]),
		}, nil
	}
	s.handlers["LoadScenario"] = ok
	s.handlers["StartScenario"] = ok
	s.handlers["SpawnVehicle"] = func(req map[string]any) (map[string]any, error) {
		s.trackVehicle(req)
		return map[string]any{}, nil
	}
	s.handlers["DespawnVehicle"] = ok
	s.handlers["Teleport"] = func(req map[string]any) (map[string]any, error) {
		vid, _ := req["vehicle"].(string)
		pos, err := floats(req["pos"])
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.vehicles[vid] = pos
		s.mu.Unlock()
		return map[string]any{"success": true}, nil
	}
	s.handlers["GetCenterOfGravity"] = func(req map[string]any) (map[string]any, error) {
		vid, _ := req["vid"].(string)
		s.mu.Lock()
		pos, ok := s.vehicles[vid]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("vehicle %q not found", vid)
		}
		return map[string]any{"result": pos}, nil
	}
	s.handlers["OpenCamera"] = func(req map[string]any) (map[string]any, error) {
		name, _ := req["name"].(string)
		size, err := floats(req["size"])
		if err != nil || len(size) != 2 {
			return nil, fmt.Errorf("bad camera size %v", req["size"])
		}
		s.mu.Lock()
		s.cameras[name] = [2]int{int(size[0]), int(size[1])}
		s.mu.Unlock()
		return map[string]any{}, nil
	}
	s.handlers["PollCamera"] = func(req map[string]any) (map[string]any, error) {
		name, _ := req["name"].(string)
		s.mu.Lock()
		size, ok := s.cameras[name]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("camera %q not open", name)
		}
		return map[string]any{
			"colour":     fill(size[0], size[1], ColorValue),
			"annotation": fill(size[0], size[1], AnnotationValue),
		}, nil
	}
	s.handlers["CloseCamera"] = func(req map[string]any) (map[string]any, error) {
		name, _ := req["name"].(string)
		s.mu.Lock()
		delete(s.cameras, name)
		s.mu.Unlock()
		return map[string]any{}, nil
	}
}

func (s *Server) trackVehicle(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	vid, _ := m["vid"].(string)
	pos, err := floats(m["pos"])
	if vid == "" || err != nil {
		return
	}
	s.mu.Lock()
	s.vehicles[vid] = pos
	s.mu.Unlock()
}

func fill(w, h int, v byte) []byte {
	buf := make([]byte, w*h*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = v, v, v, 0xff
	}
	return buf
}

func floats(v any) ([]float64, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, errors.New("expected array")
	}
	out := make([]float64, len(raw))
	for i, x := range raw {
		switch n := x.(type) {
		case float64:
			out[i] = n
		case int64:
			out[i] = float64(n)
		case uint64:
			out[i] = float64(n)
		default:
			return nil, fmt.Errorf("element %d is %T", i, x)
		}
	}
	return out, nil
}
