package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/bngseg/collector/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	// Only start_session and end_session are acked, one at a time. The spare
	// slots hold the ack of a start_session replayed after a redial.
	ackBufSize = 4
	writeWait  = 10 * time.Second
	maxRedial  = 3
	redialWait = 200 * time.Millisecond
)

var errClosed = errors.New("websocket sink closed")

// connection is the sink's link to the dataset server. Messages are written
// on the caller's goroutine so a failed write reaches the session that sent
// it; a reader goroutine per socket routes acks.
type connection struct {
	url    string
	secret string
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	// resume is the start_session of the open session, replayed after a
	// redial so the server reattaches the pairs that follow.
	resume []byte

	acks chan streaming.AckMessage
	done chan struct{}
}

func newConnection(rawURL, secret string, logger *slog.Logger) *connection {
	return &connection{
		url:    rawURL,
		secret: secret,
		logger: logger,
		acks:   make(chan streaming.AckMessage, ackBufSize),
		done:   make(chan struct{}),
	}
}

func (c *connection) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked()
}

func (c *connection) dialLocked() error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// redialLocked replaces a lost socket and replays the open session's
// start_session on it.
func (c *connection) redialLocked() error {
	wait := redialWait
	var err error
	for attempt := 1; attempt <= maxRedial; attempt++ {
		if attempt > 1 {
			time.Sleep(wait)
			wait *= 2
		}
		if err = c.dialLocked(); err != nil {
			c.logger.Warn("WebSocket redial failed", "attempt", attempt, "error", err)
			continue
		}
		if c.resume != nil {
			if err = c.writeLocked(c.resume); err != nil {
				c.logger.Warn("Failed to replay start_session", "attempt", attempt, "error", err)
				continue
			}
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt, "resumed", c.resume != nil)
		return nil
	}
	return fmt.Errorf("reconnect after %d attempts: %w", maxRedial, err)
}

// writeLocked writes one text message. A failed socket is dropped.
func (c *connection) writeLocked(data []byte) error {
	conn := c.conn
	err := conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err == nil {
		err = conn.WriteMessage(ws.TextMessage, data)
	}
	if err != nil {
		_ = conn.Close()
		c.conn = nil
	}
	return err
}

// send writes data, redialing once when the socket is gone or the write
// fails.
func (c *connection) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed
	}
	if c.conn != nil {
		err := c.writeLocked(data)
		if err == nil {
			return nil
		}
		c.logger.Warn("WebSocket write failed, reconnecting", "error", err)
	}
	if err := c.redialLocked(); err != nil {
		return err
	}
	return c.writeLocked(data)
}

// readLoop routes acks from conn until it fails. A failed socket that is
// still current is dropped so the next send redials.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				_ = conn.Close()
				c.conn = nil
				if !c.closed {
					c.logger.Warn("WebSocket read error", "error", err)
				}
			}
			c.mu.Unlock()
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// request sends data and waits for the server's ack of type ackFor.
func (c *connection) request(data []byte, ackFor string, timeout time.Duration) (streaming.AckMessage, error) {
	for len(c.acks) > 0 {
		<-c.acks
	}
	if err := c.send(data); err != nil {
		return streaming.AckMessage{}, fmt.Errorf("send %s: %w", ackFor, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return ack, nil
			}
		case <-timer.C:
			return streaming.AckMessage{}, fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return streaming.AckMessage{}, fmt.Errorf("waiting for ack of %q: %w", ackFor, errClosed)
		}
	}
}

// startSession announces a session and returns the ID the server assigned
// in its ack, or 0 when it assigned none.
func (c *connection) startSession(data []byte) (uint, error) {
	ack, err := c.request(data, streaming.TypeStartSession, ackTimeout)
	if err != nil {
		return 0, err
	}
	return ack.ID, nil
}

// setResume sets the start_session replayed after a redial.
func (c *connection) setResume(data []byte) {
	c.mu.Lock()
	c.resume = data
	c.mu.Unlock()
}

// endSession closes the open session. Nothing is replayed afterwards, even
// when the ack never came.
func (c *connection) endSession(data []byte) error {
	_, err := c.request(data, streaming.TypeEndSession, ackTimeout)
	c.setResume(nil)
	return err
}

// close sends a close frame and stops the reader.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}
