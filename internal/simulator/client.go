// Package simulator is a client for the BeamNG.tech TCP protocol: it
// launches or connects to the simulator, builds and starts scenarios, moves
// vehicles and polls cameras mounted on them.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bngseg/collector/pkg/core"
)

const (
	dialRetryInterval = time.Second
	requestTimeout    = 5 * time.Minute
)

// Config holds the simulator connection settings.
type Config struct {
	Host            string
	Port            int
	Home            string // simulator install directory, required to launch
	User            string // user directory passed to a launched simulator
	Launch          bool
	Timeout         time.Duration // how long Dial keeps retrying
	ProtocolVersion string
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a connection to a running simulator. Requests are serialized:
// one request is in flight at a time.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
	cfg    Config
	logger *slog.Logger
	proc   *process
}

// Dial connects to the simulator, launching it first when cfg.Launch is
// set, and performs the protocol handshake. Connection attempts are retried
// until cfg.Timeout elapses.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, logger: logger}

	if cfg.Launch {
		proc, err := launch(cfg, logger)
		if err != nil {
			return nil, err
		}
		c.proc = proc
	}

	conn, err := dialRetry(ctx, cfg, logger)
	if err != nil {
		c.stopProcess()
		return nil, err
	}
	c.conn = conn

	if err := c.hello(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	logger.Info("Connected to simulator", "addr", cfg.addr(), "protocolVersion", cfg.ProtocolVersion)
	return c, nil
}

func dialRetry(ctx context.Context, cfg Config, logger *slog.Logger) (net.Conn, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = dialRetryInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	var lastErr error
	for attempt := 1; ; attempt++ {
		conn, err := d.DialContext(ctx, "tcp", cfg.addr())
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Debug("Simulator not reachable yet", "addr", cfg.addr(), "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: cannot connect to %s within %s: %v",
				core.ErrSimulatorUnavailable, cfg.addr(), timeout, lastErr)
		case <-time.After(dialRetryInterval):
		}
	}
}

func (c *Client) hello(ctx context.Context) error {
	resp, err := c.Request(ctx, "Hello", Message{"protocolVersion": c.cfg.ProtocolVersion})
	if err != nil {
		return fmt.Errorf("%w: handshake: %v", core.ErrSimulatorUnavailable, err)
	}
	if got := resp.GetString("protocolVersion"); got != "" && got != c.cfg.ProtocolVersion {
		return fmt.Errorf("%w: simulator speaks protocol %s, client %s",
			core.ErrSimulatorUnavailable, got, c.cfg.ProtocolVersion)
	}
	return nil
}

// Request sends a request of the given type and waits for its response.
// Cancelling ctx aborts the wait and fails the request.
func (c *Client) Request(ctx context.Context, typ string, fields Message) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("%s: %w: connection closed", typ, core.ErrSimulatorUnavailable)
	}

	c.nextID++
	id := c.nextID

	req := make(Message, len(fields)+2)
	for k, v := range fields {
		req[k] = v
	}
	req["type"] = typ
	req["_id"] = id

	// ctx cancellation cuts the socket through the AfterFunc below, so the
	// deadline only bounds a simulator that stops answering.
	if err := c.conn.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		return nil, fmt.Errorf("%s: set deadline: %w", typ, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := writeFrame(c.conn, req); err != nil {
		return nil, c.requestError(ctx, typ, err)
	}

	for {
		resp, err := readFrame(c.conn)
		if err != nil {
			return nil, c.requestError(ctx, typ, err)
		}
		if rid, ok := resp.ID(); ok && rid != id {
			c.logger.Debug("Discarding stale simulator response", "type", typ, "want", id, "got", rid)
			continue
		}
		if err := resp.remoteError(typ); err != nil {
			return nil, err
		}
		c.logger.Debug("Simulator request done", "type", typ, "id", id, "took", time.Since(start))
		return resp, nil
	}
}

func (c *Client) requestError(ctx context.Context, typ string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", typ, ctxErr)
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("%s: %w", typ, context.DeadlineExceeded)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w: request timed out", typ, core.ErrSimulatorUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", typ, core.ErrSimulatorUnavailable, err)
}

// Close closes the connection. A simulator that was launched by Dial is
// stopped; one that was already running keeps running.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.stopProcess()
	return err
}

func (c *Client) stopProcess() {
	if c.proc != nil {
		c.proc.stop(c.logger)
		c.proc = nil
	}
}
