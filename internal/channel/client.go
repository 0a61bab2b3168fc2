// Package channel maintains the live connection to the verification service.
//
// The service pushes JSON envelopes of the form {"event": "...", "data": {...}}
// over a WebSocket. Handlers registered with On run sequentially on the
// client's single read goroutine, so a handler sees one event fully before
// the next is dispatched. Lost connections are retried a bounded number of
// times with a fixed delay; missed events are not replayed.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status is the connection state reported to the UI.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// Defaults for the reconnect budget.
const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

var (
	// ErrNoURL is returned by Connect when no endpoint is configured.
	ErrNoURL = errors.New("channel url not configured")

	// ErrAlreadyConnected is returned by Connect on a running client.
	ErrAlreadyConnected = errors.New("channel already connected")
)

// envelope is one message on the wire.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Config configures a Client.
type Config struct {
	URL               string
	Token             string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
}

// State is a point-in-time view of the connection.
type State struct {
	Status      Status    `json:"status"`
	Attempt     int       `json:"attempt,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Client is a reconnecting WebSocket event source.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	hmu      sync.RWMutex
	handlers map[string][]func([]byte)

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	wmu sync.Mutex // serializes writes
}

// New creates a disconnected client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = DefaultReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   logger.With("component", "channel"),
		handlers: make(map[string][]func([]byte)),
		state:    State{Status: StatusDisconnected},
	}
}

// On registers handler for event. Handlers may be added at any time.
func (c *Client) On(event string, handler func(payload []byte)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state.Status
	c.state = s
	c.mu.Unlock()

	if prev != s.Status {
		c.logger.Info("channel status changed", "from", prev, "to", s.Status, "attempt", s.Attempt)
	}
}

// Connect dials the service, retrying within the reconnect budget, and
// starts the read loop. It returns once the first connection is up.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrNoURL
	}

	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.setState(State{Status: StatusConnecting})
	conn, err := c.dialWithRetry(ctx, StatusConnecting)
	if err != nil {
		cancel()
		c.mu.Lock()
		close(c.done)
		c.done = nil
		c.cancel = nil
		c.mu.Unlock()
		return err
	}

	go c.run(runCtx, conn)
	return nil
}

// dialWithRetry makes up to ReconnectAttempts dial attempts, waiting
// ReconnectDelay between them.
func (c *Client) dialWithRetry(ctx context.Context, status Status) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		c.setState(State{Status: status, Attempt: attempt})

		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			c.mu.Lock()
			if ctx.Err() != nil {
				c.mu.Unlock()
				conn.Close()
				return nil, ctx.Err()
			}
			c.conn = conn
			c.mu.Unlock()
			c.setState(State{Status: StatusConnected, ConnectedAt: time.Now()})
			return conn, nil
		}

		lastErr = err
		c.logger.Warn("channel dial failed", "attempt", attempt, "max_attempts", c.cfg.ReconnectAttempts, "error", err)

		if attempt == c.cfg.ReconnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			c.setState(State{Status: StatusDisconnected})
			return nil, ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}

	err := fmt.Errorf("connect %s after %d attempts: %w", c.cfg.URL, c.cfg.ReconnectAttempts, lastErr)
	c.setState(State{Status: StatusError, LastError: err.Error()})
	return nil, err
}

// run reads and dispatches messages until Disconnect or until the reconnect
// budget is spent.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		done, cancel := c.done, c.cancel
		c.done, c.cancel = nil, nil
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		close(done)
	}()

	// Unblock ReadMessage when Disconnect races with a reconnect.
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	}()

	for {
		err := c.readLoop(conn)
		if ctx.Err() != nil {
			c.setState(State{Status: StatusDisconnected})
			return
		}

		c.logger.Warn("channel connection lost", "error", err)
		conn.Close()

		next, err := c.dialWithRetry(ctx, StatusReconnecting)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(State{Status: StatusDisconnected})
			}
			return
		}
		conn = next
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Debug("channel message ignored", "bytes", len(data))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	c.hmu.RLock()
	handlers := append([]func([]byte){}, c.handlers[env.Event]...)
	c.hmu.RUnlock()

	for _, h := range handlers {
		c.invoke(env.Event, h, env.Data)
	}
}

// invoke keeps a panicking handler from killing the read loop.
func (c *Client) invoke(event string, h func([]byte), data []byte) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("channel handler panicked", "event", event, "panic", p)
		}
	}()
	h(data)
}

// Emit sends an event to the service.
func (c *Client) Emit(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("emit %s: %w", event, websocket.ErrCloseSent)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(envelope{Event: event, Data: payload})
}

// Disconnect closes the connection and stops reconnecting. It waits for the
// read loop to exit.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	if conn != nil {
		c.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		conn.Close()
	}

	<-done
	c.setState(State{Status: StatusDisconnected})
	return nil
}
