// Package realtime implements the request/acknowledge channel over a
// websocket connection.
//
// Every outbound frame carries a correlation id; the server echoes it on the
// matching reply. Frames without a correlation id are server-initiated
// pushes (statsUpdated) and are handed to the registered push handler.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/UnderPressurePH7/platoon-widget/internal/syncer/wire"
	"github.com/UnderPressurePH7/platoon-widget/pkg/logger"
	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// Default connection management constants.
const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
)

// frame is the wire shape in both directions.
type frame struct {
	ID       string          `json:"id,omitempty"`
	Op       string          `json:"op,omitempty"`
	Key      string          `json:"key,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Status   int             `json:"status,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// PushHandler receives server-initiated pushes by operation name.
type PushHandler func(op string, body json.RawMessage)

// Client maintains the websocket session and the pending-call table.
type Client struct {
	url      string
	key      string
	playerID func() string

	reconnectAttempts int
	reconnectDelay    time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]func(wire.Response, error)
	onPush    PushHandler

	log logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithReconnect bounds the reconnect loop.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.reconnectAttempts = attempts
		}
		if delay > 0 {
			c.reconnectDelay = delay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a client for the given endpoint and access key. playerID is
// consulted per request so frames carry the current identity.
func New(url, key string, playerID func() string, opts ...Option) *Client {
	c := &Client{
		url:               url,
		key:               key,
		playerID:          playerID,
		reconnectAttempts: defaultReconnectAttempts,
		reconnectDelay:    defaultReconnectDelay,
		pending:           make(map[string]func(wire.Response, error)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("realtime")
	}
	return c
}

// OnPush registers the handler for server-initiated frames. Must be called
// before Start.
func (c *Client) OnPush(h PushHandler) {
	c.mu.Lock()
	c.onPush = h
	c.mu.Unlock()
}

// Start dials the endpoint and keeps the session alive until ctx is
// canceled, redialing up to the configured attempt count after a drop. When
// the attempts are exhausted the client stays in the disconnected state and
// the fallback transport carries all traffic.
func (c *Client) Start(ctx context.Context) {
	go c.manage(ctx)
}

func (c *Client) manage(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.Dial(ctx, c.url+"?key="+c.key, nil)
		if err != nil {
			attempts++
			c.log.Warn(ctx, "realtime dial failed",
				logger.Error(err),
				logger.Int("attempt", attempts),
			)
			if attempts >= c.reconnectAttempts {
				c.log.Error(ctx, "realtime reconnect attempts exhausted")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		attempts = 0
		c.setConn(conn)
		c.log.Info(ctx, "realtime channel connected")
		c.readLoop(ctx, conn)
		c.dropConn(fmt.Errorf("connection closed"))
		c.log.Warn(ctx, "realtime channel disconnected")
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	metrics.UpdateRealtimeConnected(true)
}

// dropConn marks the session down and fails every pending call so no ack
// callback is left dangling.
func (c *Client) dropConn(cause error) {
	c.mu.Lock()
	c.conn = nil
	c.connected = false
	pending := c.pending
	c.pending = make(map[string]func(wire.Response, error))
	c.mu.Unlock()
	metrics.UpdateRealtimeConnected(false)
	for _, ack := range pending {
		ack(wire.Response{}, cause)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	if f.ID != "" {
		c.mu.Lock()
		ack, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ack(wire.Response{Status: f.Status, Body: f.Body}, nil)
		}
		return
	}
	c.mu.Lock()
	h := c.onPush
	c.mu.Unlock()
	if h != nil && f.Op != "" {
		h(f.Op, f.Body)
	}
}

// Connected reports whether the session is currently usable.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send issues op and invokes ack exactly once: with the server reply, or
// with an error when the write fails or the session drops first.
func (c *Client) Send(ctx context.Context, op string, payload any, ack func(wire.Response, error)) error {
	f := frame{
		ID:  uuid.NewString(),
		Op:  op,
		Key: c.key,
	}
	if c.playerID != nil {
		f.PlayerID = c.playerID()
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		f.Payload = raw
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending[f.ID] = ack
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, f); err != nil {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Request issues op and waits for the reply or ctx cancellation.
func (c *Client) Request(ctx context.Context, op string, payload any) (wire.Response, error) {
	ch := make(chan result, 1)
	err := c.Send(ctx, op, payload, func(resp wire.Response, err error) {
		ch <- result{resp: resp, err: err}
	})
	if err != nil {
		return wire.Response{}, err
	}
	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return wire.Response{}, ctx.Err()
	}
}

type result struct {
	resp wire.Response
	err  error
}

// Close tears the session down.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}
