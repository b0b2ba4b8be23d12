// Package livestream implements the server-push client: a long-lived
// WebSocket connection that decodes connected/delta/syncProgress/
// syncComplete events and forwards them to a Handler, with automatic
// reconnection gated by shouldReconnect.
package livestream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-mizu/ldb/internal/backoff"
	"github.com/gorilla/websocket"
)

// Event names recognized on the wire.
const (
	EventConnected    = "connected"
	EventDelta        = "delta"
	EventSyncProgress = "syncProgress"
	EventSyncComplete = "syncComplete"
)

// envelope is the wire frame: a named event plus its raw JSON payload.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives decoded live-stream events. Implementations (the
// Controller) must not block for long inside these callbacks since they
// run on the client's read loop.
type Handler interface {
	OnConnected(sessionID string)
	OnDelta(payload json.RawMessage)
	OnSyncProgress(payload json.RawMessage)
	OnSyncComplete()
	// OnDecodeError is called for a frame that failed to decode or carried
	// an unrecognized event name; non-fatal, the connection continues.
	OnDecodeError(err error)
}

// Client manages one WebSocket connection with automatic reconnection.
type Client struct {
	url     string
	handler Handler
	policy  backoff.Policy
	log     *slog.Logger

	dialer *websocket.Dialer

	shouldReconnect atomic.Bool

	// connMu guards conn, which the read loop writes and Disconnect reads
	// from another goroutine.
	connMu sync.Mutex
	conn   *websocket.Conn
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithBackoff(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// New builds a Client targeting url (a ws:// or wss:// endpoint).
func New(url string, handler Handler, opts ...Option) *Client {
	c := &Client{
		url:     url,
		handler: handler,
		policy:  backoff.New(),
		log:     slog.Default(),
		dialer:  websocket.DefaultDialer,
	}
	c.shouldReconnect.Store(true)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run connects and reads frames until ctx is canceled or Disconnect is
// called. On a transport error it reconnects with backoff as long as
// shouldReconnect is true; Disconnect flips shouldReconnect to false so the
// read loop exits cleanly instead of retrying.
func (c *Client) Run(ctx context.Context) error {
	return backoff.Run(ctx, c.policy, func(ctx context.Context) error {
		if !c.shouldReconnect.Load() {
			return nil
		}
		return c.connectAndRead(ctx)
	}, func(err error, attempt int) {
		c.log.Warn("livestream: connection failed, retrying", "attempt", attempt, "error", err)
	})
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("livestream: dial: %w", err)
	}
	c.setConn(conn)
	defer func() {
		conn.Close()
		c.setConn(nil)
	}()

	for {
		if !c.shouldReconnect.Load() {
			return nil
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.shouldReconnect.Load() {
				return nil
			}
			return fmt.Errorf("livestream: read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.handler.OnDecodeError(fmt.Errorf("livestream: decode frame: %w", err))
		return
	}

	switch env.Event {
	case EventConnected:
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			c.handler.OnDecodeError(fmt.Errorf("livestream: decode connected payload: %w", err))
			return
		}
		c.handler.OnConnected(payload.SessionID)
	case EventDelta:
		c.handler.OnDelta(env.Payload)
	case EventSyncProgress:
		c.handler.OnSyncProgress(env.Payload)
	case EventSyncComplete:
		c.handler.OnSyncComplete()
	default:
		c.handler.OnDecodeError(fmt.Errorf("livestream: unrecognized event %q", env.Event))
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// Disconnect closes the connection and stops automatic reconnection.
func (c *Client) Disconnect() error {
	c.shouldReconnect.Store(false)
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
