package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fxcobra/salesbot/internal/model"
)

// Client represents a single connection to the chat gateway.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// SendText delivers one text message to a conversation and waits,
	// bounded by AckTimeout, for the gateway receipt.
	SendText(conversationID, text string) (*model.Receipt, error)

	// Events returns the channel of typed gateway events.
	Events() <-chan Event

	// Errors returns a channel of connection errors. A *ClosedError on
	// this channel means the connection ended.
	Errors() <-chan error

	// Identity returns the confirmed account identity, or "" if the
	// gateway has not announced it yet.
	Identity() string

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	events chan Event
	errors chan error
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// Receipt correlation
	pendingMu sync.Mutex
	pending   map[int64]chan envelope
	sendID    int64 // Atomic counter

	// State
	mu         sync.RWMutex
	connected  bool
	closed     bool
	identity   string
	lastPingAt time.Time
}

// NewClient creates a new gateway client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
		pending: make(map[int64]chan envelope),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if len(c.cfg.Creds) > 0 {
		header.Set("X-Session-State", base64.StdEncoding.EncodeToString(c.cfg.Creds))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server pings are answered with pongs; both refresh staleness tracking.
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("gateway connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// SendText delivers one message and waits for the gateway receipt.
func (c *client) SendText(conversationID, text string) (*model.Receipt, error) {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return nil, ErrNotConnected
	}
	c.mu.RUnlock()

	id := atomic.AddInt64(&c.sendID, 1)
	ackCh := make(chan envelope, 1)

	c.pendingMu.Lock()
	c.pending[id] = ackCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	env := envelope{
		Type:           "send",
		ID:             id,
		ConversationID: conversationID,
		Text:           text,
	}
	if err := c.write(env); err != nil {
		return nil, err
	}

	select {
	case <-c.done:
		return nil, ErrNotConnected
	case <-time.After(c.cfg.AckTimeout):
		return nil, ErrAckTimeout
	case ack := <-ackCh:
		if ack.Type == "error" {
			return nil, &ClosedError{Reason: ack.Reason}
		}
		ts := time.UnixMilli(ack.Ts)
		if ack.Ts == 0 {
			ts = time.Now()
		}
		return &model.Receipt{MessageID: ack.MessageID, Timestamp: ts}, nil
	}
}

// Events returns the typed event channel.
func (c *client) Events() <-chan Event {
	return c.events
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// Identity returns the confirmed account identity.
func (c *client) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// write marshals and sends one envelope under the write lock.
func (c *client) write(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads envelopes from the gateway and dispatches them.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}

			closeErr := &ClosedError{Reason: err.Error()}
			if ce, ok := err.(*websocket.CloseError); ok {
				closeErr.Code = ce.Code
				closeErr.Reason = ce.Text
				closeErr.LoggedOut = ce.Code == CloseCodeLoggedOut
			}
			select {
			case c.errors <- closeErr:
			default:
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping malformed gateway frame", "error", err)
			continue
		}

		c.dispatch(env, receivedAt)
	}
}

// dispatch routes one decoded envelope.
func (c *client) dispatch(env envelope, receivedAt time.Time) {
	switch env.Type {
	case "ack", "error":
		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			select {
			case ch <- env:
			default:
			}
		}

	case "identity":
		c.mu.Lock()
		c.identity = env.Identity
		c.mu.Unlock()
		c.deliver(IdentityEvent{ID: env.Identity})

	case "creds":
		c.deliver(CredsEvent{Blob: env.Creds})

	case "message":
		c.deliver(MessageEvent{Inbound: model.Inbound{
			ConversationID:   env.ConversationID,
			Text:             env.Text,
			FromSelf:         env.FromSelf,
			GroupOrBroadcast: env.Broadcast,
			ReceivedAt:       receivedAt,
		}})

	default:
		c.logger.Debug("skipping gateway frame", "type", env.Type)
	}
}

// deliver pushes an event without blocking the read loop.
func (c *client) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	default:
		c.logger.Warn("event buffer full, dropping event")
	}
}

// heartbeatLoop monitors for stale connections.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				select {
				case c.errors <- &ClosedError{Reason: ErrStaleConnection.Error()}:
				default:
				}
				return
			}
		}
	}
}
