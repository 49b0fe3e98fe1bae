package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxcobra/salesbot/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAckTimeout      = errors.New("send acknowledgment timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// CloseCodeLoggedOut is the application close code the gateway sends when the
// account was logged out on another device. It must not trigger a reconnect.
const CloseCodeLoggedOut = 4001

// ClosedError reports why the gateway connection ended.
type ClosedError struct {
	Code      int
	Reason    string
	LoggedOut bool
}

func (e *ClosedError) Error() string {
	if e.LoggedOut {
		return fmt.Sprintf("connection closed: logged out (%s)", e.Reason)
	}
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

// Event is a typed gateway event delivered on the client's event channel.
type Event interface {
	event()
}

// MessageEvent carries one inbound customer message.
type MessageEvent struct {
	Inbound model.Inbound
}

// CredsEvent carries an updated opaque credential blob. Consumers must
// persist the blob before processing anything after this event.
type CredsEvent struct {
	Blob []byte
}

// IdentityEvent announces the account identity for this session. It may
// arrive slightly after the connection opens.
type IdentityEvent struct {
	ID string
}

func (MessageEvent) event()  {}
func (CredsEvent) event()    {}
func (IdentityEvent) event() {}

// envelope is the JSON wire frame exchanged with the gateway.
type envelope struct {
	Type           string `json:"type"` // "message", "identity", "creds", "send", "ack", "error"
	ID             int64  `json:"id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	FromSelf       bool   `json:"from_self,omitempty"`
	Broadcast      bool   `json:"broadcast,omitempty"`
	Identity       string `json:"identity,omitempty"`
	Creds          []byte `json:"creds,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Code           string `json:"code,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Ts             int64  `json:"ts,omitempty"` // Unix milliseconds
}

// ClientConfig configures a gateway client.
type ClientConfig struct {
	URL              string        // WebSocket gateway URL
	Token            string        // Bearer token (empty = no auth header)
	Creds            []byte        // Opaque session blob from a prior login (empty = fresh pairing)
	HandshakeTimeout time.Duration // Dial timeout
	PingInterval     time.Duration // Keepalive ping period
	PingTimeout      time.Duration // Max time without ping/pong before stale
	WriteTimeout     time.Duration // Write deadline for sends
	AckTimeout       time.Duration // Wait for a send receipt
	BufferSize       int           // Event channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		AckTimeout:       10 * time.Second,
		BufferSize:       1000,
	}
}
