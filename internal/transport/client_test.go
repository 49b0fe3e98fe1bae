package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockGateway creates a test WebSocket server.
func mockGateway(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.AckTimeout = 2 * time.Second
	cfg.BufferSize = 100
	return cfg
}

func TestClientConnect(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClientIdentityAndEvents(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": "identity", "identity": "233200000000"})
		conn.WriteJSON(map[string]any{"type": "creds", "creds": []byte("blob-1")})
		conn.WriteJSON(map[string]any{
			"type":            "message",
			"conversation_id": "233540000000",
			"text":            "hello",
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-client.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, have %d", len(got))
		}
	}

	if id, ok := got[0].(IdentityEvent); !ok || id.ID != "233200000000" {
		t.Errorf("event[0] = %#v, want IdentityEvent 233200000000", got[0])
	}
	if client.Identity() != "233200000000" {
		t.Errorf("Identity() = %q, want %q", client.Identity(), "233200000000")
	}
	if creds, ok := got[1].(CredsEvent); !ok || string(creds.Blob) != "blob-1" {
		t.Errorf("event[1] = %#v, want CredsEvent blob-1", got[1])
	}
	msg, ok := got[2].(MessageEvent)
	if !ok {
		t.Fatalf("event[2] = %#v, want MessageEvent", got[2])
	}
	if msg.Inbound.ConversationID != "233540000000" || msg.Inbound.Text != "hello" {
		t.Errorf("unexpected inbound: %+v", msg.Inbound)
	}
	if msg.Inbound.ReceivedAt.IsZero() {
		t.Error("inbound ReceivedAt should be stamped")
	}
}

func TestClientSendTextAck(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env map[string]any
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			if env["type"] != "send" {
				continue
			}
			conn.WriteJSON(map[string]any{
				"type":       "ack",
				"id":         env["id"],
				"message_id": "msg-123",
				"ts":         time.Now().UnixMilli(),
			})
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	receipt, err := client.SendText("233540000000", "your order is ready")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if receipt.MessageID != "msg-123" {
		t.Errorf("receipt.MessageID = %q, want %q", receipt.MessageID, "msg-123")
	}
}

func TestClientSendTextAckTimeout(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		// Swallow everything; never ack.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := testClientConfig(wsURL(server))
	cfg.AckTimeout = 100 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if _, err := client.SendText("233540000000", "hello"); err != ErrAckTimeout {
		t.Errorf("SendText err = %v, want ErrAckTimeout", err)
	}
}

func TestClientSendTextNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("ws://127.0.0.1:0"), nil)
	if _, err := client.SendText("233540000000", "hello"); err != ErrNotConnected {
		t.Errorf("SendText err = %v, want ErrNotConnected", err)
	}
}

func TestClientLoggedOutClose(t *testing.T) {
	server := mockGateway(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseCodeLoggedOut, "logged out"),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	client := NewClient(testClientConfig(wsURL(server)), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		closed, ok := err.(*ClosedError)
		if !ok {
			t.Fatalf("error = %v, want *ClosedError", err)
		}
		if !closed.LoggedOut {
			t.Errorf("expected LoggedOut close, got %+v", closed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close error")
	}
}
