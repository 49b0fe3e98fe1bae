package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fxcobra/salesbot/internal/model"
	"github.com/fxcobra/salesbot/internal/session"
	"github.com/fxcobra/salesbot/internal/transport"
)

// sendFunc lets each test script the transport behavior per attempt.
type sendFunc func(conversationID, text string) (*model.Receipt, error)

// stubClient implements transport.Client for dispatcher tests.
type stubClient struct {
	mu        sync.Mutex
	connected bool
	identity  string
	send      sendFunc
	calls     int
}

func (c *stubClient) Connect(ctx context.Context) error { return nil }
func (c *stubClient) Close() error                      { return nil }
func (c *stubClient) Events() <-chan transport.Event    { return nil }
func (c *stubClient) Errors() <-chan error              { return nil }

func (c *stubClient) SendText(conversationID, text string) (*model.Receipt, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.send(conversationID, text)
}

func (c *stubClient) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *stubClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// stubSource implements SessionSource.
type stubSource struct {
	mu    sync.Mutex
	sess  *session.Session
	state session.State
}

func (s *stubSource) Current() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *stubSource) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func testDispatchConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func openSource(client *stubClient) *stubSource {
	return &stubSource{
		sess:  &session.Session{Client: client, Identity: client.identity},
		state: session.StateOpen,
	}
}

func TestSendDeliversReceipt(t *testing.T) {
	client := &stubClient{connected: true, identity: "233200000000"}
	client.send = func(conversationID, text string) (*model.Receipt, error) {
		return &model.Receipt{MessageID: "m1", Timestamp: time.Now()}, nil
	}

	d := New(testDispatchConfig(), openSource(client), nil)

	receipt := d.Send(context.Background(), "conv-1", "hello")
	if receipt == nil || receipt.MessageID != "m1" {
		t.Fatalf("Send = %+v, want receipt m1", receipt)
	}
	if client.callCount() != 1 {
		t.Errorf("transport calls = %d, want 1", client.callCount())
	}
}

func TestSendNoSessionReturnsNil(t *testing.T) {
	d := New(testDispatchConfig(), &stubSource{state: session.StateClosed}, nil)

	receipt := d.Send(context.Background(), "conv-1", "hello")
	if receipt != nil {
		t.Errorf("Send without session = %+v, want nil", receipt)
	}
}

func TestSendRetriesTransportErrors(t *testing.T) {
	client := &stubClient{connected: true, identity: "233200000000"}
	attempt := 0
	client.send = func(conversationID, text string) (*model.Receipt, error) {
		attempt++
		if attempt < 3 {
			return nil, errors.New("transient write failure")
		}
		return &model.Receipt{MessageID: "m3"}, nil
	}

	d := New(testDispatchConfig(), openSource(client), nil)

	receipt := d.Send(context.Background(), "conv-1", "hello")
	if receipt == nil || receipt.MessageID != "m3" {
		t.Fatalf("Send = %+v, want receipt m3 on third attempt", receipt)
	}
	if client.callCount() != 3 {
		t.Errorf("transport calls = %d, want 3", client.callCount())
	}
}

func TestSendExhaustionReturnsNil(t *testing.T) {
	client := &stubClient{connected: true, identity: "233200000000"}
	client.send = func(conversationID, text string) (*model.Receipt, error) {
		return nil, errors.New("persistent failure")
	}

	d := New(testDispatchConfig(), openSource(client), nil)

	receipt := d.Send(context.Background(), "conv-1", "hello")
	if receipt != nil {
		t.Errorf("Send = %+v, want nil after exhaustion", receipt)
	}
	if client.callCount() != 3 {
		t.Errorf("transport calls = %d, want 3 (bounded retries)", client.callCount())
	}
}

func TestSendRechecksPreconditionsPerAttempt(t *testing.T) {
	client := &stubClient{connected: true, identity: "233200000000"}
	client.send = func(conversationID, text string) (*model.Receipt, error) {
		return &model.Receipt{MessageID: "late"}, nil
	}

	// Session appears only after the first attempt has failed its check.
	src := &stubSource{state: session.StateOpen}
	d := New(testDispatchConfig(), src, nil)

	go func() {
		time.Sleep(500 * time.Microsecond)
		src.mu.Lock()
		src.sess = &session.Session{Client: client, Identity: client.identity}
		src.mu.Unlock()
	}()

	receipt := d.Send(context.Background(), "conv-1", "hello")
	if receipt == nil || receipt.MessageID != "late" {
		t.Fatalf("Send = %+v, want delivery once the session appears", receipt)
	}
}

func TestSendRespectsContextCancel(t *testing.T) {
	d := New(Config{MaxAttempts: 3, BaseDelay: time.Hour}, &stubSource{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	receipt := d.Send(ctx, "conv-1", "hello")
	if receipt != nil {
		t.Errorf("Send = %+v, want nil on cancel", receipt)
	}
	if time.Since(start) > time.Second {
		t.Error("Send did not honor context cancellation")
	}
}
