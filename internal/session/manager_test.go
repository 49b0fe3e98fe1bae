package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fxcobra/salesbot/internal/model"
	"github.com/fxcobra/salesbot/internal/transport"
)

// fakeClient implements transport.Client for lifecycle tests.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	identity   string
	connectErr error

	// identityVal is exposed via Identity() after identityDelay.
	identityVal   string
	identityDelay time.Duration

	events chan transport.Event
	errors chan error
}

func newFakeClient(identity string) *fakeClient {
	return &fakeClient{
		identityVal: identity,
		events:      make(chan transport.Event, 16),
		errors:      make(chan error, 1),
	}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if c.identityDelay == 0 {
		c.setIdentity(c.identityVal)
	} else {
		go func() {
			time.Sleep(c.identityDelay)
			c.setIdentity(c.identityVal)
		}()
	}
	return nil
}

func (c *fakeClient) setIdentity(id string) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) SendText(conversationID, text string) (*model.Receipt, error) {
	return &model.Receipt{MessageID: "fake"}, nil
}

func (c *fakeClient) Events() <-chan transport.Event { return c.events }
func (c *fakeClient) Errors() <-chan error           { return c.errors }

func (c *fakeClient) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// fakeDialer hands out clients in sequence, repeating the last one.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dials   int
}

func (d *fakeDialer) dial(cfg transport.ClientConfig, logger *slog.Logger) transport.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.dials
	if idx >= len(d.clients) {
		idx = len(d.clients) - 1
	}
	d.dials++
	return d.clients[idx]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectBaseDelay = 10 * time.Millisecond
	cfg.ReconnectMaxDelay = 50 * time.Millisecond
	cfg.IdentityWait = 500 * time.Millisecond
	cfg.IdentityPoll = 10 * time.Millisecond
	cfg.InboundBufferSize = 16
	return cfg
}

func newTestManager(t *testing.T, dialer *fakeDialer, cfg Config) *Manager {
	t.Helper()
	creds := NewCredStore(t.TempDir(), "test-profile")
	m := NewManager(cfg, creds, nil, WithDialer(dialer.dial))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	})
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestManagerConnectDeclaresReady(t *testing.T) {
	dialer := &fakeDialer{clients: []*fakeClient{newFakeClient("233200000000")}}
	m := newTestManager(t, dialer, testConfig())

	var readyID string
	var readyMu sync.Mutex
	m.OnReady(func(s *Session) {
		readyMu.Lock()
		readyID = s.Identity
		readyMu.Unlock()
	})

	sess, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if sess.Identity != "233200000000" {
		t.Errorf("Identity = %q, want %q", sess.Identity, "233200000000")
	}
	if m.State() != StateOpen {
		t.Errorf("State = %s, want %s", m.State(), StateOpen)
	}
	if m.Attempts() != 0 {
		t.Errorf("Attempts = %d, want 0", m.Attempts())
	}
	if m.Current() != sess {
		t.Error("Current() should return the connected session")
	}

	readyMu.Lock()
	defer readyMu.Unlock()
	if readyID != "233200000000" {
		t.Errorf("ready callback identity = %q, want %q", readyID, "233200000000")
	}
}

func TestManagerConnectIdempotent(t *testing.T) {
	client := newFakeClient("233200000000")
	client.identityDelay = 200 * time.Millisecond
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	m := newTestManager(t, dialer, testConfig())

	var wg sync.WaitGroup
	sessions := make([]*Session, 4)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], _ = m.Connect(context.Background())
		}(i)
	}
	wg.Wait()

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (concurrent connects must collapse)", got)
	}
	for i, s := range sessions {
		if s == nil || s != sessions[0] {
			t.Errorf("session[%d] = %v, want the single in-flight result", i, s)
		}
	}
}

func TestManagerIdentityTimeout(t *testing.T) {
	client := newFakeClient("") // identity never arrives
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	cfg := testConfig()
	cfg.IdentityWait = 50 * time.Millisecond
	m := newTestManager(t, dialer, cfg)

	_, err := m.Connect(context.Background())
	if !errors.Is(err, ErrIdentityTimeout) {
		t.Fatalf("Connect err = %v, want ErrIdentityTimeout", err)
	}
	if m.Current() != nil {
		t.Error("no session should be published without identity confirmation")
	}
}

func TestManagerPersistsCredentials(t *testing.T) {
	client := newFakeClient("233200000000")
	dialer := &fakeDialer{clients: []*fakeClient{client}}

	creds := NewCredStore(t.TempDir(), "p1")
	m := NewManager(testConfig(), creds, nil, WithDialer(dialer.dial))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	}()

	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.events <- transport.CredsEvent{Blob: []byte("rotated-creds")}

	waitFor(t, time.Second, func() bool {
		blob, _ := creds.Load()
		return string(blob) == "rotated-creds"
	}, "credential blob was not persisted")
}

func TestManagerFiltersInbound(t *testing.T) {
	client := newFakeClient("233200000000")
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	m := newTestManager(t, dialer, testConfig())

	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.events <- transport.MessageEvent{Inbound: model.Inbound{ConversationID: "a", FromSelf: true}}
	client.events <- transport.MessageEvent{Inbound: model.Inbound{ConversationID: "b", GroupOrBroadcast: true}}
	client.events <- transport.MessageEvent{Inbound: model.Inbound{ConversationID: "c", Text: "hi"}}

	select {
	case in := <-m.Inbound():
		if in.ConversationID != "c" {
			t.Errorf("got inbound from %q, want %q (self/broadcast must be dropped)", in.ConversationID, "c")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestManagerReconnectsOnDrop(t *testing.T) {
	first := newFakeClient("233200000000")
	second := newFakeClient("233200000000")
	dialer := &fakeDialer{clients: []*fakeClient{first, second}}
	m := newTestManager(t, dialer, testConfig())

	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Non-logout drop on attempt 1 of 3: exactly one reconnect.
	first.errors <- &transport.ClosedError{Code: 1006, Reason: "abnormal closure"}

	waitFor(t, 2*time.Second, func() bool {
		return m.State() == StateOpen && m.Current() != nil && m.Current().Client == transport.Client(second)
	}, "manager did not reopen after drop")

	if got := dialer.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2 (exactly one reconnect)", got)
	}
	if m.Attempts() != 0 {
		t.Errorf("Attempts = %d, want 0 after successful reopen", m.Attempts())
	}
}

func TestManagerLoggedOutIsFatal(t *testing.T) {
	client := newFakeClient("233200000000")
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	m := newTestManager(t, dialer, testConfig())

	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.errors <- &transport.ClosedError{Code: transport.CloseCodeLoggedOut, Reason: "logged out", LoggedOut: true}

	select {
	case err := <-m.Fatal():
		if !errors.Is(err, ErrLoggedOut) {
			t.Errorf("fatal err = %v, want ErrLoggedOut", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatal error")
	}

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (no reconnect after logout)", got)
	}
}

func TestManagerReconnectExhaustion(t *testing.T) {
	bad := newFakeClient("")
	bad.connectErr = errors.New("gateway unreachable")
	dialer := &fakeDialer{clients: []*fakeClient{bad}}

	cfg := testConfig()
	cfg.MaxReconnects = 2
	m := newTestManager(t, dialer, cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-m.Fatal():
		if !errors.Is(err, ErrReconnectExhausted) {
			t.Errorf("fatal err = %v, want ErrReconnectExhausted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exhaustion")
	}

	// Initial attempt plus two capped retries.
	if got := dialer.dialCount(); got != 3 {
		t.Errorf("dial count = %d, want 3", got)
	}
}

func TestManagerLogoutClearsCredentials(t *testing.T) {
	client := newFakeClient("233200000000")
	dialer := &fakeDialer{clients: []*fakeClient{client}}

	creds := NewCredStore(t.TempDir(), "p1")
	if err := creds.Save([]byte("blob")); err != nil {
		t.Fatalf("seed creds: %v", err)
	}

	m := NewManager(testConfig(), creds, nil, WithDialer(dialer.dial))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Stop(ctx)
	}()

	if _, err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := os.Stat(creds.Path()); !os.IsNotExist(err) {
		t.Error("credential blob should be deleted on logout")
	}
	if m.State() != StateClosed {
		t.Errorf("State = %s, want %s", m.State(), StateClosed)
	}
	if m.Current() != nil {
		t.Error("Current() should be nil after logout")
	}
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (no reconnect after logout)", got)
	}
}
