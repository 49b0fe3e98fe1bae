package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxcobra/salesbot/internal/model"
	"github.com/fxcobra/salesbot/internal/transport"
)

// Errors
var (
	ErrManagerClosed      = errors.New("session manager closed")
	ErrLoggedOut          = errors.New("logged out")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrIdentityTimeout    = errors.New("identity not confirmed within bound")
)

// State is the lifecycle state of the managed connection.
type State string

const (
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
)

// Session is one fully-ready authenticated connection. The handle is
// immutable; a reconnect produces a new Session.
type Session struct {
	Client   transport.Client
	Identity string
	OpenedAt time.Time
}

// Config holds lifecycle manager settings.
type Config struct {
	Transport          transport.ClientConfig
	MaxReconnects      int           // Attempt cap before terminal failure
	ReconnectBaseDelay time.Duration // First backoff step
	ReconnectMaxDelay  time.Duration // Backoff ceiling
	IdentityWait       time.Duration // Bound for identity confirmation after open
	IdentityPoll       time.Duration // Poll period during the identity wait
	InboundBufferSize  int           // Buffer for the inbound message channel
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnects:      3,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		IdentityWait:       2 * time.Second,
		IdentityPoll:       100 * time.Millisecond,
		InboundBufferSize:  1000,
	}
}

// DialFunc constructs a gateway client. Injectable for tests.
type DialFunc func(cfg transport.ClientConfig, logger *slog.Logger) transport.Client

// Option customizes a Manager.
type Option func(*Manager)

// WithDialer overrides how gateway clients are constructed.
func WithDialer(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// connectCall is one in-flight connection attempt shared by all callers.
type connectCall struct {
	done chan struct{}
	sess *Session
	err  error
}

// Manager owns the live gateway session.
type Manager struct {
	cfg    Config
	creds  *CredStore
	dial   DialFunc
	logger *slog.Logger

	current atomic.Pointer[Session]
	inbound chan model.Inbound
	fatal   chan error

	mu         sync.Mutex
	state      State
	attempts   int
	inflight   *connectCall
	loggingOut bool
	closed     bool
	readyFns   []func(*Session)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a connection lifecycle manager.
func NewManager(cfg Config, creds *CredStore, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		creds:  creds,
		logger: logger,
		dial: func(cfg transport.ClientConfig, logger *slog.Logger) transport.Client {
			return transport.NewClient(cfg, logger)
		},
		inbound: make(chan model.Inbound, cfg.InboundBufferSize),
		fatal:   make(chan error, 1),
		state:   StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins managing the connection. The initial attempt's failure is
// not fatal; it follows the same capped reconnect policy as later drops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.ctx != nil {
		m.mu.Unlock()
		return errors.New("already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if _, err := m.Connect(m.ctx); err != nil {
		m.logger.Warn("initial connect failed", "error", err)
		m.scheduleReconnect(err)
	}
	return nil
}

// Stop shuts the manager down without touching persisted credentials.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.state = StateClosed
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if sess := m.current.Swap(nil); sess != nil {
		sess.Client.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("session manager shutdown timeout")
	}
	return nil
}

// Current returns the live session handle, or nil. The handle is either
// fully ready or absent, never half-initialized.
func (m *Manager) Current() *Session {
	return m.current.Load()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the current reconnect attempt counter.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Inbound returns the stream of customer messages. Events from our own
// account and group/broadcast chats are already filtered out.
func (m *Manager) Inbound() <-chan model.Inbound {
	return m.inbound
}

// Fatal reports terminal failures (logout from another device, exhausted
// reconnects). The host process is expected to exit and be restarted by
// its supervisor.
func (m *Manager) Fatal() <-chan error {
	return m.fatal
}

// OnReady registers a callback invoked after every successful (re)open,
// once identity is confirmed.
func (m *Manager) OnReady(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyFns = append(m.readyFns, fn)
}

// Connect returns the live session, establishing one if needed. A call
// while another attempt is in flight waits for that attempt's result
// instead of starting a second one.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if m.ctx == nil {
		m.ctx, m.cancel = context.WithCancel(context.Background())
	}
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.sess, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if sess := m.current.Load(); sess != nil && sess.Client.IsConnected() {
		m.mu.Unlock()
		return sess, nil
	}

	call := &connectCall{done: make(chan struct{})}
	m.inflight = call
	m.state = StateConnecting
	m.mu.Unlock()

	sess, err := m.establish(ctx)

	m.mu.Lock()
	call.sess, call.err = sess, err
	m.inflight = nil
	if err != nil {
		m.state = StateClosed
	}
	m.mu.Unlock()
	close(call.done)

	return sess, err
}

// Logout ends the session, erases persisted credentials, and resets all
// counters. The manager is terminal afterwards.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.loggingOut = true
	m.attempts = 0
	m.mu.Unlock()

	if sess := m.current.Swap(nil); sess != nil {
		sess.Client.Close()
	}

	err := m.creds.Delete()
	if err != nil {
		m.logger.Error("failed to delete credentials", "error", err)
	}

	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()

	m.logger.Info("logged out, credentials cleared")
	return err
}

// establish runs one full connection attempt.
func (m *Manager) establish(ctx context.Context) (*Session, error) {
	// Replace any previous connection.
	if old := m.current.Load(); old != nil {
		old.Client.Close()
	}

	blob, err := m.creds.Load()
	if err != nil {
		m.logger.Warn("failed to load credentials, pairing fresh", "error", err)
	}

	tcfg := m.cfg.Transport
	tcfg.Creds = blob

	client := m.dial(tcfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	// Watch events immediately so credential updates issued during login
	// are persisted before anything else happens.
	m.wg.Add(1)
	go m.watch(client)

	// The gateway may announce identity slightly after the open signal.
	// Readiness is not declared until it arrives, bounded by IdentityWait.
	if err := m.awaitIdentity(ctx, client); err != nil {
		m.logger.Warn("identity not confirmed, session not ready", "error", err)
		client.Close()
		return nil, err
	}

	sess := &Session{
		Client:   client,
		Identity: client.Identity(),
		OpenedAt: time.Now(),
	}

	m.mu.Lock()
	m.attempts = 0
	m.state = StateOpen
	readyFns := make([]func(*Session), len(m.readyFns))
	copy(readyFns, m.readyFns)
	m.mu.Unlock()

	m.current.Store(sess)

	m.logger.Info("session open", "identity", sess.Identity)

	for _, fn := range readyFns {
		fn(sess)
	}

	return sess, nil
}

// awaitIdentity polls until the client reports its identity.
func (m *Manager) awaitIdentity(ctx context.Context, client transport.Client) error {
	deadline := time.Now().Add(m.cfg.IdentityWait)
	for client.Identity() == "" {
		if time.Now().After(deadline) {
			return ErrIdentityTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.IdentityPoll):
		}
	}
	return nil
}

// watch consumes one client's events until it closes.
func (m *Manager) watch(client transport.Client) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-client.Errors():
			m.handleClose(client, err)
			return

		case ev := <-client.Events():
			switch e := ev.(type) {
			case transport.CredsEvent:
				// Persist before touching anything else from this stream.
				if err := m.creds.Save(e.Blob); err != nil {
					m.logger.Error("failed to persist credentials", "error", err)
				}

			case transport.MessageEvent:
				in := e.Inbound
				if in.FromSelf || in.GroupOrBroadcast {
					continue
				}
				select {
				case m.inbound <- in:
				case <-m.ctx.Done():
					return
				default:
					m.logger.Warn("inbound buffer full, dropping message",
						"conversation", in.ConversationID,
					)
				}

			case transport.IdentityEvent:
				m.logger.Debug("identity confirmed", "identity", e.ID)
			}
		}
	}
}

// handleClose reacts to a connection ending.
func (m *Manager) handleClose(client transport.Client, err error) {
	client.Close()

	m.mu.Lock()
	m.state = StateClosed
	loggingOut := m.loggingOut
	closed := m.closed
	m.mu.Unlock()

	if closed || loggingOut {
		return
	}

	m.logger.Warn("connection closed", "error", err)

	var ce *transport.ClosedError
	if errors.As(err, &ce) && ce.LoggedOut {
		// Logged out remotely: reconnecting would loop on a dead session.
		m.fail(ErrLoggedOut)
		return
	}

	m.scheduleReconnect(err)
}

// scheduleReconnect queues one reconnect attempt, or fails terminally
// when the cap is reached.
func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	if m.closed || m.loggingOut {
		m.mu.Unlock()
		return
	}
	m.attempts++
	attempt := m.attempts
	if attempt > m.cfg.MaxReconnects {
		m.mu.Unlock()
		m.fail(ErrReconnectExhausted)
		return
	}
	m.mu.Unlock()

	wait := m.backoff(attempt)
	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max", m.cfg.MaxReconnects,
		"wait", wait,
		"cause", cause,
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}

		if _, err := m.Connect(m.ctx); err != nil {
			m.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			m.scheduleReconnect(err)
		}
	}()
}

// backoff returns the exponential wait with jitter for an attempt (1-based).
func (m *Manager) backoff(attempt int) time.Duration {
	wait := m.cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= m.cfg.ReconnectMaxDelay {
			wait = m.cfg.ReconnectMaxDelay
			break
		}
	}
	// Jitter: wait * (0.5 to 1.5)
	return wait/2 + time.Duration(rand.Int64N(int64(wait)))
}

// fail records a terminal failure.
func (m *Manager) fail(err error) {
	m.logger.Error("session terminal failure", "error", err)
	select {
	case m.fatal <- err:
	default:
	}
}
