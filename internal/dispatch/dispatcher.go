package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/fxcobra/salesbot/internal/model"
	"github.com/fxcobra/salesbot/internal/session"
)

// SessionSource exposes the live session handle to the dispatcher.
type SessionSource interface {
	Current() *session.Session
	State() session.State
}

// Config holds dispatcher settings.
type Config struct {
	MaxAttempts int           // Send attempts per message
	BaseDelay   time.Duration // Backoff is attempt * BaseDelay
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// Dispatcher delivers outbound messages through the current session.
type Dispatcher struct {
	cfg      Config
	sessions SessionSource
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config, sessions SessionSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
	}
}

// Send delivers one text message, retrying with linear backoff. It returns
// the transport receipt, or nil when delivery failed after all attempts.
// It never panics and never returns an error: callers treat nil as
// "message not delivered".
func (d *Dispatcher) Send(ctx context.Context, conversationID, text string) *model.Receipt {
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		sess := d.sessions.Current()

		switch {
		case sess == nil:
			d.logger.Warn("no session for send",
				"conversation", conversationID,
				"attempt", attempt,
				"max", d.cfg.MaxAttempts,
			)
		case sess.Identity == "" || !sess.Client.IsConnected() || d.sessions.State() != session.StateOpen:
			d.logger.Warn("session not ready for send",
				"conversation", conversationID,
				"attempt", attempt,
				"state", d.sessions.State(),
			)
		default:
			receipt, err := sess.Client.SendText(conversationID, text)
			if err == nil {
				if attempt > 1 {
					d.logger.Info("message sent after retry",
						"conversation", conversationID,
						"attempt", attempt,
					)
				}
				return receipt
			}
			d.logger.Warn("send failed",
				"conversation", conversationID,
				"attempt", attempt,
				"error", err,
			)
		}

		if attempt < d.cfg.MaxAttempts {
			// Progressive delay before the next attempt.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(attempt) * d.cfg.BaseDelay):
			}
		}
	}

	d.logger.Error("message not delivered",
		"conversation", conversationID,
		"attempts", d.cfg.MaxAttempts,
	)
	return nil
}
