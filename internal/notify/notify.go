// Package notify sends admin alerts for shop events over SMS.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/fxcobra/salesbot/internal/config"
)

// Notifier delivers an out-of-band notification to the shop admin.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Nop discards notifications. Used when no SMS gateway is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// statusMessages maps gateway error codes to readable descriptions. The
// gateway replies with a bare numeric code embedded in the body.
var statusMessages = map[string]string{
	"1002": "sms sending failed",
	"1003": "insufficient balance",
	"1004": "invalid api key",
	"1005": "invalid phone number",
	"1006": "invalid sender id",
	"1008": "empty message",
}

var codePattern = regexp.MustCompile(`\d{4}`)

// SMSNotifier sends messages through an HTTP GET SMS gateway.
type SMSNotifier struct {
	cfg    config.SMSConfig
	client *http.Client
	logger *slog.Logger
}

// NewSMS creates a notifier for the configured gateway.
func NewSMS(cfg config.SMSConfig, logger *slog.Logger) *SMSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify sends one SMS to the configured recipient.
func (n *SMSNotifier) Notify(ctx context.Context, message string) error {
	q := url.Values{}
	q.Set("key", n.cfg.APIKey)
	q.Set("to", n.cfg.Recipient)
	q.Set("msg", message)
	q.Set("sender_id", n.cfg.Sender)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read sms response: %w", err)
	}

	code := codePattern.FindString(string(body))
	switch code {
	case "1000", "1007":
		// 1000 delivered, 1007 accepted for scheduled delivery.
		n.logger.Info("sms sent", "to", n.cfg.Recipient, "code", code)
		return nil
	case "":
		return fmt.Errorf("sms gateway: unrecognized response %q", strings.TrimSpace(string(body)))
	default:
		msg, ok := statusMessages[code]
		if !ok {
			msg = "unknown gateway error"
		}
		return fmt.Errorf("sms gateway: %s (code %s)", msg, code)
	}
}
