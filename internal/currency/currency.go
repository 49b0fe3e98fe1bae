// Package currency resolves the shop's active display currency and
// formats prices with it.
package currency

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fxcobra/salesbot/internal/model"
)

// Provider resolves the active currency. Implementations fall back to
// the default currency rather than failing a customer interaction.
type Provider interface {
	Active(ctx context.Context) model.Currency
}

// PGProvider reads the active currency from the currencies table.
type PGProvider struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPGProvider creates a provider backed by the given pool.
func NewPGProvider(db *pgxpool.Pool, logger *slog.Logger) *PGProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGProvider{db: db, logger: logger}
}

// Active returns the configured active currency, or the default when no
// row is active or the query fails.
func (p *PGProvider) Active(ctx context.Context) model.Currency {
	var c model.Currency
	err := p.db.QueryRow(ctx,
		`SELECT symbol, code, name FROM currencies WHERE is_active LIMIT 1`,
	).Scan(&c.Symbol, &c.Code, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultCurrency()
	}
	if err != nil {
		p.logger.Warn("currency lookup failed, using default", "error", err)
		return model.DefaultCurrency()
	}
	return c
}

// Static is a Provider that always returns the same currency. Useful in
// tests and when the shop runs without a currencies table.
type Static struct {
	Currency model.Currency
}

func (s Static) Active(context.Context) model.Currency { return s.Currency }

var printer = message.NewPrinter(language.English)

// Format renders a price with the currency symbol and grouped thousands,
// e.g. "GH₵1,234.50".
func Format(c model.Currency, price float64) string {
	return printer.Sprintf("%s%.2f", c.Symbol, price)
}
