package orders

import (
	"context"

	"github.com/fxcobra/salesbot/internal/model"
)

// NewOrder carries the fields captured when a customer confirms a
// purchase. Name and price are snapshots of the catalog node at
// confirmation time.
type NewOrder struct {
	ConversationID string
	ServiceID      string
	ServiceName    string
	Price          float64
	Message        string
}

// Store persists orders and their conversation threads.
type Store interface {
	// Create inserts a pending order and returns its id.
	Create(ctx context.Context, o NewOrder) (string, error)

	// FindOpen returns the most recent non-terminal order for a
	// conversation, or (nil, nil) when none exists.
	FindOpen(ctx context.Context, conversationID string) (*model.Order, error)

	// AppendReply attaches one message to an order's thread.
	AppendReply(ctx context.Context, orderID string, reply model.Reply) error

	// SetStatus moves an order to the given status.
	SetStatus(ctx context.Context, orderID string, status model.OrderStatus) error
}
