package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fxcobra/salesbot/internal/model"
)

// PGStore persists orders in the orders and order_replies tables.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a store backed by the given pool.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Create inserts a pending order and returns its id.
func (s *PGStore) Create(ctx context.Context, o NewOrder) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	_, err := s.db.Exec(ctx, `
		INSERT INTO orders
			(id, conversation_id, service_id, service_name, price, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id, o.ConversationID, o.ServiceID, o.ServiceName, o.Price,
		model.StatusPending, o.Message, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// FindOpen returns the most recent non-terminal order for a conversation,
// or (nil, nil) when none exists.
func (s *PGStore) FindOpen(ctx context.Context, conversationID string) (*model.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, service_id, service_name, price, status, message, created_at, updated_at
		FROM orders
		WHERE conversation_id = $1
		  AND status NOT IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1`,
		conversationID, model.StatusCompleted, model.StatusCancelled, model.StatusClosed,
	)

	var o model.Order
	err := row.Scan(&o.ID, &o.ConversationID, &o.ServiceID, &o.ServiceName,
		&o.Price, &o.Status, &o.Message, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open order: %w", err)
	}

	replies, err := s.replies(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Replies = replies
	return &o, nil
}

// AppendReply attaches one message to an order's thread and bumps the
// order's updated_at.
func (s *PGStore) AppendReply(ctx context.Context, orderID string, reply model.Reply) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reply tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO order_replies (id, order_id, text, is_customer, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), orderID, reply.Text, reply.IsCustomer, reply.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE orders SET updated_at = $1 WHERE id = $2`, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("touch order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reply tx: %w", err)
	}
	return nil
}

// SetStatus moves an order to the given status.
func (s *PGStore) SetStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order status: order %s not found", orderID)
	}
	return nil
}

func (s *PGStore) replies(ctx context.Context, orderID string) ([]model.Reply, error) {
	rows, err := s.db.Query(ctx, `
		SELECT text, is_customer, created_at
		FROM order_replies
		WHERE order_id = $1
		ORDER BY created_at`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("query order replies: %w", err)
	}
	defer rows.Close()

	var replies []model.Reply
	for rows.Next() {
		var r model.Reply
		if err := rows.Scan(&r.Text, &r.IsCustomer, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan order reply: %w", err)
		}
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read order replies: %w", err)
	}
	return replies, nil
}
