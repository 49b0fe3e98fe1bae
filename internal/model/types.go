package model

import "time"

// -----------------------------------------------------------------------------
// Conversation Types
// -----------------------------------------------------------------------------

// Step identifies where a conversation is in the order flow.
type Step string

const (
	StepServiceSelection  Step = "service_selection"
	StepProductSelection  Step = "product_selection"
	StepOrderConfirmation Step = "order_confirmation"
	StepInConversation    Step = "in_conversation"
)

// Inbound is a single inbound transport event for one conversation.
type Inbound struct {
	ConversationID   string    // Stable opaque address of the customer chat
	Text             string    // Raw message text
	FromSelf         bool      // True when the message was sent by our own account
	GroupOrBroadcast bool      // True for group or broadcast chats
	ReceivedAt       time.Time // Local timestamp when the event arrived
}

// Receipt acknowledges a delivered outbound message.
type Receipt struct {
	MessageID string
	Timestamp time.Time
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// CatalogNode is one node in the hierarchical service catalog.
//
// A node with a positive price is orderable; a node without a price is a
// category (or a dead leaf if it also has no descendants).
type CatalogNode struct {
	ID       string
	Name     string
	ParentID *string // nil for top-level nodes
	Price    float64
}

// Orderable reports whether the node can be ordered directly.
func (n CatalogNode) Orderable() bool {
	return n.Price > 0
}

// -----------------------------------------------------------------------------
// Order Types
// -----------------------------------------------------------------------------

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
	StatusClosed     OrderStatus = "closed"
)

// Terminal reports whether the status ends the order's reply thread.
// Non-terminal orders are candidates for the conversation recovery rule.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusClosed:
		return true
	}
	return false
}

// Reply is one entry in an order's reply log.
type Reply struct {
	Text       string
	Timestamp  time.Time
	IsCustomer bool // true for customer messages, false for admin replies
}

// Order captures a confirmed customer order with its catalog snapshot.
//
// ServiceName and Price are snapshotted at confirmation time so later catalog
// edits do not rewrite order history.
type Order struct {
	ID             string
	ConversationID string
	ServiceID      string
	ServiceName    string
	Price          float64
	Status         OrderStatus
	Message        string
	Replies        []Reply
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ShortID returns the customer-facing order reference (last 8 characters).
func (o Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[len(o.ID)-8:]
}

// -----------------------------------------------------------------------------
// Currency Types
// -----------------------------------------------------------------------------

// Currency describes the shop's active display currency.
type Currency struct {
	Symbol string
	Code   string
	Name   string
}

// DefaultCurrency is the fallback when no currency is configured active.
func DefaultCurrency() Currency {
	return Currency{Symbol: "$", Code: "USD", Name: "US Dollar"}
}
