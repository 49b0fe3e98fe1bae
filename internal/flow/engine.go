package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxcobra/salesbot/internal/catalog"
	"github.com/fxcobra/salesbot/internal/currency"
	"github.com/fxcobra/salesbot/internal/model"
	"github.com/fxcobra/salesbot/internal/orders"
	"github.com/fxcobra/salesbot/internal/registry"
)

// Sender delivers one outbound message. A nil receipt means the message
// was not delivered; the engine proceeds regardless, since conversation
// state must stay consistent whether or not the customer saw the reply.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) *model.Receipt
}

// notifyTimeout bounds the async admin notification so a slow SMS
// gateway never holds up shutdown indefinitely.
const notifyTimeout = 15 * time.Second

// Notifier matches notify.Notifier without importing the package.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Config holds flow engine settings.
type Config struct {
	BusinessName string
}

// Engine is the conversation state machine.
type Engine struct {
	cfg      Config
	reg      *registry.Registry
	catalog  catalog.Resolver
	orders   orders.Store
	currency currency.Provider
	notifier Notifier
	sender   Sender
	logger   *slog.Logger

	notifyWG sync.WaitGroup
}

// New creates an Engine.
func New(
	cfg Config,
	reg *registry.Registry,
	resolver catalog.Resolver,
	store orders.Store,
	cur currency.Provider,
	notifier Notifier,
	sender Sender,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		reg:      reg,
		catalog:  resolver,
		orders:   store,
		currency: cur,
		notifier: notifier,
		sender:   sender,
		logger:   logger,
	}
}

// Run consumes inbound messages until the context is cancelled or the
// channel closes, then waits for in-flight notifications to finish.
func (e *Engine) Run(ctx context.Context, in <-chan model.Inbound) {
	defer e.notifyWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			e.Handle(ctx, msg)
		}
	}
}

// Handle processes one inbound message under the conversation lock.
// A panic in a handler is contained to that message.
func (e *Engine) Handle(ctx context.Context, msg model.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("message handler panicked",
				"conversation", msg.ConversationID,
				"panic", r,
			)
		}
	}()

	unlock := e.reg.Lock(msg.ConversationID)
	defer unlock()

	e.handle(ctx, msg)
}

func (e *Engine) handle(ctx context.Context, msg model.Inbound) {
	text := strings.ToLower(strings.TrimSpace(msg.Text))

	// Global overrides work from any step and always land on the main
	// menu. They clear transient state but never touch order status.
	switch text {
	case "menu", "start", "help":
		e.reg.Delete(msg.ConversationID)
		e.showMainMenu(ctx, msg.ConversationID)
		return
	}

	rec, ok := e.reg.Get(msg.ConversationID)
	if !ok {
		e.handleNewConversation(ctx, msg, text)
		return
	}

	switch rec.Step {
	case model.StepServiceSelection, model.StepProductSelection:
		e.handleSelection(ctx, msg, text, rec)
	case model.StepOrderConfirmation:
		e.handleConfirmation(ctx, msg, text, rec)
	case model.StepInConversation:
		e.handleInConversation(ctx, msg, text, rec)
	default:
		e.logger.Warn("unknown conversation step, resetting",
			"conversation", msg.ConversationID,
			"step", rec.Step,
		)
		e.reg.Delete(msg.ConversationID)
		e.showMainMenu(ctx, msg.ConversationID)
	}
}

// handleNewConversation covers messages with no registry record: either
// the customer is new, or the process restarted mid-conversation. An
// open order recovers the conversation thread instead of showing the
// menu.
func (e *Engine) handleNewConversation(ctx context.Context, msg model.Inbound, text string) {
	order, err := e.orders.FindOpen(ctx, msg.ConversationID)
	if err != nil {
		e.logger.Error("open order lookup failed",
			"conversation", msg.ConversationID,
			"error", err,
		)
		e.fail(ctx, msg.ConversationID)
		return
	}

	if order == nil {
		e.showMainMenu(ctx, msg.ConversationID)
		return
	}

	if isCloseCommand(text) {
		e.closeOrder(ctx, msg.ConversationID, order.ID)
		return
	}

	e.appendToOrder(ctx, msg, order)
}

func (e *Engine) showMainMenu(ctx context.Context, conversationID string) {
	top, err := e.catalog.ChildrenOf(ctx, "")
	if err != nil {
		e.logger.Error("catalog root listing failed", "error", err)
		e.fail(ctx, conversationID)
		return
	}
	if len(top) == 0 {
		e.sender.Send(ctx, conversationID, msgNoServices)
		return
	}

	e.reg.Put(conversationID, registry.Record{
		Step:    model.StepServiceSelection,
		Options: top,
	})
	e.sender.Send(ctx, conversationID, menuMessage(e.cfg.BusinessName, top))
}

// handleSelection resolves a numbered pick against the last rendered
// list. Invalid input reprompts without touching the record, so the
// customer keeps the same options.
func (e *Engine) handleSelection(ctx context.Context, msg model.Inbound, text string, rec registry.Record) {
	choice, err := strconv.Atoi(text)
	if err != nil || choice < 1 || choice > len(rec.Options) {
		e.sender.Send(ctx, msg.ConversationID, msgInvalidChoice)
		return
	}
	selected := rec.Options[choice-1]

	children, err := e.catalog.ChildrenOf(ctx, selected.ID)
	if err != nil {
		e.logger.Error("catalog children lookup failed",
			"node", selected.ID,
			"error", err,
		)
		e.fail(ctx, msg.ConversationID)
		return
	}

	if len(children) > 0 {
		e.enterSubmenu(ctx, msg.ConversationID, selected, children)
		return
	}

	if !selected.Orderable() {
		// A leaf without a price is dead catalog data.
		e.reg.Delete(msg.ConversationID)
		e.sender.Send(ctx, msg.ConversationID, notOrderableMessage(selected.Name))
		return
	}

	cur := e.currency.Active(ctx)
	e.reg.Put(msg.ConversationID, registry.Record{
		Step:     model.StepOrderConfirmation,
		Selected: &selected,
	})
	e.sender.Send(ctx, msg.ConversationID, confirmPrompt(selected, cur))
}

func (e *Engine) enterSubmenu(ctx context.Context, conversationID string, parent model.CatalogNode, children []model.CatalogNode) {
	ok, err := catalog.HasOrderable(ctx, e.catalog, children)
	if err != nil {
		e.logger.Error("orderable scan failed", "node", parent.ID, "error", err)
		e.fail(ctx, conversationID)
		return
	}
	if !ok {
		e.reg.Delete(conversationID)
		e.sender.Send(ctx, conversationID, noOrderablesMessage(parent.Name))
		return
	}

	// Categories render first, then orderable leaves, with one combined
	// numbering. Dead nodes (no price, no descendants) never render.
	var categories, orderables []model.CatalogNode
	for _, child := range children {
		if child.Orderable() {
			orderables = append(orderables, child)
			continue
		}
		count, err := e.catalog.ChildCount(ctx, child.ID)
		if err != nil {
			e.logger.Error("child count failed", "node", child.ID, "error", err)
			e.fail(ctx, conversationID)
			return
		}
		if count > 0 {
			categories = append(categories, child)
		}
	}
	options := append(categories, orderables...)

	cur := e.currency.Active(ctx)
	e.reg.Put(conversationID, registry.Record{
		Step:     model.StepProductSelection,
		Options:  options,
		Selected: &parent,
	})
	e.sender.Send(ctx, conversationID, submenuMessage(parent, categories, orderables, cur))
}

// handleConfirmation finalizes or abandons a pending selection. The
// node is re-read at confirmation time so a catalog edit between prompt
// and reply cannot sell a stale price.
func (e *Engine) handleConfirmation(ctx context.Context, msg model.Inbound, text string, rec registry.Record) {
	if text != "order" {
		e.sender.Send(ctx, msg.ConversationID, msgConfirmOrCancel)
		return
	}
	if rec.Selected == nil {
		e.reg.Delete(msg.ConversationID)
		e.showMainMenu(ctx, msg.ConversationID)
		return
	}

	fresh, err := e.catalog.ByID(ctx, rec.Selected.ID)
	if err != nil {
		e.logger.Error("catalog re-read failed", "node", rec.Selected.ID, "error", err)
		e.fail(ctx, msg.ConversationID)
		return
	}
	if fresh == nil || !fresh.Orderable() {
		e.reg.Delete(msg.ConversationID)
		e.sender.Send(ctx, msg.ConversationID, unavailableMessage(rec.Selected.Name))
		return
	}

	id, err := e.orders.Create(ctx, orders.NewOrder{
		ConversationID: msg.ConversationID,
		ServiceID:      fresh.ID,
		ServiceName:    fresh.Name,
		Price:          fresh.Price,
		Message:        msg.Text,
	})
	if err != nil {
		e.logger.Error("order creation failed",
			"conversation", msg.ConversationID,
			"service", fresh.ID,
			"error", err,
		)
		e.fail(ctx, msg.ConversationID)
		return
	}

	path, err := catalog.Breadcrumb(ctx, e.catalog, *fresh)
	if err != nil || len(path) == 0 {
		path = []string{fresh.Name}
	}

	cur := e.currency.Active(ctx)
	order := model.Order{ID: id, Price: fresh.Price}
	e.reg.Delete(msg.ConversationID)
	e.sender.Send(ctx, msg.ConversationID, orderConfirmedMessage(order, path, cur))

	e.notifyAsync(fmt.Sprintf("New Order: %s (%s) from %s",
		fresh.Name, currency.Format(cur, fresh.Price), msg.ConversationID))

	e.logger.Info("order created",
		"conversation", msg.ConversationID,
		"order", id,
		"service", fresh.Name,
		"price", fresh.Price,
	)
}

func (e *Engine) handleInConversation(ctx context.Context, msg model.Inbound, text string, rec registry.Record) {
	if isCloseCommand(text) {
		e.closeOrder(ctx, msg.ConversationID, rec.OrderID)
		return
	}

	order, err := e.orders.FindOpen(ctx, msg.ConversationID)
	if err != nil || order == nil || order.ID != rec.OrderID {
		if err != nil {
			e.logger.Error("open order lookup failed",
				"conversation", msg.ConversationID,
				"error", err,
			)
			e.fail(ctx, msg.ConversationID)
			return
		}
		// The bound order was closed out of band. Start over.
		e.reg.Delete(msg.ConversationID)
		e.showMainMenu(ctx, msg.ConversationID)
		return
	}

	e.appendToOrder(ctx, msg, order)
}

// appendToOrder files a customer message on an open order and keeps the
// conversation bound to it.
func (e *Engine) appendToOrder(ctx context.Context, msg model.Inbound, order *model.Order) {
	reply := model.Reply{
		Text:       msg.Text,
		Timestamp:  msg.ReceivedAt,
		IsCustomer: true,
	}
	if err := e.orders.AppendReply(ctx, order.ID, reply); err != nil {
		e.logger.Error("reply append failed", "order", order.ID, "error", err)
		e.fail(ctx, msg.ConversationID)
		return
	}
	if err := e.orders.SetStatus(ctx, order.ID, model.StatusProcessing); err != nil {
		e.logger.Error("status update failed", "order", order.ID, "error", err)
		e.fail(ctx, msg.ConversationID)
		return
	}

	e.reg.Put(msg.ConversationID, registry.Record{
		Step:    model.StepInConversation,
		OrderID: order.ID,
	})
	e.sender.Send(ctx, msg.ConversationID, replyAckMessage(order, msg.Text))
}

func (e *Engine) closeOrder(ctx context.Context, conversationID, orderID string) {
	if err := e.orders.SetStatus(ctx, orderID, model.StatusCompleted); err != nil {
		e.logger.Error("order close failed", "order", orderID, "error", err)
		e.fail(ctx, conversationID)
		return
	}
	e.reg.Delete(conversationID)
	e.sender.Send(ctx, conversationID, msgClosed)
	e.logger.Info("order closed", "conversation", conversationID, "order", orderID)
}

// fail clears the conversation record and tells the customer to retry.
// Dropping the record means the next message starts from a clean path
// instead of replaying the failing transition.
func (e *Engine) fail(ctx context.Context, conversationID string) {
	e.reg.Delete(conversationID)
	e.sender.Send(ctx, conversationID, msgFailure)
}

// notifyAsync fires the admin notification without blocking the
// conversation. Run waits for outstanding notifications on shutdown.
func (e *Engine) notifyAsync(message string) {
	if e.notifier == nil {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, message); err != nil {
			e.logger.Warn("admin notification failed", "error", err)
		}
	}()
}

func isCloseCommand(text string) bool {
	switch text {
	case "close", "end", "done":
		return true
	}
	return false
}
