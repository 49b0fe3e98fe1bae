package flow

import (
	"fmt"
	"strings"

	"github.com/fxcobra/salesbot/internal/currency"
	"github.com/fxcobra/salesbot/internal/model"
)

const (
	msgInvalidChoice   = "❌ Invalid choice. Please select a valid number."
	msgFailure         = "⚠️ Something went wrong. Please try again later."
	msgNoServices      = "😔 No services are available right now. Please check back later."
	msgConfirmOrCancel = "Please type *order* to confirm your purchase, or *menu* to cancel."
	msgClosed          = "✅ This conversation has been closed. Type *menu* to see our services."
)

func menuMessage(businessName string, nodes []model.CatalogNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏪 Welcome to *%s*!\n\nPlease select a service:\n\n", businessName)
	writeNumbered(&b, nodes)
	b.WriteString("\nReply with the number of your choice.")
	return b.String()
}

func submenuMessage(parent model.CatalogNode, categories, orderables []model.CatalogNode, cur model.Currency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📂 *%s*\n\nPlease select an option:\n\n", parent.Name)
	i := 1
	for _, n := range categories {
		fmt.Fprintf(&b, "%d. %s (Category)\n", i, n.Name)
		i++
	}
	for _, n := range orderables {
		fmt.Fprintf(&b, "%d. %s - %s\n", i, n.Name, currency.Format(cur, n.Price))
		i++
	}
	b.WriteString("\nReply with the number of your choice, or type *menu* to start over.")
	return b.String()
}

func writeNumbered(b *strings.Builder, nodes []model.CatalogNode) {
	for i, n := range nodes {
		fmt.Fprintf(b, "%d. %s\n", i+1, n.Name)
	}
}

func confirmPrompt(node model.CatalogNode, cur model.Currency) string {
	return fmt.Sprintf("🛒 You selected *%s* — %s.\n\n%s",
		node.Name, currency.Format(cur, node.Price), msgConfirmOrCancel)
}

func orderConfirmedMessage(order model.Order, path []string, cur model.Currency) string {
	return fmt.Sprintf(
		"✅ *Order Confirmed!*\n\n📦 Order ID: #%s\n🛍 Service: %s\n💰 Price: %s\n📋 Status: Pending\n\nOur team will contact you shortly. Type *menu* for the main menu.",
		order.ShortID(), strings.Join(path, " > "), currency.Format(cur, order.Price))
}

func replyAckMessage(order *model.Order, text string) string {
	return fmt.Sprintf(
		"✅ Your message has been added to order #%s:\n\n\"%s\"\n\nOur team will respond shortly. Type *close* to end this conversation or *menu* for the main menu.",
		order.ShortID(), text)
}

func noOrderablesMessage(name string) string {
	return fmt.Sprintf("❌ No orderable services found under *%s*. Type *menu* to start over.", name)
}

func notOrderableMessage(name string) string {
	return fmt.Sprintf("❌ *%s* is not available for ordering. Type *menu* to start over.", name)
}

func unavailableMessage(name string) string {
	return fmt.Sprintf("❌ *%s* is no longer available. Type *menu* to see current services.", name)
}
