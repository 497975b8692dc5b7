package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

// OrderView is the order as subscribers see it.
type OrderView struct {
	ID              string             `json:"id"`
	Reference       string             `json:"reference"`
	Status          domain.OrderStatus `json:"status"`
	Items           []string           `json:"items"`
	TotalPrice      decimal.Decimal    `json:"total_price"`
	PaymentRequired bool               `json:"payment_required"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

func NewOrderView(o domain.Order) OrderView {
	items := make([]string, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = l.Name
	}
	return OrderView{
		ID:              o.ID,
		Reference:       o.Reference,
		Status:          o.Status(),
		Items:           items,
		TotalPrice:      o.TotalPrice,
		PaymentRequired: o.PaymentRequired,
		CancelReason:    string(o.CancelReason),
		CreatedAt:       o.CreatedAt,
	}
}

type StockView struct {
	MenuItemID string `json:"menu_item_id"`
	Available  *int   `json:"available"`
}

var lifecycleTypes = map[string]string{
	domain.EventOrderCreated:   TypeOrderCreated,
	domain.EventOrderDone:      TypeOrderDone,
	domain.EventOrderPaid:      TypeOrderPaid,
	domain.EventOrderCancelled: TypeOrderCancelled,
}

// Notifier routes lifecycle and stock changes to the hub and the pusher.
type Notifier struct {
	hub  *Hub
	push *Pusher
}

func NewNotifier(hub *Hub, push *Pusher) *Notifier {
	return &Notifier{hub: hub, push: push}
}

func (n *Notifier) OrderChanged(ctx context.Context, eventType string, o domain.Order) {
	t, ok := lifecycleTypes[eventType]
	if !ok {
		return
	}
	ev := NewEvent(t, o.Venue, o.ID, NewOrderView(o))

	n.hub.Publish(VenueKey(o.Venue, RoleAdminCommands), ev)
	n.hub.Publish(ReadyKey(o.ID), ev)
	if t == TypeOrderCreated && n.push != nil {
		n.push.Push(ev)
	}
}

func (n *Notifier) StockChanged(ctx context.Context, venue string, levels []inventory.StockLevel) {
	if len(levels) == 0 {
		return
	}
	views := make([]StockView, len(levels))
	for i, l := range levels {
		views[i] = StockView{MenuItemID: string(l.MenuItemID)}
		if !l.Stock.IsUnbounded() {
			c := l.Stock.Count()
			views[i].Available = &c
		}
	}
	ev := NewEvent(TypeStockUpdated, venue, "", views)

	n.hub.Publish(VenueKey(venue, RoleAdminMenu), ev)
	n.hub.Publish(VenueKey(venue, RoleCustomer), ev)
}
