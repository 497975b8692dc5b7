package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderDone      = "OrderDone"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

// OrderEvent is the payload written to the outbox for every committed transition.
type OrderEvent struct {
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id"`
	Reference  string          `json:"reference"`
	Venue      string          `json:"venue"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Reason     CancelReason    `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewOrderEvent(eventType string, o Order) OrderEvent {
	return OrderEvent{
		Type:       eventType,
		OrderID:    o.ID,
		Reference:  o.Reference,
		Venue:      o.Venue,
		Status:     o.Status(),
		TotalPrice: o.TotalPrice,
		Reason:     o.CancelReason,
		OccurredAt: o.UpdatedAt,
	}
}
