package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventPaymentConfirmed = "PaymentConfirmed"

// PaymentConfirmed is published by the payment gateway once a session settles.
type PaymentConfirmed struct {
	EventID   string          `json:"event_id"`
	OrderID   string          `json:"order_id"`
	SessionID string          `json:"session_id"`
	Provider  string          `json:"provider"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
}
