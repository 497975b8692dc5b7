package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid order transition")
	ErrStaleOrder         = errors.New("order too old to modify")
	ErrDuplicateReference = errors.New("duplicate order reference")
	ErrConflict           = errors.New("order modified concurrently")
	ErrEmptyOrder         = errors.New("order has no items")
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusDone      OrderStatus = "done"
	StatusPaid      OrderStatus = "paid"
	StatusDonePaid  OrderStatus = "done_paid"
	StatusCancelled OrderStatus = "cancelled"
)

type CancelReason string

const (
	ReasonAdmin    CancelReason = "admin"
	ReasonCustomer CancelReason = "customer"
	ReasonPayment  CancelReason = "payment"
)

type OrderLine struct {
	MenuItemID inventory.MenuItemID
	Name       string
	UnitPrice  decimal.Decimal
}

type PaymentDetails struct {
	Provider  string
	SessionID string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

type Order struct {
	ID               string
	Reference        string
	Venue            string
	Lines            []OrderLine
	TotalPrice       decimal.Decimal
	PaymentRequired  bool
	PaymentSessionID string
	Payment          *PaymentDetails
	IsDone           bool
	IsPaid           bool
	IsCancelled      bool
	CancelReason     CancelReason
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
}

func NewOrder(id, reference, venue string, lines []OrderLine, paymentRequired bool, now time.Time) Order {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice)
	}
	return Order{
		ID:              id,
		Reference:       reference,
		Venue:           venue,
		Lines:           lines,
		TotalPrice:      total,
		PaymentRequired: paymentRequired,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
}

func (o Order) Status() OrderStatus {
	switch {
	case o.IsCancelled:
		return StatusCancelled
	case o.IsDone && o.IsPaid:
		return StatusDonePaid
	case o.IsDone:
		return StatusDone
	case o.IsPaid:
		return StatusPaid
	default:
		return StatusOpen
	}
}

func (o Order) IsCancellable() bool {
	return !o.IsDone && !o.IsPaid && !o.IsCancelled
}

// Active orders keep their reference reserved.
func (o Order) Active() bool {
	return !o.IsDone && !o.IsCancelled
}

// AwaitingPayment reports whether the order is still inside its payment hold.
func (o Order) AwaitingPayment() bool {
	return o.PaymentRequired && !o.IsPaid && !o.IsCancelled
}

func (o Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// Reservation is the stock request the order holds while it is not cancelled.
func (o Order) Reservation() inventory.Request {
	ids := make([]inventory.MenuItemID, len(o.Lines))
	for i, l := range o.Lines {
		ids[i] = l.MenuItemID
	}
	return inventory.RequestFromItems(ids)
}
