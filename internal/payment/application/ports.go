package application

import (
	"context"
	"time"

	orderdomain "github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

// Provider talks to the payment gateway. Transport failures are reported as
// domain.ErrProviderUnavailable.
type Provider interface {
	Session(ctx context.Context, sessionID string) (domain.Session, error)
	ExpireSession(ctx context.Context, sessionID string) error
}

// Orders is the slice of the order lifecycle the payment side drives.
type Orders interface {
	Get(ctx context.Context, id string) (orderdomain.Order, error)
	MarkPaid(ctx context.Context, id string, details orderdomain.PaymentDetails) (orderdomain.Order, error)
	Cancel(ctx context.Context, id string, reason orderdomain.CancelReason) (orderdomain.Order, error)
	AwaitingPayment(ctx context.Context, olderThan time.Duration) ([]orderdomain.Order, error)
}
