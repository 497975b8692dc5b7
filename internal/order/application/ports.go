package application

import (
	"context"
	"time"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

// OrderRepository persists orders together with an outbox record of the
// transition. prevVersion is 0 for a new order; otherwise the write must fail
// with domain.ErrConflict unless the stored version still equals prevVersion.
// A reference already taken by another order fails with domain.ErrDuplicateReference.
type OrderRepository interface {
	SaveWithOutbox(ctx context.Context, o domain.Order, prevVersion int, eventType string, payload []byte, headers map[string]string, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	FindAwaitingPayment(ctx context.Context, createdBefore time.Time) ([]domain.Order, error)
}

type StockLedger interface {
	Item(id inventory.MenuItemID) (inventory.MenuItem, bool)
	Reserve(ctx context.Context, req inventory.Request) error
	Release(ctx context.Context, req inventory.Request) error
	// ReleaseWith undoes the release when commit fails.
	ReleaseWith(ctx context.Context, req inventory.Request, commit func() error) error
	Affected(req inventory.Request) []inventory.MenuItemID
	Snapshot(ids ...inventory.MenuItemID) []inventory.StockLevel
}

// Notifier must not block; delivery happens after the call returns.
type Notifier interface {
	OrderChanged(ctx context.Context, eventType string, o domain.Order)
	StockChanged(ctx context.Context, venue string, levels []inventory.StockLevel)
}

type PaymentHold interface {
	Arm(orderID string, createdAt time.Time)
	Disarm(orderID string)
}
