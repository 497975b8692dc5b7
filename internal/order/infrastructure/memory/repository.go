package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	"github.com/dmehra2102/Food-Ordering-System/pkg/outbox"
)

// Repository stores orders in process memory and keeps the outbox records it
// would have written, in commit order.
type Repository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	events []outbox.Event
}

func NewRepository() *Repository {
	return &Repository{
		orders: make(map[string]domain.Order),
	}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, prevVersion int, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.orders[o.ID]
	switch {
	case prevVersion == 0 && exists:
		return domain.ErrConflict
	case prevVersion != 0 && (!exists || current.Version != prevVersion):
		return domain.ErrConflict
	}
	if o.Active() && r.referenceTaken(o.Reference, o.ID) {
		return domain.ErrDuplicateReference
	}

	r.orders[o.ID] = clone(o)
	r.events = append(r.events, outbox.Event{
		ID:            int64(len(r.events) + 1),
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          eventType,
		Payload:       payload,
		Headers:       headers,
		Traceparent:   traceparent,
		CreatedAt:     o.UpdatedAt,
		Status:        outbox.StatusPending,
	})
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

func (r *Repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.referenceTaken(reference, ""), nil
}

func (r *Repository) referenceTaken(reference, exceptID string) bool {
	for id, o := range r.orders {
		if id != exceptID && o.Reference == reference && o.Active() {
			return true
		}
	}
	return false
}

func (r *Repository) FindAwaitingPayment(ctx context.Context, createdBefore time.Time) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Order
	for _, o := range r.orders {
		if o.AwaitingPayment() && !o.CreatedAt.After(createdBefore) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events returns the outbox records written so far.
func (r *Repository) Events() []outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func clone(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	if o.Payment != nil {
		p := *o.Payment
		o.Payment = &p
	}
	return o
}
