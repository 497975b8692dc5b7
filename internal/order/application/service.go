package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	"github.com/dmehra2102/Food-Ordering-System/pkg/keyedmutex"
	"github.com/dmehra2102/Food-Ordering-System/pkg/tracing"
)

const (
	DefaultMaxAge = 3 * time.Hour

	eventPaymentSessionAttached = "PaymentSessionAttached"
	maxConflictRetries          = 3
)

type PlaceOrderInput struct {
	Venue           string
	Items           []inventory.MenuItemID
	PaymentRequired bool
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMaxAge(d time.Duration) Option {
	return func(s *Service) { s.maxAge = d }
}

func WithReferenceGenerator(gen func() string) Option {
	return func(s *Service) { s.newReference = gen }
}

// Service is the order lifecycle. Every mutation of one order runs under that
// order's lock, and its notifications are emitted before the lock is released.
type Service struct {
	log    *slog.Logger
	repo   OrderRepository
	stock  StockLedger
	notify Notifier
	hold   PaymentHold
	locks  *keyedmutex.Mutex
	tracer trace.Tracer

	now          func() time.Time
	newReference func() string
	maxAge       time.Duration
}

func NewService(log *slog.Logger, repo OrderRepository, stock StockLedger, notify Notifier, opts ...Option) *Service {
	s := &Service{
		log:          log,
		repo:         repo,
		stock:        stock,
		notify:       notify,
		locks:        keyedmutex.New(),
		tracer:       otel.Tracer("order-service"),
		now:          func() time.Time { return time.Now().UTC() },
		newReference: RandomReference,
		maxAge:       DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPaymentHold wires the scheduler that is itself built on top of the service.
func (s *Service) SetPaymentHold(h PaymentHold) {
	s.hold = h
}

// PlaceOrder reserves stock for every item and creates an open order. A failed
// reservation returns an error matching inventory.ErrInsufficientStock.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	if len(in.Items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}
	lines := make([]domain.OrderLine, 0, len(in.Items))
	for _, id := range in.Items {
		it, ok := s.stock.Item(id)
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: %s", inventory.ErrUnknownMenuItem, id)
		}
		lines = append(lines, domain.OrderLine{MenuItemID: id, Name: it.Name, UnitPrice: it.Price})
	}

	req := inventory.RequestFromItems(in.Items)
	if err := s.stock.Reserve(ctx, req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}

	id := uuid.NewString()
	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.create(ctx, id, in, lines)
	if err != nil {
		if rerr := s.stock.Release(context.WithoutCancel(ctx), req); rerr != nil {
			s.log.Error("release after failed create", "order_id", id, "err", rerr)
		}
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.reference", o.Reference),
		attribute.Bool("order.payment_required", o.PaymentRequired),
	)

	s.log.Info("order created", "order_id", o.ID, "reference", o.Reference, "lines", len(o.Lines))
	s.notify.OrderChanged(ctx, domain.EventOrderCreated, o)
	s.notify.StockChanged(ctx, o.Venue, s.stock.Snapshot(s.stock.Affected(req)...))
	if o.PaymentRequired && s.hold != nil {
		s.hold.Arm(o.ID, o.CreatedAt)
	}
	return o, nil
}

func (s *Service) create(ctx context.Context, id string, in PlaceOrderInput, lines []domain.OrderLine) (domain.Order, error) {
	for attempt := 0; ; attempt++ {
		ref, err := s.allocateReference(ctx, id, attempt)
		if err != nil {
			return domain.Order{}, err
		}
		o := domain.NewOrder(id, ref, in.Venue, lines, in.PaymentRequired, s.now())
		err = s.save(ctx, o, 0, domain.EventOrderCreated)
		if errors.Is(err, domain.ErrDuplicateReference) && attempt <= maxReferenceAttempts {
			s.log.Warn("reference collision, retrying", "order_id", id, "reference", ref)
			continue
		}
		return o, err
	}
}

// MarkDone closes an order. Marking a done order again is a no-op.
func (s *Service) MarkDone(ctx context.Context, id string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "MarkDone", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return s.mutate(ctx, id, domain.EventOrderDone, func(o *domain.Order, now time.Time) (bool, error) {
		if o.IsCancelled {
			return false, fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, o.ID)
		}
		if o.IsDone {
			return false, nil
		}
		if err := s.checkAge(*o, now); err != nil {
			return false, err
		}
		o.IsDone = true
		return true, nil
	}, func(o domain.Order) {
		s.notify.OrderChanged(ctx, domain.EventOrderDone, o)
	})
}

// MarkPaid records a confirmed payment. It is not subject to the age guard so
// that late confirmations still land.
func (s *Service) MarkPaid(ctx context.Context, id string, details domain.PaymentDetails) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "MarkPaid", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return s.mutate(ctx, id, domain.EventOrderPaid, func(o *domain.Order, now time.Time) (bool, error) {
		if o.IsCancelled {
			return false, fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidTransition, o.ID)
		}
		if o.IsPaid {
			return false, nil
		}
		if details.PaidAt.IsZero() {
			details.PaidAt = now
		}
		if details.SessionID == "" {
			details.SessionID = o.PaymentSessionID
		}
		o.IsPaid = true
		o.Payment = &details
		return true, nil
	}, func(o domain.Order) {
		if s.hold != nil {
			s.hold.Disarm(o.ID)
		}
		s.notify.OrderChanged(ctx, domain.EventOrderPaid, o)
	})
}

// Cancel cancels an open order and returns its stock. Cancelling an already
// cancelled order is a no-op that releases nothing.
func (s *Service) Cancel(ctx context.Context, id string, reason domain.CancelReason) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "Cancel", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.cancel_reason", string(reason)),
	))
	defer span.End()

	return s.mutateWith(ctx, id, domain.EventOrderCancelled, func(o *domain.Order, now time.Time) (bool, error) {
		if o.IsCancelled {
			return false, nil
		}
		if o.IsDone || o.IsPaid {
			return false, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, o.ID, o.Status())
		}
		if reason != domain.ReasonPayment {
			if err := s.checkAge(*o, now); err != nil {
				return false, err
			}
		}
		o.IsCancelled = true
		o.CancelReason = reason
		return true, nil
	}, func(o domain.Order, save func() error) error {
		// The stock comes back in the same step as the cancellation is stored.
		return s.stock.ReleaseWith(ctx, o.Reservation(), save)
	}, func(o domain.Order) {
		if s.hold != nil {
			s.hold.Disarm(o.ID)
		}
		s.log.Info("order cancelled", "order_id", o.ID, "reason", reason)
		s.notify.OrderChanged(ctx, domain.EventOrderCancelled, o)
		s.notify.StockChanged(ctx, o.Venue, s.stock.Snapshot(s.stock.Affected(o.Reservation())...))
	})
}

// AttachPaymentSession records the provider session that will settle the
// order. A later session replaces an earlier one.
func (s *Service) AttachPaymentSession(ctx context.Context, id, sessionID string) (domain.Order, error) {
	return s.mutate(ctx, id, eventPaymentSessionAttached, func(o *domain.Order, now time.Time) (bool, error) {
		if !o.AwaitingPayment() {
			return false, fmt.Errorf("%w: order %s is not awaiting payment", domain.ErrInvalidTransition, o.ID)
		}
		if o.PaymentSessionID == sessionID {
			return false, nil
		}
		o.PaymentSessionID = sessionID
		return true, nil
	}, nil)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// AwaitingPayment lists orders still inside their payment hold that were
// created at least olderThan ago.
func (s *Service) AwaitingPayment(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	return s.repo.FindAwaitingPayment(ctx, s.now().Add(-olderThan))
}

func (s *Service) checkAge(o domain.Order, now time.Time) error {
	if s.maxAge > 0 && o.Age(now) > s.maxAge {
		return fmt.Errorf("%w: order %s created %s ago", domain.ErrStaleOrder, o.ID, o.Age(now).Truncate(time.Second))
	}
	return nil
}

// mutate loads the order under its lock and applies change. When change
// reports a modification the order is saved and after runs, still locked.
func (s *Service) mutate(ctx context.Context, id, eventType string, change func(*domain.Order, time.Time) (bool, error), after func(domain.Order)) (domain.Order, error) {
	return s.mutateWith(ctx, id, eventType, change, nil, after)
}

// mutateWith is mutate with wrap around the save, for transitions whose side
// effects must succeed or fail together with the stored order.
func (s *Service) mutateWith(ctx context.Context, id, eventType string, change func(*domain.Order, time.Time) (bool, error), wrap func(domain.Order, func() error) error, after func(domain.Order)) (domain.Order, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		now := s.now()
		prev := o.Version
		changed, err := change(&o, now)
		if err != nil || !changed {
			return o, err
		}
		o.UpdatedAt = now
		o.Version = prev + 1

		save := func() error { return s.save(ctx, o, prev, eventType) }
		if wrap != nil {
			err = wrap(o, save)
		} else {
			err = save()
		}
		if errors.Is(err, domain.ErrConflict) {
			s.log.Warn("order version conflict, reloading", "order_id", id, "version", prev)
			continue
		}
		if err != nil {
			return domain.Order{}, err
		}
		if after != nil {
			after(o)
		}
		return o, nil
	}
	return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrConflict, id)
}

func (s *Service) save(ctx context.Context, o domain.Order, prevVersion int, eventType string) error {
	payload, err := json.Marshal(domain.NewOrderEvent(eventType, o))
	if err != nil {
		return err
	}
	headers := map[string]string{"source": "order-service", "venue": o.Venue}
	return s.repo.SaveWithOutbox(ctx, o, prevVersion, eventType, payload, headers, tracing.Traceparent(ctx))
}
