package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	orderdomain "github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

const (
	DefaultHold = 5*time.Minute + 10*time.Second

	expireTimeout = 30 * time.Second
)

type hold struct {
	timer *time.Timer
}

// HoldScheduler cancels orders whose payment did not arrive within the hold.
// Timers live in process memory; Rearm restores them after a restart.
type HoldScheduler struct {
	settler
	delay time.Duration
	now   func() time.Time

	mu    sync.Mutex
	holds map[string]*hold
}

func NewHoldScheduler(log *slog.Logger, orders Orders, provider Provider, delay time.Duration) *HoldScheduler {
	if delay <= 0 {
		delay = DefaultHold
	}
	return &HoldScheduler{
		settler: settler{log: log, orders: orders, provider: provider},
		delay:   delay,
		now:     func() time.Time { return time.Now().UTC() },
		holds:   make(map[string]*hold),
	}
}

// Arm schedules expiry at createdAt plus the hold. Arming an order twice
// replaces the earlier timer.
func (s *HoldScheduler) Arm(orderID string, createdAt time.Time) {
	wait := s.delay - s.now().Sub(createdAt)
	if wait < 0 {
		wait = 0
	}

	h := &hold{}
	s.mu.Lock()
	if prev, ok := s.holds[orderID]; ok {
		prev.timer.Stop()
	}
	s.holds[orderID] = h
	h.timer = time.AfterFunc(wait, func() { s.fire(orderID, h) })
	s.mu.Unlock()

	s.log.Debug("payment hold armed", "order_id", orderID, "wait", wait)
}

func (s *HoldScheduler) Disarm(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.holds[orderID]; ok {
		h.timer.Stop()
		delete(s.holds, orderID)
	}
}

// Rearm arms a hold for every order still awaiting payment.
func (s *HoldScheduler) Rearm(ctx context.Context) (int, error) {
	orders, err := s.orders.AwaitingPayment(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, o := range orders {
		s.Arm(o.ID, o.CreatedAt)
	}
	s.log.Info("payment holds rearmed", "count", len(orders))
	return len(orders), nil
}

// Stop cancels every pending timer.
func (s *HoldScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, h := range s.holds {
		h.timer.Stop()
		delete(s.holds, id)
	}
}

func (s *HoldScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

func (s *HoldScheduler) fire(orderID string, h *hold) {
	s.mu.Lock()
	if s.holds[orderID] != h {
		s.mu.Unlock()
		return
	}
	delete(s.holds, orderID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, orderdomain.ErrOrderNotFound) {
		return
	}
	if err != nil {
		s.log.Error("payment hold lookup failed", "order_id", orderID, "err", err)
		return
	}
	if !o.AwaitingPayment() {
		return
	}

	res, err := s.settle(ctx, o, true)
	if err != nil {
		s.log.Error("payment hold expiry failed", "order_id", orderID, "err", err)
		return
	}
	s.log.Info("payment hold expired", "order_id", orderID, "outcome", res)
}
