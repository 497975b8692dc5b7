package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

const (
	DefaultSweepAfter    = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Reconciler periodically settles orders whose hold timer was lost or failed.
type Reconciler struct {
	settler
	after    time.Duration
	interval time.Duration
}

func NewReconciler(log *slog.Logger, orders Orders, provider Provider, after, interval time.Duration) *Reconciler {
	if after <= 0 {
		after = DefaultSweepAfter
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reconciler{
		settler:  settler{log: log, orders: orders, provider: provider},
		after:    after,
		interval: interval,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("payment reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("payment sweep failed", "err", err)
			}
		}
	}
}

// Sweep settles every order that has been awaiting payment longer than the
// sweep threshold. Orders the provider cannot vouch for are left for the next
// pass. It returns how many orders changed state.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	orders, err := r.orders.AwaitingPayment(ctx, r.after)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, listed := range orders {
		o, err := r.orders.Get(ctx, listed.ID)
		if err != nil {
			r.log.Error("payment sweep lookup failed", "order_id", listed.ID, "err", err)
			continue
		}
		if !o.AwaitingPayment() {
			continue
		}
		res, err := r.settle(ctx, o, false)
		switch {
		case errors.Is(err, domain.ErrProviderUnavailable):
			r.log.Warn("provider unavailable, retrying next sweep", "order_id", o.ID)
		case err != nil:
			r.log.Error("payment sweep settle failed", "order_id", o.ID, "err", err)
		case res != outcomeSettled:
			settled++
			r.log.Info("payment swept", "order_id", o.ID, "outcome", res)
		}
	}
	return settled, nil
}
