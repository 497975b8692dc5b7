package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

// StockNotifier is satisfied by *notification.Notifier.
type StockNotifier interface {
	StockChanged(ctx context.Context, venue string, levels []domain.StockLevel)
}

// Service applies kitchen-side stock changes that do not come from orders.
type Service struct {
	log    *slog.Logger
	ledger *Ledger
	notify StockNotifier
}

func NewService(log *slog.Logger, ledger *Ledger, notify StockNotifier) *Service {
	return &Service{log: log, ledger: ledger, notify: notify}
}

// Restock adds units to the counters behind the given items. Unbounded items
// are accepted and left unchanged.
func (s *Service) Restock(ctx context.Context, venue string, req domain.Request) error {
	if err := s.ledger.Release(ctx, req); err != nil {
		return err
	}
	s.log.Info("stock restocked", "venue", venue, "items", len(req))
	s.notify.StockChanged(ctx, venue, s.ledger.Snapshot(s.ledger.Affected(req)...))
	return nil
}
