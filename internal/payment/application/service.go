package application

import (
	"context"
	"errors"
	"log/slog"

	orderdomain "github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

// Service applies payment confirmations pushed by the gateway.
type Service struct {
	log    *slog.Logger
	orders Orders
}

func NewService(log *slog.Logger, orders Orders) *Service {
	return &Service{log: log, orders: orders}
}

// Confirm marks the order paid. Confirmations for unknown or cancelled orders
// are logged and dropped.
func (s *Service) Confirm(ctx context.Context, ev domain.PaymentConfirmed) error {
	_, err := s.orders.MarkPaid(ctx, ev.OrderID, orderdomain.PaymentDetails{
		Provider:  ev.Provider,
		SessionID: ev.SessionID,
		Amount:    ev.Amount,
		PaidAt:    ev.PaidAt,
	})
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		s.log.Warn("payment confirmed for unknown order", "order_id", ev.OrderID, "session_id", ev.SessionID)
		return nil
	case errors.Is(err, orderdomain.ErrInvalidTransition):
		s.log.Warn("payment confirmed for cancelled order", "order_id", ev.OrderID, "session_id", ev.SessionID)
		return nil
	}
	return err
}
