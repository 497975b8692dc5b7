package application

import (
	"context"
	"errors"
	"log/slog"

	orderdomain "github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

type outcome string

const (
	outcomePaid      outcome = "paid"
	outcomeCancelled outcome = "cancelled"
	outcomeSettled   outcome = "already_settled"
)

// settler decides the fate of an order whose payment window has closed.
type settler struct {
	log      *slog.Logger
	orders   Orders
	provider Provider
}

// settle marks o paid when its session completed and cancels it otherwise.
// With force unset a provider outage aborts with domain.ErrProviderUnavailable
// so the caller can retry; with force set the order is cancelled regardless.
func (s settler) settle(ctx context.Context, o orderdomain.Order, force bool) (outcome, error) {
	if o.PaymentSessionID != "" {
		sess, err := s.provider.Session(ctx, o.PaymentSessionID)
		switch {
		case err == nil && sess.Complete():
			return s.markPaid(ctx, o, sess)
		case err == nil && sess.Status == domain.SessionOpen:
			err = s.provider.ExpireSession(ctx, sess.ID)
			if errors.Is(err, domain.ErrSessionNotOpen) {
				// Completed between the two calls.
				if sess, err = s.provider.Session(ctx, sess.ID); err == nil && sess.Complete() {
					return s.markPaid(ctx, o, sess)
				}
			}
		case errors.Is(err, domain.ErrSessionNotFound):
			err = nil
		}

		if err != nil {
			if !force {
				return "", err
			}
			s.log.Warn("cancelling without provider confirmation", "order_id", o.ID, "session_id", o.PaymentSessionID, "err", err)
		}
	}

	_, err := s.orders.Cancel(ctx, o.ID, orderdomain.ReasonPayment)
	if errors.Is(err, orderdomain.ErrInvalidTransition) {
		return outcomeSettled, nil
	}
	if err != nil {
		return "", err
	}
	return outcomeCancelled, nil
}

func (s settler) markPaid(ctx context.Context, o orderdomain.Order, sess domain.Session) (outcome, error) {
	_, err := s.orders.MarkPaid(ctx, o.ID, orderdomain.PaymentDetails{
		Provider:  sess.Provider,
		SessionID: sess.ID,
		Amount:    sess.Amount,
		PaidAt:    sess.CompletedAt,
	})
	if errors.Is(err, orderdomain.ErrInvalidTransition) {
		s.log.Warn("payment completed for cancelled order", "order_id", o.ID, "session_id", sess.ID)
		return outcomeSettled, nil
	}
	if err != nil {
		return "", err
	}
	return outcomePaid, nil
}
