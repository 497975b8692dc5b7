package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrSessionNotFound     = errors.New("payment session not found")
	// ErrSessionNotOpen is returned when expiring a session that already
	// completed or expired.
	ErrSessionNotOpen = errors.New("payment session not open")
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

// Session is the provider's view of a checkout session.
type Session struct {
	ID          string
	Provider    string
	Status      SessionStatus
	Amount      decimal.Decimal
	Currency    string
	CompletedAt time.Time
}

func (s Session) Complete() bool { return s.Status == SessionComplete }
