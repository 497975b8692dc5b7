package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// MaxRetries is how many failed dispatches park an event as failed.
const MaxRetries = 5

// Event is one outbox row: a committed state transition waiting to be
// published under its aggregate id as the message key.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time

	// Relay bookkeeping.
	Status     Status
	RelayID    string
	LeaseUntil time.Time
	RetryCount int
	LastError  string
}

// AfterFailure is the status an event moves to once a dispatch failed and
// retries counts the failures so far, this one included.
func AfterFailure(retries int, permanent bool) Status {
	if permanent || retries >= MaxRetries {
		return StatusFailed
	}
	return StatusPending
}

// Claimable reports whether a relay may lock the event at now.
func (e Event) Claimable(now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return true
	case StatusInProgress:
		return now.After(e.LeaseUntil)
	default:
		return false
	}
}
