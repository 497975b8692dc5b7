package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/Food-Ordering-System/pkg/outbox"
)

// The methods below let the in-memory repository feed an outbox.Relay.

func (r *Repository) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []outbox.Event
	for i := range r.events {
		if len(out) == batchSize {
			break
		}
		e := &r.events[i]
		if !e.Claimable(now) {
			continue
		}
		e.Status = outbox.StatusInProgress
		e.RelayID = relayID
		e.LeaseUntil = now.Add(lease)
		out = append(out, *e)
	}
	return out, nil
}

func (r *Repository) MarkSent(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.events {
		if slices.Contains(ids, r.events[i].ID) {
			r.events[i].Status = outbox.StatusSent
			r.events[i].LeaseUntil = time.Time{}
		}
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string, permanent bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.events {
		e := &r.events[i]
		if e.ID != id {
			continue
		}
		e.RetryCount++
		e.LastError = errMsg
		e.Status = outbox.AfterFailure(e.RetryCount, permanent)
		e.LeaseUntil = time.Time{}
	}
	return nil
}

func (r *Repository) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	until := time.Now().Add(lease)
	for i := range r.events {
		e := &r.events[i]
		if e.RelayID == relayID && slices.Contains(ids, e.ID) {
			e.LeaseUntil = until
		}
	}
	return nil
}
