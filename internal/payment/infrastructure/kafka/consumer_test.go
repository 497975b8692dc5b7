package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeConfirmer struct {
	mu        sync.Mutex
	confirmed []string
	fail      error
	outages   int
	attempts  int
}

func (c *fakeConfirmer) Confirm(ctx context.Context, ev domain.PaymentConfirmed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.fail != nil {
		return c.fail
	}
	if c.outages > 0 {
		c.outages--
		return errors.New("db down")
	}
	c.confirmed = append(c.confirmed, ev.OrderID)
	return nil
}

type memoryDeduper struct {
	seen      map[string]bool
	forgotten []string
	err       error
	outages   int
}

func (d *memoryDeduper) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset)
}

func (d *memoryDeduper) KeyFor(source, id string) string { return source + ":" + id }

func (d *memoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.outages > 0 {
		d.outages--
		return false, errors.New("redis down")
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	was := d.seen[key]
	d.seen[key] = true
	return was, nil
}

func (d *memoryDeduper) Forget(ctx context.Context, key string) error {
	delete(d.seen, key)
	d.forgotten = append(d.forgotten, key)
	return nil
}

func confirmation(offset int64, body string) kafka.Message {
	return kafka.Message{
		Topic:   "payment.events",
		Offset:  offset,
		Value:   []byte(body),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(domain.EventPaymentConfirmed)}},
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestConsumer_ConfirmsOncePerEvent(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		confirmation(1, `{"event_id":"ev-1","order_id":"o-1","session_id":"cs_1","amount":"9.00"}`),
		confirmation(2, `{"event_id":"ev-1","order_id":"o-1","session_id":"cs_1","amount":"9.00"}`),
		confirmation(3, `{"order_id":"o-2"}`),
		confirmation(4, `not json`),
		{Topic: "payment.events", Offset: 5, Value: []byte(`{}`), Headers: []kafka.Header{{Key: "event_type", Value: []byte("PaymentRefunded")}}},
	}}
	confirmer := &fakeConfirmer{}
	c := newConsumer(discard(), reader, confirmer, &memoryDeduper{})

	err := c.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{"o-1", "o-2"}, confirmer.confirmed)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
	assert.True(t, reader.closed)
}

func fastRetries(t *testing.T) {
	prev := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = prev })
}

func TestConsumer_IdempotencyOutageRetriesSameMessage(t *testing.T) {
	fastRetries(t)
	reader := &fakeReader{msgs: []kafka.Message{
		confirmation(1, `{"event_id":"ev-1","order_id":"o-1"}`),
		confirmation(2, `{"event_id":"ev-2","order_id":"o-2"}`),
	}}
	confirmer := &fakeConfirmer{}
	c := newConsumer(discard(), reader, confirmer, &memoryDeduper{outages: 2})

	require.ErrorIs(t, c.Run(context.Background()), io.EOF)

	assert.Equal(t, []string{"o-1", "o-2"}, confirmer.confirmed)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumer_FailedConfirmRetriesBeforeNextMessage(t *testing.T) {
	fastRetries(t)
	reader := &fakeReader{msgs: []kafka.Message{
		confirmation(1, `{"event_id":"ev-1","order_id":"o-1"}`),
		confirmation(2, `{"event_id":"ev-2","order_id":"o-2"}`),
	}}
	dedupe := &memoryDeduper{}
	confirmer := &fakeConfirmer{outages: 3}
	c := newConsumer(discard(), reader, confirmer, dedupe)

	require.ErrorIs(t, c.Run(context.Background()), io.EOF)

	assert.Equal(t, 5, confirmer.attempts)
	assert.Equal(t, []string{"o-1", "o-2"}, confirmer.confirmed)
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Equal(t, []string{"payment:ev-1", "payment:ev-1", "payment:ev-1"}, dedupe.forgotten)
	assert.True(t, dedupe.seen["payment:ev-1"])
}

func TestConsumer_CancelStopsRetryWithoutCommit(t *testing.T) {
	fastRetries(t)
	reader := &fakeReader{msgs: []kafka.Message{confirmation(1, `{"event_id":"ev-1","order_id":"o-1"}`)}}
	dedupe := &memoryDeduper{}
	c := newConsumer(discard(), reader, &fakeConfirmer{fail: errors.New("db down")}, dedupe)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Empty(t, reader.committed)
	assert.False(t, dedupe.seen["payment:ev-1"])
	assert.True(t, reader.closed)
}
