package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	events  []Event
	fail    error
	release chan struct{}
}

func (r *recorder) Send(ctx context.Context, ev Event) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type closingRecorder struct {
	recorder
	closed chan struct{}
	once   sync.Once
}

func newClosingRecorder() *closingRecorder {
	return &closingRecorder{closed: make(chan struct{})}
}

func (r *closingRecorder) Close() {
	r.once.Do(func() { close(r.closed) })
}

func (r *closingRecorder) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(discardLogger(), 0)
	t.Cleanup(h.Close)
	return h
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 2*time.Millisecond)
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := newHub(t)
	key := VenueKey("main", RoleAdminCommands)
	a, b := &recorder{}, &recorder{}
	h.Subscribe(key, a)
	h.Subscribe(key, b)
	h.Subscribe(key, a)
	assert.Equal(t, 2, h.Count(key))

	for _, typ := range []string{TypeOrderCreated, TypeOrderPaid, TypeOrderDone} {
		h.Publish(key, NewEvent(typ, "main", "o-1", nil))
	}
	h.Publish(VenueKey("other", RoleAdminCommands), NewEvent(TypeOrderCreated, "other", "o-2", nil))

	want := []string{TypeOrderCreated, TypeOrderPaid, TypeOrderDone}
	eventually(t, func() bool { return len(a.Types()) == 3 && len(b.Types()) == 3 })
	assert.Equal(t, want, a.Types())
	assert.Equal(t, want, b.Types())
}

func TestHub_NoDeliveryAfterUnsubscribe(t *testing.T) {
	h := newHub(t)
	key := VenueKey("main", RoleCustomer)
	gone, stays := &recorder{}, &recorder{}
	h.Subscribe(key, gone)
	h.Subscribe(key, stays)

	h.Unsubscribe(key, gone)
	h.Unsubscribe(key, &recorder{})
	h.Publish(key, NewEvent(TypeStockUpdated, "main", "", nil))

	eventually(t, func() bool { return len(stays.Types()) == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, gone.Types())
	assert.Equal(t, 1, h.Count(key))
}

func TestHub_FailingSubscriberIsRemoved(t *testing.T) {
	h := newHub(t)
	key := VenueKey("main", RoleAdminMenu)
	bad, good := &recorder{fail: errors.New("socket closed")}, &recorder{}
	h.Subscribe(key, bad)
	h.Subscribe(key, good)

	h.Publish(key, NewEvent(TypeStockUpdated, "main", "", nil))
	eventually(t, func() bool { return h.Count(key) == 1 })

	h.Publish(key, NewEvent(TypeStockUpdated, "main", "", nil))
	eventually(t, func() bool { return len(good.Types()) == 2 })
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(discardLogger(), 2)
	key := VenueKey("main", RoleAdminCommands)
	slow := &recorder{release: make(chan struct{})}
	fast := &recorder{}
	h.Subscribe(key, slow)
	h.Subscribe(key, fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(key, NewEvent(TypeOrderCreated, "main", "", nil))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	eventually(t, func() bool { return len(fast.Types()) >= 2 })
	close(slow.release)
	h.Close()
	assert.LessOrEqual(t, len(slow.Types()), 3)
}

func TestHub_WaitKeepsNewestChannel(t *testing.T) {
	h := newHub(t)
	first, second := &recorder{}, &recorder{}
	h.Wait("o-1", first)
	h.Wait("o-1", second)
	assert.Equal(t, 1, h.Count(ReadyKey("o-1")))

	h.Publish(ReadyKey("o-1"), NewEvent(TypeOrderDone, "main", "o-1", nil))
	eventually(t, func() bool { return len(second.Types()) == 1 })
	assert.Empty(t, first.Types())
}

func TestHub_ResetAll(t *testing.T) {
	h := newHub(t)
	r := &recorder{}
	h.Subscribe(VenueKey("main", RoleAdminCommands), r)
	h.Subscribe(VenueKey("main", RoleCustomer), r)
	h.Wait("o-1", r)

	assert.Equal(t, 3, h.ResetAll())
	assert.Zero(t, h.Count(VenueKey("main", RoleAdminCommands)))

	h.Publish(VenueKey("main", RoleAdminCommands), NewEvent(TypeOrderCreated, "main", "o-2", nil))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.Types())
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	h := newHub(t)
	key := VenueKey("main", RoleAdminCommands)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		r := &recorder{}
		go func() {
			defer wg.Done()
			h.Subscribe(key, r)
			h.Unsubscribe(key, r)
		}()
		go func() {
			defer wg.Done()
			h.Publish(key, NewEvent(TypeOrderCreated, "main", "", nil))
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Count(key))
}

type flaky struct {
	recorder
	failures int
}

func (f *flaky) Send(ctx context.Context, ev Event) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("broker unreachable")
	}
	f.mu.Unlock()
	return f.recorder.Send(ctx, ev)
}

func TestHub_AttachedChannelSurvivesFailuresAndReset(t *testing.T) {
	h := newHub(t)
	key := VenueKey("main", RoleAdminCommands)
	relay := &flaky{failures: 1}
	h.Attach(key, relay)

	h.Publish(key, NewEvent(TypeOrderCreated, "main", "o-1", nil))
	assert.Zero(t, h.ResetAll())
	h.Publish(key, NewEvent(TypeOrderDone, "main", "o-1", nil))

	eventually(t, func() bool { return len(relay.Types()) == 1 })
	assert.Equal(t, []string{TypeOrderDone}, relay.Types())
	assert.Equal(t, 1, h.Count(key))
}

func TestHub_DroppedChannelsAreClosed(t *testing.T) {
	h := newHub(t)
	reset, replaced, newest := newClosingRecorder(), newClosingRecorder(), newClosingRecorder()
	failing := newClosingRecorder()
	failing.fail = errors.New("socket closed")
	relay := newClosingRecorder()

	h.Subscribe(VenueKey("main", RoleCustomer), reset)
	h.Subscribe(VenueKey("main", RoleAdminCommands), failing)
	h.Attach(VenueKey("main", RoleAdminCommands), relay)
	h.Wait("o-1", replaced)
	h.Wait("o-1", newest)
	assert.True(t, replaced.isClosed())
	assert.False(t, newest.isClosed())

	h.Publish(VenueKey("main", RoleAdminCommands), NewEvent(TypeOrderCreated, "main", "o-2", nil))
	eventually(t, failing.isClosed)

	assert.Equal(t, 2, h.ResetAll())
	assert.True(t, reset.isClosed())
	assert.True(t, newest.isClosed())
	assert.False(t, relay.isClosed())

	h.Close()
	assert.True(t, relay.isClosed())
}
