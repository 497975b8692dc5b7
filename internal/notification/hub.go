package notification

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 64

	sendTimeout = 10 * time.Second
)

// Closer is implemented by channels that hold a connection open, such as an
// event stream. The hub closes them when it drops the subscription.
type Closer interface {
	Close()
}

type subscriber struct {
	ch     Channel
	pinned bool
	queue  chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		if c, ok := s.ch.(Closer); ok {
			c.Close()
		}
	})
}

// Hub fans events out to subscriber sets. Each subscriber drains its own FIFO
// queue on its own goroutine, so a slow or failing channel never holds up
// Publish or the other subscribers.
type Hub struct {
	log       *slog.Logger
	queueSize int

	mu   sync.RWMutex
	subs map[Key][]*subscriber

	wg sync.WaitGroup
}

func NewHub(log *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		log:       log,
		queueSize: queueSize,
		subs:      make(map[Key][]*subscriber),
	}
}

// Subscribe adds ch to the set under key. Subscribing the same channel twice
// is a no-op. An order-ready key keeps only the newest channel.
func (h *Hub) Subscribe(key Key, ch Channel) {
	h.subscribe(key, ch, false)
}

// Attach adds a long-lived channel, such as a broker relay, that survives
// ResetAll and stays subscribed when a send fails.
func (h *Hub) Attach(key Key, ch Channel) {
	h.subscribe(key, ch, true)
}

func (h *Hub) subscribe(key Key, ch Channel, pinned bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.subs[key]
	if slices.ContainsFunc(current, func(s *subscriber) bool { return s.ch == ch }) {
		return
	}
	if key.Role == RoleOrderReady {
		for _, s := range current {
			s.stop()
		}
		current = nil
	}

	sub := &subscriber{ch: ch, pinned: pinned, queue: make(chan Event, h.queueSize), done: make(chan struct{})}
	h.subs[key] = append(current, sub)

	h.wg.Add(1)
	go h.run(key, sub)
}

// Wait registers ch as the single channel told about orderID's progress.
func (h *Hub) Wait(orderID string, ch Channel) {
	h.Subscribe(ReadyKey(orderID), ch)
}

func (h *Hub) Unsubscribe(key Key, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(key, func(s *subscriber) bool { return s.ch == ch })
}

// ResetAll drops every subscription except attached ones and reports how
// many were dropped.
func (h *Hub) ResetAll() int {
	return h.reset(false)
}

func (h *Hub) reset(all bool) int {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Key][]*subscriber)
	n := 0
	for key, set := range subs {
		for _, s := range set {
			if s.pinned && !all {
				h.subs[key] = append(h.subs[key], s)
				continue
			}
			s.stop()
			n++
		}
	}
	h.mu.Unlock()

	h.log.Info("notification subscriptions reset", "count", n)
	return n
}

// Publish queues ev for every channel subscribed under key at the time of the
// call. It never blocks; a subscriber whose queue is full misses the event.
func (h *Hub) Publish(key Key, ev Event) {
	h.mu.RLock()
	set := slices.Clone(h.subs[key])
	h.mu.RUnlock()

	for _, s := range set {
		select {
		case <-s.done:
		case s.queue <- ev:
		default:
			h.log.Warn("subscriber queue full, event dropped", "role", key.Role, "venue", key.Venue, "event_id", ev.ID, "type", ev.Type)
		}
	}
}

func (h *Hub) Count(key Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// RunResets calls ResetAll every interval until ctx is done.
func (h *Hub) RunResets(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h.ResetAll()
		}
	}
}

// Close drops every subscription and waits for the delivery goroutines.
func (h *Hub) Close() {
	h.reset(true)
	h.wg.Wait()
}

func (h *Hub) run(key Key, sub *subscriber) {
	defer h.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case ev := <-sub.queue:
			select {
			case <-sub.done:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := sub.ch.Send(ctx, ev)
			cancel()
			if err != nil && sub.pinned {
				h.log.Error("attached channel send failed", "role", key.Role, "venue", key.Venue, "event_id", ev.ID, "err", err)
				continue
			}
			if err != nil {
				h.log.Warn("subscriber send failed, removing", "role", key.Role, "venue", key.Venue, "event_id", ev.ID, "err", err)
				h.mu.Lock()
				h.removeLocked(key, func(s *subscriber) bool { return s == sub })
				h.mu.Unlock()
				return
			}
		}
	}
}

func (h *Hub) removeLocked(key Key, match func(*subscriber) bool) {
	set := h.subs[key]
	i := slices.IndexFunc(set, match)
	if i < 0 {
		return
	}
	set[i].stop()
	set = slices.Delete(slices.Clone(set), i, i+1)
	if len(set) == 0 {
		delete(h.subs, key)
		return
	}
	h.subs[key] = set
}
