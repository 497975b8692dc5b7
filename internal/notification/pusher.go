package notification

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// ErrEndpointGone is returned by a PushTransport when the endpoint no longer
// exists and should be forgotten.
var ErrEndpointGone = errors.New("push endpoint gone")

type Endpoint struct {
	ID    string `json:"id"`
	Venue string `json:"venue"`
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

type PushTransport interface {
	Send(ctx context.Context, ep Endpoint, payload []byte) error
}

// Pusher delivers events to registered push endpoints on a best-effort basis.
type Pusher struct {
	log       *slog.Logger
	transport PushTransport

	mu        sync.RWMutex
	endpoints map[string]map[string]Endpoint

	wg sync.WaitGroup
}

func NewPusher(log *slog.Logger, transport PushTransport) *Pusher {
	return &Pusher{
		log:       log,
		transport: transport,
		endpoints: make(map[string]map[string]Endpoint),
	}
}

func (p *Pusher) Register(ep Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.endpoints[ep.Venue] == nil {
		p.endpoints[ep.Venue] = make(map[string]Endpoint)
	}
	p.endpoints[ep.Venue][ep.ID] = ep
}

func (p *Pusher) Unregister(venue, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.endpoints[venue], id)
	if len(p.endpoints[venue]) == 0 {
		delete(p.endpoints, venue)
	}
}

func (p *Pusher) Endpoints(venue string) []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eps := slices.Collect(maps.Values(p.endpoints[venue]))
	slices.SortFunc(eps, func(a, b Endpoint) int { return cmp.Compare(a.ID, b.ID) })
	return eps
}

// Push sends ev to every endpoint of its venue in the background. A rejected
// endpoint is logged and skipped for this event.
func (p *Pusher) Push(ev Event) {
	eps := p.Endpoints(ev.Venue)
	if len(eps) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("push payload marshal failed", "event_id", ev.ID, "err", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for _, ep := range eps {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err := p.transport.Send(ctx, ep, payload)
			cancel()
			switch {
			case errors.Is(err, ErrEndpointGone):
				p.log.Info("push endpoint gone, unregistering", "endpoint_id", ep.ID, "venue", ep.Venue)
				p.Unregister(ep.Venue, ep.ID)
			case err != nil:
				p.log.Warn("push rejected", "endpoint_id", ep.ID, "venue", ep.Venue, "event_id", ev.ID, "err", err)
			}
		}
	}()
}

// Wait blocks until in-flight pushes finish or timeout elapses.
func (p *Pusher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
