package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/Food-Ordering-System/internal/notification"
)

var ErrClosed = errors.New("stream closed")

// Stream is the notification.Channel behind one open event-stream response.
type Stream struct {
	events chan notification.Event
	closed chan struct{}
	once   sync.Once
}

func NewStream(buffer int) *Stream {
	return &Stream{events: make(chan notification.Event, buffer), closed: make(chan struct{})}
}

func (s *Stream) Send(ctx context.Context, ev notification.Event) error {
	select {
	case <-s.closed:
		return ErrClosed
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) Close() {
	s.once.Do(func() { close(s.closed) })
}

type Handler struct {
	log       *slog.Logger
	hub       *notification.Hub
	keepAlive time.Duration
}

func NewHandler(log *slog.Logger, hub *notification.Hub) *Handler {
	return &Handler{log: log, hub: hub, keepAlive: 15 * time.Second}
}

// Mount registers the stream endpoints on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/venues/{venue}/events", h.venueEvents)
	r.Get("/orders/{id}/events", h.orderEvents)
}

func (h *Handler) venueEvents(w http.ResponseWriter, r *http.Request) {
	role := notification.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = notification.RoleCustomer
	}
	if !role.Valid() || role == notification.RoleOrderReady {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	h.serve(w, r, notification.VenueKey(chi.URLParam(r, "venue"), role))
}

func (h *Handler) orderEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, notification.ReadyKey(chi.URLParam(r, "id")))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, key notification.Key) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := NewStream(notification.DefaultQueueSize)
	h.hub.Subscribe(key, stream)
	defer func() {
		stream.Close()
		h.hub.Unsubscribe(key, stream)
	}()
	h.log.Debug("event stream opened", "role", key.Role, "venue", key.Venue, "order_id", key.OrderID)

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.closed:
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-stream.events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("event marshal failed", "event_id", ev.ID, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
