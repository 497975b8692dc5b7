package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/notification"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/application"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

type PushRegistry interface {
	Register(ep notification.Endpoint)
	Unregister(venue, id string)
}

// StreamRoutes mounts the live event endpoints.
type StreamRoutes interface {
	Mount(r chi.Router)
}

type Handler struct {
	log     *slog.Logger
	service *application.Service
	push    PushRegistry
	streams StreamRoutes
}

func NewHandler(log *slog.Logger, service *application.Service, push PushRegistry, streams StreamRoutes) *Handler {
	return &Handler{
		log:     log,
		service: service,
		push:    push,
		streams: streams,
	}
}

type placeOrderReq struct {
	Items           []string `json:"items"`
	PaymentRequired bool     `json:"payment_required"`
}

type markPaidReq struct {
	Provider  string          `json:"provider"`
	SessionID string          `json:"session_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type cancelReq struct {
	Reason domain.CancelReason `json:"reason"`
}

type sessionReq struct {
	SessionID string `json:"session_id"`
}

type orderResp struct {
	ID               string             `json:"id"`
	Reference        string             `json:"reference"`
	Venue            string             `json:"venue"`
	Status           domain.OrderStatus `json:"status"`
	Items            []string           `json:"items"`
	TotalPrice       decimal.Decimal    `json:"total_price"`
	PaymentRequired  bool               `json:"payment_required"`
	PaymentSessionID string             `json:"payment_session_id,omitempty"`
	CancelReason     string             `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	Version          int                `json:"version"`
}

type errorResp struct {
	Error string   `json:"error"`
	Items []string `json:"items,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/venues/{venue}/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/done", h.markDone)
	r.Post("/orders/{id}/paid", h.markPaid)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/payment-session", h.attachSession)

	if h.push != nil {
		r.Post("/venues/{venue}/push-endpoints", h.registerEndpoint)
		r.Delete("/venues/{venue}/push-endpoints/{id}", h.unregisterEndpoint)
	}
	if h.streams != nil {
		h.streams.Mount(r)
	}

	return otelhttp.NewHandler(r, "order-http")
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
		return
	}
	items := make([]inventory.MenuItemID, len(req.Items))
	for i, id := range req.Items {
		items[i] = inventory.MenuItemID(id)
	}

	o, err := h.service.PlaceOrder(r.Context(), application.PlaceOrderInput{
		Venue:           chi.URLParam(r, "venue"),
		Items:           items,
		PaymentRequired: req.PaymentRequired,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) markDone(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.MarkDone(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, o, err)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	var req markPaidReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
			return
		}
	}
	o, err := h.service.MarkPaid(r.Context(), chi.URLParam(r, "id"), domain.PaymentDetails{
		Provider:  req.Provider,
		SessionID: req.SessionID,
		Amount:    req.Amount,
	})
	h.respond(w, o, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	req := cancelReq{Reason: domain.ReasonAdmin}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
			return
		}
	}
	switch req.Reason {
	case domain.ReasonAdmin, domain.ReasonCustomer, domain.ReasonPayment:
	default:
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown cancel reason"})
		return
	}
	o, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.respond(w, o, err)
}

func (h *Handler) attachSession(w http.ResponseWriter, r *http.Request) {
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "session_id required"})
		return
	}
	o, err := h.service.AttachPaymentSession(r.Context(), chi.URLParam(r, "id"), req.SessionID)
	h.respond(w, o, err)
}

func (h *Handler) registerEndpoint(w http.ResponseWriter, r *http.Request) {
	var ep notification.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&ep); err != nil || ep.ID == "" || ep.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "id and url required"})
		return
	}
	ep.Venue = chi.URLParam(r, "venue")
	h.push.Register(ep)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unregisterEndpoint(w http.ResponseWriter, r *http.Request) {
	h.push.Unregister(chi.URLParam(r, "venue"), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respond(w http.ResponseWriter, o domain.Order, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var insufficient *inventory.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		items := make([]string, len(insufficient.Items))
		for i, id := range insufficient.Items {
			items[i] = string(id)
		}
		writeJSON(w, http.StatusConflict, errorResp{Error: "insufficient_stock", Items: items})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: "order not found"})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrStaleOrder):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, inventory.ErrUnknownMenuItem),
		errors.Is(err, inventory.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}

func toResp(o domain.Order) orderResp {
	items := make([]string, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = string(l.MenuItemID)
	}
	return orderResp{
		ID:               o.ID,
		Reference:        o.Reference,
		Venue:            o.Venue,
		Status:           o.Status(),
		Items:            items,
		TotalPrice:       o.TotalPrice,
		PaymentRequired:  o.PaymentRequired,
		PaymentSessionID: o.PaymentSessionID,
		CancelReason:     string(o.CancelReason),
		CreatedAt:        o.CreatedAt,
		Version:          o.Version,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
