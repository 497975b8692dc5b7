package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmehra2102/Food-Ordering-System/internal/payment/application"
	"github.com/dmehra2102/Food-Ordering-System/internal/payment/domain"
)

// Client is a checkout-session API client. Amounts travel in minor units.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	name    string
}

func NewClient(log *slog.Logger, baseURL, apiKey, name string) *Client {
	return &Client{
		log: log,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		name:    name,
	}
}

type sessionResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	CompletedAt   int64  `json:"completed_at"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), &resp); err != nil {
		return domain.Session{}, err
	}

	s := domain.Session{
		ID:       resp.ID,
		Provider: c.name,
		Status:   domain.SessionStatus(resp.Status),
		Amount:   decimal.New(resp.AmountTotal, -2),
		Currency: resp.Currency,
	}
	// A complete session with an unpaid invoice is still waiting on the bank.
	if s.Status == domain.SessionComplete && resp.PaymentStatus != "" && resp.PaymentStatus != "paid" {
		s.Status = domain.SessionOpen
	}
	if resp.CompletedAt > 0 {
		s.CompletedAt = time.Unix(resp.CompletedAt, 0).UTC()
	}
	return s, nil
}

func (c *Client) ExpireSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(sessionID)+"/expire", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return domain.ErrSessionNotFound
	case res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusConflict:
		var e errorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		c.log.Debug("payment provider rejected request", "path", path, "code", e.Error.Code, "message", e.Error.Message)
		return fmt.Errorf("%w: %s", domain.ErrSessionNotOpen, e.Error.Message)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, res.StatusCode)
	case res.StatusCode >= 300:
		return fmt.Errorf("payment provider: unexpected status %d", res.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %w", domain.ErrProviderUnavailable, err)
	}
	return nil
}

var _ application.Provider = (*Client)(nil)
