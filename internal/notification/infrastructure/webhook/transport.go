package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dmehra2102/Food-Ordering-System/internal/notification"
)

// Transport POSTs the event JSON to the endpoint URL.
type Transport struct {
	http *http.Client
}

func NewTransport() *Transport {
	return &Transport{http: &http.Client{
		Timeout:   5 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

func (t *Transport) Send(ctx context.Context, ep notification.Endpoint, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}

	res, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return notification.ErrEndpointGone
	case res.StatusCode >= 300:
		return fmt.Errorf("push endpoint %s: status %d", ep.ID, res.StatusCode)
	}
	return nil
}
