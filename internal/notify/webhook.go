package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook POSTs each event as JSON to a fixed URL.
type Webhook struct {
	client  *http.Client
	url     string
	headers map[string]string
}

type WebhookOption func(*Webhook)

// WithClient sets the HTTP client (default: 10s timeout).
func WithClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		w.client = c
	}
}

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) WebhookOption {
	return func(w *Webhook) {
		if w.headers == nil {
			w.headers = make(map[string]string)
		}
		w.headers[key] = value
	}
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Webhook) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify.Webhook.Deliver: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify.Webhook.Deliver: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Webhook.Deliver: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify.Webhook.Deliver: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
