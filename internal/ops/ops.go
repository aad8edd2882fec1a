// Package ops sends operator alerts for connection-lifecycle events and
// fatal errors to a chat webhook. Delivery is best effort; a failed alert is
// only logged.
package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Signal is the side channel components report lifecycle events on.
type Signal interface {
	Notify(ctx context.Context, text string)
}

// Webhook posts alerts as {"text": ...} payloads, the shape most chat-bot
// incoming webhooks accept.
type Webhook struct {
	url    string
	client *http.Client
}

// NewSignal returns a webhook-backed signal, or a no-op signal when no URL
// is configured.
func NewSignal(url string) Signal {
	if url == "" {
		return noop{}
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts the alert text to the webhook.
func (w *Webhook) Notify(ctx context.Context, text string) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		slog.Error("failed to marshal ops alert", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("failed to build ops alert request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Error("failed to deliver ops alert", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("ops webhook rejected alert", "status", resp.StatusCode)
	}
}

type noop struct{}

func (noop) Notify(context.Context, string) {}
