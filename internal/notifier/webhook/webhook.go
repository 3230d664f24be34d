// Package webhook implements an HTTP webhook notifier
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newthinker/tradewatch/internal/notifier"
)

const defaultTimeout = 10 * time.Second

// Webhook posts each alert as a JSON document
type Webhook struct {
	url     string
	headers map[string]string
	client  *resty.Client
}

// New creates a new Webhook notifier
func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  resty.New().SetTimeout(defaultTimeout),
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Init(cfg notifier.Config) error {
	if url, ok := cfg.Params["url"].(string); ok {
		w.url = url
	}
	if headers, ok := cfg.Params["headers"].(map[string]string); ok {
		w.headers = headers
	}

	if w.url == "" {
		return fmt.Errorf("webhook: url is required")
	}

	if w.client == nil {
		w.client = resty.New().SetTimeout(defaultTimeout)
	}

	return nil
}

func (w *Webhook) Send(ctx context.Context, alert notifier.Alert) error {
	return w.post(ctx, alertPayload(alert))
}

func alertPayload(alert notifier.Alert) map[string]any {
	return map[string]any{
		"type":     "alert",
		"rule":     alert.Rule,
		"severity": alert.Severity,
		"message":  alert.Message,
		"metric":   alert.Metric,
		"value":    alert.Value,
		"fired_at": alert.FiredAt.Format(time.RFC3339),
	}
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(w.headers).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}

	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode())
	}

	return nil
}
