package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookOptions tunes the webhook delegate.
type WebhookOptions struct {
	Timeout  time.Duration
	RetryMax int
	// HTTPClient replaces the underlying transport client, mostly for tests.
	HTTPClient *http.Client
	RetryWait  time.Duration
}

// Webhook posts urls to an HTTP endpoint, typically a phone or desktop
// companion that opens them.
type Webhook struct {
	endpoint string
	client   *retryablehttp.Client
}

type webhookPayload struct {
	URL      string    `json:"url"`
	Source   string    `json:"source"`
	Occurred time.Time `json:"occurred_at"`
}

func NewWebhook(endpoint string, opts WebhookOptions) (*Webhook, error) {
	if endpoint == "" {
		return nil, errors.New("webhook endpoint is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWait
	client.RetryWaitMax = 4 * opts.RetryWait
	client.Logger = slog.Default().With("component", "webhook_delegate")
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	}
	client.HTTPClient.Timeout = opts.Timeout

	return &Webhook{endpoint: endpoint, client: client}, nil
}

func (w *Webhook) OpenExternally(ctx context.Context, url string) error {
	body, err := json.Marshal(webhookPayload{URL: url, Source: "webshell", Occurred: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delegate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delegate failed: status=%d", resp.StatusCode)
	}
	return nil
}
