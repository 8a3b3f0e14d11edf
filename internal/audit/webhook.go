package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sekret.org/internal/obs"
)

const (
	defaultQueueSize      = 256
	defaultDeliverTimeout = 2 * time.Second
)

// Webhook posts audit events to the external audit collaborator. Events are
// queued and delivered by a single worker; enqueue never blocks the caller.
// A full queue or a failed delivery drops the event with a log line.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration

	queue chan Event

	closeOnce sync.Once
	done      chan struct{}
}

var _ Emitter = (*Webhook)(nil)

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithDeliverTimeout overrides the per-delivery timeout.
func WithDeliverTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithQueueSize overrides the pending-event queue capacity.
func WithQueueSize(n int) WebhookOption {
	return func(w *Webhook) {
		if n > 0 {
			w.queue = make(chan Event, n)
		}
	}
}

// WithHTTPClient substitutes the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// NewWebhook creates the emitter and starts its delivery worker.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{},
		timeout: defaultDeliverTimeout,
		queue:   make(chan Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

// Notify enqueues the event. The caller's context is not used for delivery;
// the operation has already succeeded by the time the event is handed off.
func (w *Webhook) Notify(_ context.Context, evt Event) {
	select {
	case w.queue <- evt:
	default:
		obs.LogRequest(map[string]any{
			"level":     "warn",
			"msg":       "audit queue full, event dropped",
			"action":    evt.Action,
			"secret_id": evt.SecretID,
		})
	}
}

// Close stops the worker after draining queued events.
func (w *Webhook) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
		<-w.done
	})
}

func (w *Webhook) run() {
	defer close(w.done)
	for evt := range w.queue {
		w.deliver(evt)
	}
}

func (w *Webhook) deliver(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		obs.LogRequest(map[string]any{
			"level":     "warn",
			"msg":       "audit delivery failed",
			"action":    evt.Action,
			"secret_id": evt.SecretID,
			"error":     err.Error(),
		})
		return
	}
	_ = resp.Body.Close()
}
