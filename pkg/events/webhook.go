package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/ssohub/pkg/async"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body
	SignatureHeader = "X-SSOHub-Signature"
	// EventHeader carries the event type
	EventHeader = "X-SSOHub-Event"
	// DeliveryHeader carries the delivery ID
	DeliveryHeader = "X-SSOHub-Delivery"
)

var (
	// ErrSubscriberNotFound is returned for unknown subscriber IDs
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrInvalidSubscriber is returned when a subscriber has no URL
	ErrInvalidSubscriber = errors.New("invalid subscriber")
)

// Subscriber is an HTTP endpoint receiving events
type Subscriber struct {
	ID     string      `json:"id" yaml:"id"`
	URL    string      `json:"url" yaml:"url"`
	Events []EventType `json:"events" yaml:"events"`
	Secret string      `json:"-" yaml:"secret"`
	Active bool        `json:"active" yaml:"active"`
}

func (s *Subscriber) wants(t EventType) bool {
	if !s.Active {
		return false
	}
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == t {
			return true
		}
	}
	return false
}

// WebhookConfig configures a WebhookPublisher
type WebhookConfig struct {
	Timeout     time.Duration
	Retry       RetryConfig
	MaxLogs     int
	RetryWorker int
}

// WebhookPublisher POSTs signed events to subscribers in the background
type WebhookPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	client   *http.Client
	timeout  time.Duration
	workers  int
	store    *DeliveryLogStore
	policy   *RetryPolicy
	logger   *observability.Logger
	metrics  *observability.Metrics
	inflight sync.WaitGroup
}

// NewWebhookPublisher creates a publisher with no subscribers. metrics may be nil.
func NewWebhookPublisher(cfg WebhookConfig, logger *observability.Logger, metrics *observability.Metrics) *WebhookPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWorker <= 0 {
		cfg.RetryWorker = 4
	}
	return &WebhookPublisher{
		subscribers: make(map[string]*Subscriber),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout: cfg.Timeout,
		workers: cfg.RetryWorker,
		store:   NewDeliveryLogStore(cfg.MaxLogs),
		policy:  NewRetryPolicy(cfg.Retry),
		logger:  logger.WithField("component", "webhooks"),
		metrics: metrics,
	}
}

// Subscribe registers or replaces a subscriber, assigning an ID when empty
func (w *WebhookPublisher) Subscribe(sub Subscriber) (string, error) {
	if sub.URL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidSubscriber)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	w.mu.Lock()
	w.subscribers[sub.ID] = &sub
	w.mu.Unlock()
	return sub.ID, nil
}

// Unsubscribe removes a subscriber
func (w *WebhookPublisher) Unsubscribe(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subscribers[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(w.subscribers, id)
	return nil
}

// Deliveries exposes the delivery log
func (w *WebhookPublisher) Deliveries() *DeliveryLogStore { return w.store }

// Publish queues the event for every interested subscriber and returns immediately.
// Only encoding failures are reported; delivery failures go to the log and retry queue.
func (w *WebhookPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	w.mu.RLock()
	var targets []Subscriber
	for _, sub := range w.subscribers {
		if sub.wants(event.Type) {
			targets = append(targets, *sub)
		}
	}
	w.mu.RUnlock()

	for _, sub := range targets {
		log := &DeliveryLog{
			ID:           uuid.NewString(),
			SubscriberID: sub.ID,
			EventID:      event.ID,
			EventType:    event.Type,
			URL:          sub.URL,
			Status:       DeliveryStatusPending,
			CreatedAt:    time.Now(),
			payload:      payload,
		}
		w.store.Add(log)

		sub := sub
		w.inflight.Add(1)
		done := async.SafeGo(context.WithoutCancel(ctx), w.logger, w.timeout+time.Second, "webhook delivery", func(ctx context.Context) error {
			// failures are already logged and queued for retry
			_ = w.attempt(ctx, sub, log.ID)
			return nil
		})
		go func() {
			<-done
			w.inflight.Done()
		}()
	}
	return nil
}

// Wait blocks until in-flight deliveries finish
func (w *WebhookPublisher) Wait() { w.inflight.Wait() }

// ProcessRetries redelivers every log whose backoff has elapsed
func (w *WebhookPublisher) ProcessRetries(ctx context.Context) {
	ids := w.store.DueRetries(time.Now())
	if len(ids) == 0 {
		return
	}
	w.logger.WithField("count", len(ids)).Debug("retrying webhook deliveries")

	async.Batch(ctx, w.logger, ids, w.workers, "webhook retry", w.timeout+time.Second, func(ctx context.Context, id string) error {
		log, ok := w.store.Get(id)
		if !ok {
			return nil
		}
		w.mu.RLock()
		sub, ok := w.subscribers[log.SubscriberID]
		var target Subscriber
		if ok {
			target = *sub
		}
		w.mu.RUnlock()
		if !ok {
			w.store.Update(id, func(l *DeliveryLog) {
				l.Status = DeliveryStatusFailed
				l.ErrorMessage = ErrSubscriberNotFound.Error()
				l.NextRetryAt = nil
			})
			return nil
		}
		return w.attempt(ctx, target, id)
	})
}

func (w *WebhookPublisher) attempt(ctx context.Context, sub Subscriber, logID string) error {
	log, ok := w.store.Get(logID)
	if !ok {
		return nil
	}

	start := time.Now()
	status, err := w.send(ctx, sub, log)
	elapsed := time.Since(start)

	var outcome DeliveryStatus
	w.store.Update(logID, func(l *DeliveryLog) {
		l.Attempts++
		l.StatusCode = status
		l.Duration = elapsed
		if err == nil {
			now := time.Now()
			l.Status = DeliveryStatusSuccess
			l.ErrorMessage = ""
			l.CompletedAt = &now
			l.NextRetryAt = nil
		} else if w.policy.ShouldRetry(l.Attempts, err) {
			next := time.Now().Add(w.policy.NextRetryDelay(l.Attempts))
			l.Status = DeliveryStatusRetrying
			l.ErrorMessage = err.Error()
			l.NextRetryAt = &next
		} else {
			now := time.Now()
			l.Status = DeliveryStatusFailed
			l.ErrorMessage = err.Error()
			l.CompletedAt = &now
			l.NextRetryAt = nil
		}
		outcome = l.Status
	})

	if w.metrics != nil {
		w.metrics.EventDeliveriesTotal.WithLabelValues(string(log.EventType), string(outcome)).Inc()
	}
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"subscriber_id": sub.ID,
			"delivery_id":   logID,
			"status":        string(outcome),
		}).WithError(err).Warn("webhook delivery failed")
	}
	return err
}

func (w *WebhookPublisher) send(ctx context.Context, sub Subscriber, log DeliveryLog) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(log.payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, string(log.EventType))
	req.Header.Set(DeliveryHeader, log.ID)
	if sub.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(log.payload, sub.Secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Sign returns "sha256=" followed by the hex HMAC-SHA256 of payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign in constant time
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(payload, secret)))
}
