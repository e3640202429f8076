package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T, retry RetryConfig) (*WebhookPublisher, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewWebhookPublisher(WebhookConfig{Timeout: 2 * time.Second, Retry: retry}, observability.NopLogger(), metrics), metrics
}

func TestWebhookPublisher_Subscribe(t *testing.T) {
	w, _ := newTestPublisher(t, RetryConfig{})

	id, err := w.Subscribe(Subscriber{URL: "https://example.com/hook", Active: true})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = w.Subscribe(Subscriber{Active: true})
	assert.ErrorIs(t, err, ErrInvalidSubscriber)

	require.NoError(t, w.Unsubscribe(id))
	assert.ErrorIs(t, w.Unsubscribe(id), ErrSubscriberNotFound)
}

func TestWebhookPublisher_DeliversSignedEvent(t *testing.T) {
	var (
		mu        sync.Mutex
		body      []byte
		signature string
		eventType string
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		eventType = r.Header.Get(EventHeader)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	w, metrics := newTestPublisher(t, RetryConfig{})
	subID, err := w.Subscribe(Subscriber{URL: server.URL, Secret: "s3cret", Active: true})
	require.NoError(t, err)

	event := NewEvent(EventSessionTerminated, map[string]string{"session_id": "TGT-1"})
	require.NoError(t, w.Publish(context.Background(), event))
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, string(EventSessionTerminated), eventType)
	assert.True(t, VerifySignature(body, signature, "s3cret"))

	var decoded Event
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, event.ID, decoded.ID)

	stats := w.Deliveries().Stats(subID)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventDeliveriesTotal.WithLabelValues(string(EventSessionTerminated), "success")))
}

func TestWebhookPublisher_SkipsUninterestedSubscribers(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	w, _ := newTestPublisher(t, RetryConfig{})
	_, _ = w.Subscribe(Subscriber{URL: server.URL, Active: false})
	_, _ = w.Subscribe(Subscriber{URL: server.URL, Active: true, Events: []EventType{"other.event"}})

	require.NoError(t, w.Publish(context.Background(), NewEvent(EventSessionTerminated, nil)))
	w.Wait()
	assert.Equal(t, int32(0), calls.Load())
}

func TestWebhookPublisher_RetriesFailedDelivery(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w, _ := newTestPublisher(t, RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	subID, err := w.Subscribe(Subscriber{URL: server.URL, Active: true})
	require.NoError(t, err)

	require.NoError(t, w.Publish(context.Background(), NewEvent(EventSessionTerminated, nil)))
	w.Wait()

	logs := w.Deliveries().BySubscriber(subID, 0)
	require.Len(t, logs, 1)
	assert.Equal(t, DeliveryStatusRetrying, logs[0].Status)
	assert.Equal(t, http.StatusServiceUnavailable, logs[0].StatusCode)

	time.Sleep(5 * time.Millisecond)
	w.ProcessRetries(context.Background())

	log, ok := w.Deliveries().Get(logs[0].ID)
	require.True(t, ok)
	assert.Equal(t, DeliveryStatusSuccess, log.Status)
	assert.Equal(t, 2, log.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w, _ := newTestPublisher(t, RetryConfig{MaxAttempts: 1})
	subID, _ := w.Subscribe(Subscriber{URL: server.URL, Active: true})

	require.NoError(t, w.Publish(context.Background(), NewEvent(EventSessionTerminated, nil)))
	w.Wait()

	logs := w.Deliveries().BySubscriber(subID, 0)
	require.Len(t, logs, 1)
	assert.Equal(t, DeliveryStatusFailed, logs[0].Status)
	assert.Nil(t, logs[0].NextRetryAt)
	assert.Contains(t, logs[0].ErrorMessage, "500")
}

func TestMultiPublisher(t *testing.T) {
	var got []string
	boom := errors.New("boom")
	m := MultiPublisher{
		PublisherFunc(func(ctx context.Context, e Event) error { got = append(got, "a"); return boom }),
		PublisherFunc(func(ctx context.Context, e Event) error { got = append(got, "b"); return nil }),
		LogPublisher{Logger: observability.NopLogger()},
	}

	err := m.Publish(context.Background(), NewEvent(EventSessionTerminated, nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSignature(t *testing.T) {
	payload := []byte(`{"id":"1"}`)
	sig := Sign(payload, "secret")

	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"id":"2"}`), sig, "secret"))
}
