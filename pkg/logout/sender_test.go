package logout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Success(t *testing.T) {
	rp := newRelyingParty(t, http.StatusOK)
	s := NewHTTPSender(HTTPSenderConfig{}, observability.NopLogger())

	err := s.Send(context.Background(), &Message{URL: rp.URL(), Form: url.Values{SAMLFormField: {"<xml/>"}}}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rp.hits.Load())
	assert.Equal(t, "<xml/>", rp.lastForm().Get(SAMLFormField))
}

func TestHTTPSender_NonSuccessStatus(t *testing.T) {
	rp := newRelyingParty(t, http.StatusInternalServerError)
	s := NewHTTPSender(HTTPSenderConfig{}, observability.NopLogger())

	err := s.Send(context.Background(), &Message{URL: rp.URL(), Form: url.Values{}}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailure)

	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)
}

func TestHTTPSender_DoesNotFollowRedirects(t *testing.T) {
	rp := newRelyingParty(t, http.StatusFound)
	s := NewHTTPSender(HTTPSenderConfig{}, observability.NopLogger())

	err := s.Send(context.Background(), &Message{URL: rp.URL(), Form: url.Values{}}, false)
	assert.ErrorIs(t, err, ErrDeliveryFailure)
}

func TestHTTPSender_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s := NewHTTPSender(HTTPSenderConfig{Timeout: 50 * time.Millisecond}, observability.NopLogger())
	start := time.Now()
	err := s.Send(context.Background(), &Message{URL: server.URL, Form: url.Values{}}, false)
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPSender_Async(t *testing.T) {
	rp := newRelyingParty(t, http.StatusInternalServerError)
	s := NewHTTPSender(HTTPSenderConfig{}, observability.NopLogger())

	err := s.Send(context.Background(), &Message{URL: rp.URL(), Form: url.Values{}}, true)
	require.NoError(t, err, "async failures are not reported to the caller")
	assert.Eventually(t, func() bool { return rp.hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPSender_AsyncSurvivesCallerCancel(t *testing.T) {
	rp := newRelyingParty(t, http.StatusOK)
	s := NewHTTPSender(HTTPSenderConfig{}, observability.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Send(ctx, &Message{URL: rp.URL(), Form: url.Values{}}, true))
	cancel()
	assert.Eventually(t, func() bool { return rp.hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}
