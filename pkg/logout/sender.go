package logout

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/ssohub/pkg/async"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultUserAgent   = "ssohub-slo/1.0"
	defaultSendTimeout = 5 * time.Second
	maxDrainBytes      = 4 << 10
)

// Sender delivers a built logout message. In asynchronous mode Send returns as soon
// as the delivery is scheduled and a later failure is only logged.
type Sender interface {
	Send(ctx context.Context, msg *Message, asynchronous bool) error
}

// HTTPSenderConfig configures an HTTPSender
type HTTPSenderConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTPSender posts messages as application/x-www-form-urlencoded. A 2xx
// response is success; anything else, including a timeout, is ErrDeliveryFailure.
type HTTPSender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *observability.Logger
}

// NewHTTPSender creates a sender whose transport is traced with otelhttp.
// Redirects are not followed: a relying party answering with one has not
// processed the logout.
func NewHTTPSender(cfg HTTPSenderConfig, logger *observability.Logger) *HTTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &HTTPSender{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Send posts msg, synchronously unless asynchronous is set
func (s *HTTPSender) Send(ctx context.Context, msg *Message, asynchronous bool) error {
	if !asynchronous {
		return s.post(ctx, msg)
	}

	async.SafeGo(context.WithoutCancel(ctx), s.logger.WithField("url", msg.URL), s.timeout+time.Second,
		"logout delivery", func(ctx context.Context) error {
			return s.post(ctx, msg)
		})
	return nil
}

func (s *HTTPSender) post(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.URL, strings.NewReader(msg.Form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{StatusCode: resp.StatusCode, URL: msg.URL}
	}
	return nil
}

// DeliveryError reports a non-2xx response from a relying party
type DeliveryError struct {
	StatusCode int
	URL        string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %s answered %d", ErrDeliveryFailure, e.URL, e.StatusCode)
}

// Unwrap makes errors.Is(err, ErrDeliveryFailure) true
func (e *DeliveryError) Unwrap() error { return ErrDeliveryFailure }
