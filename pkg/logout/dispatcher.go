package logout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/services"
	"github.com/platinummonkey/ssohub/pkg/tickets"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Dispatcher turns one participating service into logout request contexts,
// delivering the back-channel ones.
type Dispatcher interface {
	Name() string
	Supports(ctx context.Context, req *ExecutionRequest, svc *tickets.SessionService) bool
	Handle(ctx context.Context, svc *tickets.SessionService, sessionID string, req *ExecutionRequest) ([]*RequestContext, error)
}

// DispatcherConfig configures a DefaultDispatcher
type DispatcherConfig struct {
	Name string
	// Protocols the dispatcher handles; empty means every protocol
	Protocols []services.Protocol
	// Async sends fire-and-forget; contexts are SUCCESS once scheduled
	Async bool

	Directory services.Directory
	Resolver  URLResolver
	Builder   MessageBuilder
	Sender    Sender
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// DefaultDispatcher resolves a service's registration and logout URLs,
// builds one message per back-channel URL and sends it.
//
// Back-channel delivery to a service is claimed first, so concurrent cascades
// over the same session notify it once. The service is marked logged out when
// any of its URLs accepted the message and released when none did.
type DefaultDispatcher struct {
	name      string
	protocols map[services.Protocol]bool
	async     bool

	directory services.Directory
	resolver  URLResolver
	builder   MessageBuilder
	sender    Sender
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewDispatcher validates cfg and creates a dispatcher
func NewDispatcher(cfg DispatcherConfig) (*DefaultDispatcher, error) {
	if cfg.Directory == nil || cfg.Resolver == nil || cfg.Builder == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("dispatcher %q: directory, resolver, builder and sender are required", cfg.Name)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	d := &DefaultDispatcher{
		name:      cfg.Name,
		async:     cfg.Async,
		directory: cfg.Directory,
		resolver:  cfg.Resolver,
		builder:   cfg.Builder,
		sender:    cfg.Sender,
		logger:    cfg.Logger.WithField("dispatcher", cfg.Name),
		metrics:   cfg.Metrics,
	}
	if len(cfg.Protocols) > 0 {
		d.protocols = make(map[services.Protocol]bool, len(cfg.Protocols))
		for _, p := range cfg.Protocols {
			d.protocols[p] = true
		}
	}
	return d, nil
}

func (d *DefaultDispatcher) Name() string { return d.name }

// Supports reports whether the service's registration speaks one of the
// dispatcher's protocols. Directory failures count as supported so that
// Handle reports them.
func (d *DefaultDispatcher) Supports(ctx context.Context, req *ExecutionRequest, svc *tickets.SessionService) bool {
	if d.protocols == nil {
		return true
	}
	rs, err := d.directory.FindByService(ctx, svc.ID)
	if errors.Is(err, services.ErrServiceNotFound) {
		return false
	}
	if err != nil {
		return true
	}
	return d.protocols[rs.Protocol]
}

// Handle returns the contexts for svc. Already logged out, unregistered,
// unauthorized and NONE services yield no contexts.
func (d *DefaultDispatcher) Handle(ctx context.Context, svc *tickets.SessionService, sessionID string, req *ExecutionRequest) ([]*RequestContext, error) {
	if svc.AlreadyLoggedOut() {
		return nil, nil
	}

	logger := d.logger.WithField("service", svc.ID)

	rs, err := d.directory.FindByService(ctx, svc.ID)
	if errors.Is(err, services.ErrServiceNotFound) {
		logger.Debug("service is not registered, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: directory lookup for %s: %v", ErrUnexpectedDispatch, svc.ID, err)
	}

	if !d.resolver.IsServiceAuthorized(rs, svc) {
		logger.WithError(ErrUnauthorizedService).Debug("skipping service")
		return nil, nil
	}
	if rs.LogoutType == services.LogoutTypeNone {
		return nil, nil
	}

	var contexts, backChannel []*RequestContext
	for _, u := range d.resolver.Resolve(ctx, rs, svc) {
		rc := NewRequestContext(sessionID, svc, rs, u)
		rc.SetProperty(PropertyDispatcher, d.name)
		if u.Type == services.LogoutTypeBackChannel {
			backChannel = append(backChannel, rc)
		}
		contexts = append(contexts, rc)
	}

	if len(backChannel) == 0 {
		return contexts, nil
	}

	if !svc.TryClaim() {
		// Another cascade is delivering to this service
		return frontChannelOnly(contexts), nil
	}

	settled := false
	defer func() {
		if !settled {
			svc.Release()
		}
	}()

	delivered := false
	for _, rc := range backChannel {
		if d.deliver(ctx, rc) {
			delivered = true
		}
	}

	settled = true
	if delivered {
		svc.MarkLoggedOut()
	} else {
		svc.Release()
	}
	return contexts, nil
}

func frontChannelOnly(contexts []*RequestContext) []*RequestContext {
	var out []*RequestContext
	for _, rc := range contexts {
		if rc.LogoutURL.Type != services.LogoutTypeBackChannel {
			out = append(out, rc)
		}
	}
	return out
}

func (d *DefaultDispatcher) deliver(ctx context.Context, rc *RequestContext) bool {
	protocol := string(rc.RegisteredService.Protocol)
	ctx, span := observability.StartSpan(ctx, "slo.deliver",
		attribute.String("slo.service", rc.RegisteredService.Name),
		attribute.String("slo.protocol", protocol),
		attribute.String("slo.url", rc.LogoutURL.URL),
		attribute.Bool("slo.async", d.async),
	)
	defer span.End()

	logger := d.logger.WithFields(map[string]interface{}{
		"service": rc.RegisteredService.Name,
		"url":     rc.LogoutURL.URL,
	})

	msg, err := d.builder.Build(ctx, rc)
	if err != nil {
		d.fail(rc, fmt.Errorf("%w: %v", ErrUnexpectedDispatch, err), logger)
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	rc.SetProperty(PropertyMessageID, msg.ID)

	start := time.Now()
	err = d.sender.Send(ctx, msg, d.async)
	if d.metrics != nil {
		d.metrics.SLODeliveryDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		var de *DeliveryError
		if errors.As(err, &de) {
			rc.SetProperty(PropertyHTTPStatus, strconv.Itoa(de.StatusCode))
		}
		d.fail(rc, err, logger)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return false
	}

	if d.async {
		rc.SetProperty(PropertyAsync, "true")
	}
	rc.SetStatus(StatusSuccess)
	logger.Debug("logout delivered")
	return true
}

func (d *DefaultDispatcher) fail(rc *RequestContext, err error, logger *observability.Logger) {
	rc.SetProperty(PropertyError, err.Error())
	rc.SetStatus(StatusFailure)
	logger.WithError(err).Warn("logout delivery failed")
}

// ChainingDispatcher selects dispatchers in priority order
type ChainingDispatcher struct {
	dispatchers []Dispatcher
}

// NewChainingDispatcher keeps dispatchers in the given priority order
func NewChainingDispatcher(dispatchers ...Dispatcher) *ChainingDispatcher {
	return &ChainingDispatcher{dispatchers: dispatchers}
}

// Supporting returns every dispatcher that supports svc, in priority order
func (c *ChainingDispatcher) Supporting(ctx context.Context, req *ExecutionRequest, svc *tickets.SessionService) []Dispatcher {
	var out []Dispatcher
	for _, d := range c.dispatchers {
		if d.Supports(ctx, req, svc) {
			out = append(out, d)
		}
	}
	return out
}
