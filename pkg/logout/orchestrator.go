package logout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/ssohub/pkg/events"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/platinummonkey/ssohub/pkg/tickets"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Execution outcomes recorded on ssohub_slo_executions_total
const (
	OutcomeCompleted           = "completed"
	OutcomeNotFound            = "not_found"
	OutcomeNotSessionGranting  = "not_session_granting"
	OutcomeDisabled            = "disabled"
	OutcomeRegistryUnavailable = "registry_unavailable"
)

// OrchestratorConfig configures an Orchestrator
type OrchestratorConfig struct {
	// MaxWorkers bounds concurrent per-service dispatch. Defaults to 8.
	MaxWorkers int
	// Disabled skips notification; sessions are still deleted
	Disabled bool
}

// SessionTerminated is the payload of events.EventSessionTerminated. It leaves
// the process through webhooks, so the session is identified by its
// SessionIDClaim hash only.
type SessionTerminated struct {
	SessionHash string            `json:"session_hash"`
	Principal   string            `json:"principal"`
	Services    []string          `json:"services"`
	Results     []*RequestContext `json:"results"`
	Summary     map[Status]int    `json:"summary"`
	EndedAt     time.Time         `json:"ended_at"`
}

// Orchestrator runs the single logout cascade for a session
type Orchestrator struct {
	registry    tickets.Registry
	dispatchers *ChainingDispatcher
	publisher   events.Publisher
	logger      *observability.Logger
	metrics     *observability.Metrics
	cfg         OrchestratorConfig
}

// NewOrchestrator wires an orchestrator. publisher and metrics may be nil.
func NewOrchestrator(registry tickets.Registry, dispatchers *ChainingDispatcher, publisher events.Publisher,
	logger *observability.Logger, metrics *observability.Metrics, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Orchestrator{
		registry:    registry,
		dispatchers: dispatchers,
		publisher:   publisher,
		logger:      logger.WithField("component", "slo"),
		metrics:     metrics,
		cfg:         cfg,
	}
}

// Execute notifies every service that participated in the session and then
// deletes the session. The returned contexts are in service ticket order,
// one per resolved logout URL. Sessions that do not grant service tickets are
// left in place; their lifetime belongs to the granting session.
//
// The only error returned wraps ErrRegistryUnavailable. Caller cancellation
// is ignored so that deletion always runs.
func (o *Orchestrator) Execute(ctx context.Context, sessionID string, req *ExecutionRequest) ([]*RequestContext, error) {
	return o.execute(ctx, sessionID, req, false)
}

// Terminate ends an expired session and discards the contexts. Unlike
// Execute it also removes sessions that do not grant service tickets. It
// satisfies tickets.TerminateFunc.
func (o *Orchestrator) Terminate(ctx context.Context, sessionID string) error {
	_, err := o.execute(ctx, sessionID, nil, true)
	return err
}

func (o *Orchestrator) execute(ctx context.Context, sessionID string, req *ExecutionRequest, expired bool) ([]*RequestContext, error) {
	redacted := tickets.Redact(sessionID)
	ctx = observability.WithSessionID(context.WithoutCancel(ctx), redacted)
	ctx, span := observability.StartSpan(ctx, "slo.execute", attribute.String("slo.session_id", redacted))
	defer span.End()

	logger := observability.UpdateLoggerWithTraceContext(ctx, o.logger.WithField("session_id", redacted))
	if req == nil {
		req = &ExecutionRequest{}
	}

	session, err := o.registry.Lookup(ctx, sessionID)
	switch {
	case errors.Is(err, tickets.ErrSessionNotFound):
		logger.Info("session not found, nothing to log out")
		o.recordExecution(OutcomeNotFound)
		// Clears registry indexes that outlived the session document.
		if derr := o.registry.Delete(ctx, sessionID); derr != nil {
			logger.WithError(derr).Warn("failed to delete session")
		}
		return nil, nil
	case err != nil:
		logger.WithError(err).Error("failed to look up session")
		o.recordExecution(OutcomeRegistryUnavailable)
		span.RecordError(err)
		if derr := o.registry.Delete(ctx, sessionID); derr != nil {
			logger.WithError(derr).Warn("failed to delete session")
		}
		return nil, fmt.Errorf("%w: lookup %s: %v", ErrRegistryUnavailable, redacted, err)
	}

	if !session.IsSessionGranting() {
		logger.WithField("kind", string(session.Kind)).Info("session does not grant service tickets, skipping logout")
		o.recordExecution(OutcomeNotSessionGranting)
		if !expired {
			return nil, nil
		}
		if err := o.registry.Delete(ctx, sessionID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%w: delete %s: %v", ErrRegistryUnavailable, redacted, err)
		}
		return nil, nil
	}

	var contexts []*RequestContext
	if o.cfg.Disabled {
		logger.Info("single logout is disabled, removing session only")
		o.recordExecution(OutcomeDisabled)
	} else {
		contexts = o.dispatchAll(ctx, session, req, logger)
		o.recordExecution(OutcomeCompleted)
		o.publish(ctx, session, contexts, logger)
	}

	if err := o.registry.Delete(ctx, sessionID); err != nil {
		logger.WithError(err).Error("failed to delete session")
		span.RecordError(err)
		return contexts, fmt.Errorf("%w: delete %s: %v", ErrRegistryUnavailable, redacted, err)
	}
	if o.metrics != nil {
		o.metrics.SessionsTerminated.Inc()
	}
	return contexts, nil
}

func (o *Orchestrator) dispatchAll(ctx context.Context, session *tickets.Session, req *ExecutionRequest, logger *observability.Logger) []*RequestContext {
	svcs := session.Services()
	results := make([][]*RequestContext, len(svcs))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxWorkers)
	for i, svc := range svcs {
		i, svc := i, svc
		g.Go(func() error {
			results[i] = o.dispatchService(ctx, session.ID, svc, req, logger)
			return nil
		})
	}
	_ = g.Wait()

	var contexts []*RequestContext
	for _, r := range results {
		contexts = append(contexts, r...)
	}
	if o.metrics != nil {
		for _, rc := range contexts {
			o.metrics.SLORequestsTotal.WithLabelValues(string(rc.LogoutURL.Type), string(rc.Status())).Inc()
		}
	}

	summary := Summarize(contexts)
	logger.WithFields(map[string]interface{}{
		"services": len(svcs),
		"contexts": len(contexts),
		"success":  summary[StatusSuccess],
		"failure":  summary[StatusFailure],
		"deferred": summary[StatusNotAttempted],
	}).Info("single logout executed")
	return contexts
}

func (o *Orchestrator) dispatchService(ctx context.Context, sessionID string, svc *tickets.SessionService, req *ExecutionRequest,
	logger *observability.Logger) (out []*RequestContext) {
	logger = logger.WithField("service", svc.ID)
	// Covers dispatcher selection too; contexts gathered so far are kept.
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			logger.WithError(fmt.Errorf("%w: %v", ErrUnexpectedDispatch, perr)).Error("service dispatch panicked")
		}
	}()

	for _, d := range o.dispatchers.Supporting(ctx, req, svc) {
		contexts, err := o.handle(ctx, d, svc, sessionID, req)
		if err != nil {
			logger.WithField("dispatcher", d.Name()).WithError(err).Warn("dispatcher failed")
			for _, rc := range contexts {
				if rc.Status() == StatusNotAttempted && rc.SetStatus(StatusFailure) {
					rc.SetProperty(PropertyError, err.Error())
				}
			}
		}
		out = append(out, contexts...)
	}
	return out
}

// handle isolates one dispatcher so that a panic fails only its service
func (o *Orchestrator) handle(ctx context.Context, d Dispatcher, svc *tickets.SessionService, sessionID string,
	req *ExecutionRequest) (contexts []*RequestContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnexpectedDispatch, observability.MustRecover(r))
		}
	}()
	return d.Handle(ctx, svc, sessionID, req)
}

func (o *Orchestrator) publish(ctx context.Context, session *tickets.Session, contexts []*RequestContext, logger *observability.Logger) {
	if o.publisher == nil {
		return
	}
	svcs := session.Services()
	ids := make([]string, 0, len(svcs))
	for _, s := range svcs {
		ids = append(ids, s.ID)
	}
	payload := &SessionTerminated{
		SessionHash: SessionIDClaim(session.ID),
		Principal:   session.Principal,
		Services:    ids,
		Results:     contexts,
		Summary:     Summarize(contexts),
		EndedAt:     time.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, events.NewEvent(events.EventSessionTerminated, payload)); err != nil {
		logger.WithError(err).Warn("failed to publish session termination")
	}
}

func (o *Orchestrator) recordExecution(outcome string) {
	if o.metrics != nil {
		o.metrics.SLOExecutionsTotal.WithLabelValues(outcome).Inc()
	}
}
