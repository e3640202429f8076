package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
)

type instrumentedRegistry struct {
	Registry
	metrics *observability.Metrics
}

// WithMetrics counts registry operations on metrics.RegistryOperationsTotal.
// A nil metrics returns reg unchanged.
func WithMetrics(reg Registry, metrics *observability.Metrics) Registry {
	if metrics == nil {
		return reg
	}
	return &instrumentedRegistry{Registry: reg, metrics: metrics}
}

func (r *instrumentedRegistry) observe(op string, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	r.metrics.RegistryOperationsTotal.WithLabelValues(op, status).Inc()
}

func (r *instrumentedRegistry) Lookup(ctx context.Context, id string) (*Session, error) {
	s, err := r.Registry.Lookup(ctx, id)
	r.observe("lookup", err)
	return s, err
}

func (r *instrumentedRegistry) Delete(ctx context.Context, id string) error {
	err := r.Registry.Delete(ctx, id)
	r.observe("delete", err)
	return err
}

func (r *instrumentedRegistry) Add(ctx context.Context, session *Session) error {
	err := r.Registry.Add(ctx, session)
	r.observe("add", err)
	return err
}

func (r *instrumentedRegistry) Expired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.Registry.Expired(ctx, now)
	r.observe("expired", err)
	return ids, err
}
