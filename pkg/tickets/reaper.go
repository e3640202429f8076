package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/ssohub/pkg/async"
	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/robfig/cron/v3"
)

// TerminateFunc ends one session, running its logout cascade and removing it
// from the registry.
type TerminateFunc func(ctx context.Context, sessionID string) error

// ReaperConfig configures a Reaper
type ReaperConfig struct {
	Schedule    string
	Workers     int
	TaskTimeout time.Duration
}

// Reaper terminates expired sessions on a cron schedule
type Reaper struct {
	registry  Registry
	terminate TerminateFunc
	logger    *observability.Logger
	cfg       ReaperConfig
	now       func() time.Time
}

// NewReaper creates a reaper. Workers defaults to 4 and TaskTimeout to 30s.
func NewReaper(registry Registry, terminate TerminateFunc, logger *observability.Logger, cfg ReaperConfig) *Reaper {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Reaper{
		registry:  registry,
		terminate: terminate,
		logger:    logger.WithField("component", "reaper"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// RunOnce terminates every session expired at the current time. It returns
// the number of sessions terminated; per-session failures are logged and do
// not stop the sweep.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.registry.Expired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	errs := async.Batch(ctx, r.logger, ids, r.cfg.Workers, "session reaper", r.cfg.TaskTimeout,
		func(ctx context.Context, id string) error {
			if err := r.terminate(ctx, id); err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
			return nil
		})
	for _, err := range errs {
		r.logger.WithError(err).Warn("failed to terminate expired session")
	}

	terminated := len(ids) - len(errs)
	r.logger.WithFields(map[string]interface{}{
		"expired":    len(ids),
		"terminated": terminated,
	}).Info("expired session sweep complete")
	return terminated, nil
}

// Start schedules RunOnce on cfg.Schedule. The returned cron is already
// running; callers stop it with Stop().
func (r *Reaper) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Schedule, func() {
		defer observability.RecoverPanic(r.logger, "session reaper")
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.WithError(err).Error("session sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", r.cfg.Schedule, err)
	}
	c.Start()
	return c, nil
}
