package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Now()

	_, err := reg.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s := NewSession("TGT-1", KindTicketGranting, "alice", now, now.Add(-time.Minute))
	require.NoError(t, reg.Add(ctx, s))
	require.NoError(t, reg.Add(ctx, NewSession("TGT-2", KindTicketGranting, "bob", now, now.Add(time.Hour))))

	got, err := reg.Lookup(ctx, "TGT-1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	ids, err := reg.Expired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"TGT-1"}, ids)

	require.NoError(t, reg.Delete(ctx, "TGT-1"))
	require.NoError(t, reg.Delete(ctx, "TGT-1"), "deleting twice is not an error")
	assert.Equal(t, 1, reg.Len())
}

func TestWithMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	reg := WithMetrics(NewMemoryRegistry(), metrics)

	_, _ = reg.Lookup(ctx, "missing")
	require.NoError(t, reg.Add(ctx, NewSession("TGT-1", KindTicketGranting, "", time.Now(), time.Time{})))
	_, _ = reg.Lookup(ctx, "TGT-1")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RegistryOperationsTotal.WithLabelValues("lookup", "not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RegistryOperationsTotal.WithLabelValues("lookup", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RegistryOperationsTotal.WithLabelValues("add", "ok")))

	inner := NewMemoryRegistry()
	assert.Same(t, inner, WithMetrics(inner, nil))
}
