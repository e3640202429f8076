package tickets

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRegistry struct {
	*MemoryRegistry
}

func (failingRegistry) Expired(ctx context.Context, now time.Time) ([]string, error) {
	return nil, errors.New("registry offline")
}

func TestReaper_RunOnce(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"TGT-1", "TGT-2", "TGT-3"} {
		require.NoError(t, reg.Add(ctx, NewSession(id, KindTicketGranting, "", now.Add(-time.Hour), now.Add(-time.Minute))))
	}
	require.NoError(t, reg.Add(ctx, NewSession("TGT-live", KindTicketGranting, "", now, now.Add(time.Hour))))

	var mu sync.Mutex
	var seen []string
	terminate := func(ctx context.Context, id string) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		if id == "TGT-2" {
			return errors.New("boom")
		}
		return reg.Delete(ctx, id)
	}

	r := NewReaper(reg, terminate, nil, ReaperConfig{Workers: 2})
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sort.Strings(seen)
	assert.Equal(t, []string{"TGT-1", "TGT-2", "TGT-3"}, seen)
	assert.Equal(t, 2, reg.Len(), "failed and live sessions remain")
}

func TestReaper_RunOnceListError(t *testing.T) {
	r := NewReaper(failingRegistry{NewMemoryRegistry()}, func(context.Context, string) error { return nil }, nil, ReaperConfig{})
	_, err := r.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestReaper_StartInvalidSchedule(t *testing.T) {
	r := NewReaper(NewMemoryRegistry(), func(context.Context, string) error { return nil }, nil, ReaperConfig{Schedule: "not a schedule"})
	_, err := r.Start(context.Background())
	assert.Error(t, err)
}

func TestReaper_Start(t *testing.T) {
	r := NewReaper(NewMemoryRegistry(), func(context.Context, string) error { return nil }, nil, ReaperConfig{Schedule: "@every 1m"})
	c, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()
}
