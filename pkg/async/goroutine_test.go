package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/ssohub/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestSafeGo_Success(t *testing.T) {
	var executed atomic.Bool
	done := SafeGo(context.Background(), nil, time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})
	waitDone(t, done)
	assert.True(t, executed.Load())
}

func TestSafeGo_ErrorIsLogged(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := observability.NewLogger(observability.DebugLevel, buf)

	done := SafeGo(context.Background(), logger, time.Second, "delivery", func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	waitDone(t, done)

	assert.True(t, strings.Contains(buf.String(), "connection refused"))
	assert.True(t, strings.Contains(buf.String(), "delivery"))
}

func TestSafeGo_Timeout(t *testing.T) {
	var cancelled atomic.Bool
	done := SafeGo(context.Background(), nil, 20*time.Millisecond, "slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			cancelled.Store(true)
			return ctx.Err()
		}
	})
	waitDone(t, done)
	assert.True(t, cancelled.Load())
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := observability.NewLogger(observability.ErrorLevel, buf)

	done := SafeGo(context.Background(), logger, time.Second, "panicky", func(ctx context.Context) error {
		panic("boom")
	})
	waitDone(t, done)
	assert.True(t, strings.Contains(buf.String(), "boom"))
}

func TestSafeGo_DetachedFromCallerCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr atomic.Value
	done := SafeGo(context.WithoutCancel(parent), nil, time.Second, "detached", func(ctx context.Context) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})
	waitDone(t, done)
	assert.Equal(t, true, ctxErr.Load())
}

func TestWorkerPool_CollectsErrors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), nil, 3, "test", time.Second)

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			if i%5 == 0 {
				return errors.New("failed")
			}
			if i == 7 {
				panic("worker panic")
			}
			return nil
		}))
	}

	errs := pool.Close()
	assert.Equal(t, int32(20), ran.Load())
	assert.Len(t, errs, 5)

	assert.ErrorIs(t, pool.Submit(func(ctx context.Context) error { return nil }), ErrPoolClosed)
}

func TestWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(context.Background(), nil, 0, "test", time.Second)
	var ran atomic.Bool
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	assert.Empty(t, pool.Close())
	assert.True(t, ran.Load())
}

func TestBatch(t *testing.T) {
	items := []string{"TGT-1", "TGT-2", "TGT-3", "TGT-4"}
	var processed atomic.Int32

	errs := Batch(context.Background(), nil, items, 2, "reaper", time.Second, func(ctx context.Context, id string) error {
		processed.Add(1)
		if id == "TGT-3" {
			return errors.New("registry down")
		}
		return nil
	})

	assert.Equal(t, int32(4), processed.Load())
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "registry down")
}

func TestBatch_Empty(t *testing.T) {
	errs := Batch(context.Background(), nil, []int{}, 4, "noop", time.Second, func(ctx context.Context, i int) error {
		return errors.New("unreachable")
	})
	assert.Empty(t, errs)
}
