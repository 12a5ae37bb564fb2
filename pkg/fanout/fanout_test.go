package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunPreservesInputOrder(t *testing.T) {
	tasks := make([]Task[int], 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			// Later tasks finish first.
			time.Sleep(time.Duration(len(tasks)-i) * time.Millisecond)
			return i * 10, nil
		}
	}

	results := Run(context.Background(), 4, tasks)

	require.Len(t, results, len(tasks))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i*10, r.Value)
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 7} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			var running, peak atomic.Int64
			tasks := make([]Task[struct{}], 20)
			for i := range tasks {
				tasks[i] = func(ctx context.Context) (struct{}, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					running.Add(-1)
					return struct{}{}, nil
				}
			}

			Run(context.Background(), limit, tasks)

			assert.LessOrEqual(t, peak.Load(), int64(limit))
			assert.Equal(t, int64(0), running.Load())
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { return "a", nil },
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { panic("kaboom") },
		func(ctx context.Context) (string, error) { return "d", nil },
	}

	results := Run(context.Background(), 2, tasks)

	require.Len(t, results, 4)
	assert.Equal(t, "a", results[0].Value)
	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, boom)

	var panicErr *PanicError
	require.ErrorAs(t, results[2].Err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)

	assert.Equal(t, "d", results[3].Value)
	assert.Equal(t, []string{"a", "d"}, Values(results))
}

func TestRunTreatsNonPositiveLimitAsOne(t *testing.T) {
	var running, peak atomic.Int64
	tasks := make([]Task[int], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			if n := running.Add(1); n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			return i, nil
		}
	}

	results := Run(context.Background(), 0, tasks)

	assert.Len(t, Values(results), 5)
	assert.Equal(t, int64(1), peak.Load())
}

func TestRunSkipsTasksAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	tasks := []Task[int]{
		func(ctx context.Context) (int, error) { ran.Add(1); return 1, nil },
		func(ctx context.Context) (int, error) { ran.Add(1); return 2, nil },
	}

	results := Run(ctx, 1, tasks)

	assert.Equal(t, int64(0), ran.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestRunEmpty(t *testing.T) {
	assert.Empty(t, Run[int](context.Background(), 3, nil))
}
