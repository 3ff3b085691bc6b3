package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smendola/conciser/internal/faults"
)

func TestDo_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	const k = 2
	calls := 0
	var gaps []time.Duration
	lastCall := time.Now()

	p := Policy{Attempts: 4, InitialDelay: 10 * time.Millisecond}
	err := Do(context.Background(), p, func(context.Context) error {
		now := time.Now()
		if calls > 0 {
			gaps = append(gaps, now.Sub(lastCall))
		}
		lastCall = now
		calls++
		if calls <= k {
			return faults.Transientf("overloaded")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, k+1, calls)

	// backoff must grow between attempts
	require.Len(t, gaps, k)
	assert.GreaterOrEqual(t, gaps[0], 10*time.Millisecond)
	assert.Greater(t, gaps[1], gaps[0])
}

func TestDo_TerminalPropagatesImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return faults.External("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, faults.IsExternal(err))
}

func TestDo_BudgetExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	p := Policy{Attempts: 3, InitialDelay: time.Millisecond}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return faults.Transientf("still overloaded")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, faults.IsTransient(err))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Attempts: 5, InitialDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context) error {
			calls++
			return faults.Transientf("overloaded")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
