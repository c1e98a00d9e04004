package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWait(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var delayed []string
	l := New(Config{
		RPS:   10, // one token every 100ms
		Burst: 1,
		OnDelay: func(key string, _ time.Duration) {
			mu.Lock()
			delayed = append(delayed, key)
			mu.Unlock()
		},
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "metrics"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "metrics"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"metrics"}, delayed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "metrics"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "tables"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "metrics"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "metrics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestUnlimitedAndNilLimiters(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "metrics"))
	}

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "metrics"))
}
