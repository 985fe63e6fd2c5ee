package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{name: "burst allows initial events", rps: 1, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst is refused", rps: 1, burst: 2, calls: 5, wantPass: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst, 0)
			defer rl.Stop()

			passed := 0
			for range tt.calls {
				if rl.Allow("u1") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := New(1, 1, 0)
	defer rl.Stop()

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"))
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_Wait(t *testing.T) {
	rl := New(20, 1, 0)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "u1"))
	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "u1"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestKeyedRateLimiter_WaitCanceled(t *testing.T) {
	rl := New(0.001, 1, 0)
	defer rl.Stop()

	require.True(t, rl.Allow("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx, "u1"))
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := New(1, 1, time.Hour)
	defer rl.Stop()

	rl.Allow("u1")
	rl.Allow("u2")

	rl.evictIdle(time.Now())
	assert.Equal(t, 2, rl.Len())

	rl.evictIdle(time.Now().Add(2 * time.Hour))
	assert.Zero(t, rl.Len())
}

func TestKeyedRateLimiter_StopTwice(t *testing.T) {
	rl := New(1, 1, time.Millisecond)
	rl.Stop()
	rl.Stop()
}
