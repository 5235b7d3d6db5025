package netstate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/netstate"
)

func TestDelayBoundary(t *testing.T) {
	cfg := netstate.BackoffConfig{
		Initial:    1000 * time.Millisecond,
		Max:        5000 * time.Millisecond,
		Multiplier: 2,
		Jitter:     false,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		5000 * time.Millisecond,
		5000 * time.Millisecond,
	}

	for n, exp := range want {
		assert.Equal(t, exp, cfg.Delay(n), "attempt %d", n)
	}
}

func TestWithBackoffRetriesThenSucceeds(t *testing.T) {
	cfg := netstate.DefaultBackoffConfig()
	attempts := 0

	noSleep := func(_ context.Context, _ time.Duration) error { return nil }

	err := netstate.WithBackoff(context.Background(), cfg, noSleep, 3, func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	cfg := netstate.DefaultBackoffConfig()
	noSleep := func(_ context.Context, _ time.Duration) error { return nil }

	wantErr := errors.New("boom")
	attempts := 0

	err := netstate.WithBackoff(context.Background(), cfg, noSleep, 3, func(_ context.Context) error {
		attempts++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts)
}

type retryAfterErr struct{ d time.Duration }

func (e retryAfterErr) Error() string            { return "rate limited" }
func (e retryAfterErr) RetryAfter() time.Duration { return e.d }

func TestWithBackoffHonorsRetryAfter(t *testing.T) {
	cfg := netstate.DefaultBackoffConfig()

	var observed time.Duration

	sleep := func(_ context.Context, d time.Duration) error {
		observed = d
		return nil
	}

	attempts := 0
	_ = netstate.WithBackoff(context.Background(), cfg, sleep, 2, func(_ context.Context) error {
		attempts++
		if attempts == 1 {
			return retryAfterErr{d: 42 * time.Second}
		}

		return nil
	})

	assert.Equal(t, 42*time.Second, observed)
}
