package credrotate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/credrotate"
)

func TestGetApiKeyForRequestDoesNotIncrement(t *testing.T) {
	store := credrotate.NewMemoryStore(nil)
	r := credrotate.New([]string{"k1", "k2", "k3"}, store)

	issued, err := r.GetApiKeyForRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k1", issued.Key)
	assert.Equal(t, 0, issued.Index)

	status, err := r.GetRotationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.UsageCount)
}

func TestRotationOnLimitReached(t *testing.T) {
	store := credrotate.NewMemoryStore(nil)
	r := credrotate.New([]string{"k1", "k2", "k3"}, store, credrotate.WithRequestsPerKey(20))

	ctx := context.Background()

	for i := 0; i < 20; i++ {
		issued, err := r.GetApiKeyForRequest(ctx)
		require.NoError(t, err)
		require.Equal(t, "k1", issued.Key)
		require.NoError(t, r.ConfirmApiKeyUsage(ctx, issued.Index))
	}

	issued, err := r.GetApiKeyForRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", issued.Key)
	assert.Equal(t, 1, issued.Index)

	require.NoError(t, r.ConfirmApiKeyUsage(ctx, issued.Index))

	status, err := r.GetRotationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.UsageCount)
	assert.Equal(t, 1, status.CurrentIndex)
}

func TestForcedRotationDoesNotSetTTLOnOldCounter(t *testing.T) {
	clock := time.Unix(0, 0)
	store := credrotate.NewMemoryStore(func() time.Time { return clock })
	r := credrotate.New([]string{"k1", "k2"}, store)

	ctx := context.Background()

	require.NoError(t, r.ConfirmApiKeyUsage(ctx, 0))

	issued, err := r.ForceKeyRotationAndGetKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k2", issued.Key)
	assert.Equal(t, 1, issued.Index)

	status, err := r.GetRotationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.UsageCount)

	clock = clock.Add(credrotate.DefaultTTL + time.Second)

	old, ok, err := store.GetInt(ctx, "credrotate:usage:0")
	require.NoError(t, err)
	assert.True(t, ok, "the abandoned counter must not have expired")
	assert.Equal(t, int64(1), old)
}

func TestShouldRotateOnErrorClassification(t *testing.T) {
	cases := map[int]bool{
		200: false, 301: false, 400: true, 401: true, 403: true,
		429: true, 500: true, 502: true, 503: true, 504: true,
	}

	for code, want := range cases {
		assert.Equal(t, want, credrotate.ShouldRotateOnError(code), "code %d", code)
	}
}

func TestExtractErrorCodeFindsFirstThreeDigitRun(t *testing.T) {
	assert.Equal(t, 429, credrotate.ExtractErrorCode(errors.New("upstream responded with status 429 Too Many Requests")))
	assert.Equal(t, 0, credrotate.ExtractErrorCode(errors.New("no code here")))
	assert.Equal(t, 0, credrotate.ExtractErrorCode(nil))
}

func TestConfirmSetsTTLExactlyAtLimit(t *testing.T) {
	clock := time.Unix(0, 0)
	store := credrotate.NewMemoryStore(func() time.Time { return clock })
	r := credrotate.New([]string{"only"}, store, credrotate.WithRequestsPerKey(2))

	ctx := context.Background()

	require.NoError(t, r.ConfirmApiKeyUsage(ctx, 0))
	require.NoError(t, r.ConfirmApiKeyUsage(ctx, 0))

	v, ok, err := store.GetInt(ctx, "credrotate:usage:0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	clock = clock.Add(credrotate.DefaultTTL + time.Second)

	_, ok, err = store.GetInt(ctx, "credrotate:usage:0")
	require.NoError(t, err)
	assert.False(t, ok, "the counter must expire once its TTL has passed")
}
