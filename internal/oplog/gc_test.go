package oplog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/oplog"
	"github.com/cloudtext/docsync/internal/store"
)

func newTestStoreForGC(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestRunSkipsTooSoonUnlessForced(t *testing.T) {
	s := newTestStoreForGC(t)
	clock := time.Now()

	gc := oplog.New(s, oplog.Config{}, nil, func() time.Time { return clock })

	ctx := context.Background()
	_, err := gc.Run(ctx, false)
	require.NoError(t, err)

	res, err := gc.Run(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.SkippedTooSoon)

	forced, err := gc.Run(ctx, true)
	require.NoError(t, err)
	assert.False(t, forced.SkippedTooSoon)
}

func TestRunAgesOutSyncedOperations(t *testing.T) {
	s := newTestStoreForGC(t)
	ctx := context.Background()

	now := time.Now()

	require.NoError(t, s.SaveFile(ctx, &store.File{ID: "f1", Title: "t", ETag: "e", Version: 1, LastModified: 1}))
	require.NoError(t, s.AddOperation(ctx, &store.Operation{
		ID: "old", FileID: "f1", OperationType: store.OpUpdate,
		Timestamp: now.Add(-10 * 24 * time.Hour).UnixNano(), Synced: true,
	}))
	require.NoError(t, s.AddOperation(ctx, &store.Operation{
		ID: "recent", FileID: "f1", OperationType: store.OpUpdate,
		Timestamp: now.UnixNano(), Synced: true,
	}))

	gc := oplog.New(s, oplog.Config{}, nil, func() time.Time { return now })

	res, err := gc.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AgedOut)

	remaining, err := s.GetOperations(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].ID)
}

func TestRunCompactsOversizedLog(t *testing.T) {
	s := newTestStoreForGC(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveFile(ctx, &store.File{ID: "f1", Title: "t", ETag: "e", Version: 1, LastModified: 1}))

	cfg := oplog.Config{MaxOperationsPerFile: 10}

	for i := 0; i < 20; i++ {
		require.NoError(t, s.AddOperation(ctx, &store.Operation{
			ID: intID(i), FileID: "f1", OperationType: store.OpUpdate,
			Timestamp: now.Add(time.Duration(i) * time.Second).UnixNano(), Synced: true,
		}))
	}

	gc := oplog.New(s, cfg, nil, func() time.Time { return now })

	res, err := gc.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Compacted)

	remaining, err := s.GetOperations(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, remaining, 5)
}

func TestRunSkipsWhileAlreadyRunning(t *testing.T) {
	s := newTestStoreForGC(t)
	gc := oplog.New(s, oplog.Config{}, nil, nil)

	res, err := gc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.AlreadyRunning)

	bs := &blockingStore{Store: s, entered: make(chan struct{}), release: make(chan struct{})}
	blocked := oplog.New(bs, oplog.Config{}, nil, nil)

	done := make(chan error, 1)

	go func() {
		_, runErr := blocked.Run(context.Background(), true)
		done <- runErr
	}()

	<-bs.entered

	second, err := blocked.Run(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)

	close(bs.release)
	require.NoError(t, <-done)
}

// blockingStore holds a GC pass inside GetAllFiles until release is closed.
type blockingStore struct {
	*store.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) GetAllFiles(ctx context.Context) ([]*store.File, error) {
	close(b.entered)
	<-b.release

	return b.Store.GetAllFiles(ctx)
}

func intID(i int) string {
	return "op-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
