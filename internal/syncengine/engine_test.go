package syncengine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/checkpoint"
	"github.com/cloudtext/docsync/internal/etag"
	"github.com/cloudtext/docsync/internal/filelock"
	"github.com/cloudtext/docsync/internal/httpclient"
	"github.com/cloudtext/docsync/internal/merge"
	"github.com/cloudtext/docsync/internal/store"
	"github.com/cloudtext/docsync/internal/syncengine"
	"github.com/cloudtext/docsync/internal/syncerr"
)

func newEngine(t *testing.T, srv *httptest.Server) (*syncengine.Engine, *store.Store) {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cpMgr := checkpoint.NewManager(s, nil, nil)
	locks := filelock.NewManager()

	noSleep := func(_ context.Context, _ time.Duration) error { return nil }
	httpc := httpclient.New(srv.URL, "key", nil, httpclient.WithSleepFunc(noSleep))

	eng := syncengine.New(syncengine.Config{
		Store:      s,
		Locks:      locks,
		Checkpoint: cpMgr,
		HTTP:       httpc,
		Errors:     syncerr.NewRegistry(),
		UserID:     "user-1",
	})

	return eng, s
}

func TestSyncPushesDirtyFileAndMarksClean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			json.NewEncoder(w).Encode(map[string]any{
				"id": "f1", "title": "Notes", "etag": "newetag", "version": 2,
			})

			return
		}

		json.NewEncoder(w).Encode(map[string]any{"files": []any{}, "has_more": false})
	}))
	defer srv.Close()

	eng, s := newEngine(t, srv)
	ctx := context.Background()

	require.NoError(t, s.SaveFile(ctx, &store.File{
		ID: "f1", Title: "Notes", Content: "hello", ETag: "oldetag", Version: 1,
		LastModified: time.Now().UnixNano(), IsDirty: true,
	}))

	res, err := eng.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncengine.StateIdle, res.State)
	assert.Equal(t, 1, res.Pushed)

	got, err := s.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, got.IsDirty)
	assert.Equal(t, "newetag", got.ETag)
}

func TestSyncRefusesReentry(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			select {
			case <-entered:
			default:
				close(entered)
			}

			<-release
		}

		json.NewEncoder(w).Encode(map[string]any{"files": []any{}, "has_more": false})
	}))
	defer srv.Close()

	eng, _ := newEngine(t, srv)

	go func() { _, _ = eng.Sync(context.Background()) }()

	<-entered

	res, err := eng.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncengine.StateSyncing, res.State)
	assert.Equal(t, "Sync already in progress", res.Reason)

	close(release)
}

func TestSyncPullInsertsNewFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]any{
					{
						"id": "remote-1", "title": "Remote Doc", "content": "remote content",
						"etag": "retag", "version": 1, "isFolder": false,
						"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
					},
				},
				"has_more": false,
			})

			return
		}
	}))
	defer srv.Close()

	eng, s := newEngine(t, srv)
	ctx := context.Background()

	res, err := eng.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	got, err := s.GetFile(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "remote content", got.Content)
	assert.False(t, got.IsDirty)
}

func TestSyncPullSkipsIdenticalETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "f1", "title": "t", "content": "c", "etag": "same", "version": 1,
					"updatedAt": time.Now().UTC().Format(time.RFC3339Nano)},
			},
			"has_more": false,
		})
	}))
	defer srv.Close()

	eng, s := newEngine(t, srv)
	ctx := context.Background()

	require.NoError(t, s.SaveFile(ctx, &store.File{
		ID: "f1", Title: "t", Content: "c", ETag: "same", Version: 1, IsDirty: false,
	}))

	res, err := eng.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pulled)
}

func TestPushConflictInvokesCallback(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusPreconditionFailed)
				json.NewEncoder(w).Encode(map[string]any{
					"error": "conflict",
					"serverVersion": map[string]any{
						"etag": "servertag", "version": 5, "content": "server content",
					},
				})

				return
			}

			json.NewEncoder(w).Encode(map[string]any{"id": "f1", "etag": "finaletag", "version": 6})

			return
		}

		json.NewEncoder(w).Encode(map[string]any{"files": []any{}, "has_more": false})
	}))
	defer srv.Close()

	eng, s := newEngine(t, srv)
	ctx := context.Background()

	require.NoError(t, s.SaveFile(ctx, &store.File{
		ID: "f1", Title: "t", Content: "local content", ETag: "localtag", Version: 3,
		LastModified: time.Now().UnixNano(), IsDirty: true,
	}))

	var sawConflict bool

	eng.SetConflictCallback(func(_ context.Context, c syncengine.Conflict) syncengine.ConflictDecision {
		sawConflict = true
		assert.Equal(t, "f1", c.FileID)

		return syncengine.ConflictDecision{Strategy: merge.StrategyLocal}
	})

	res, err := eng.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, sawConflict)
	assert.Equal(t, 1, res.Conflicts)
}

func TestEncodeCursorProducesValidBase64(t *testing.T) {
	c := syncengine.EncodeCursor("2024-01-01T00:00:00Z", "f1")
	assert.NotEmpty(t, c)
}

func TestQueueSyncDrainsInPriorityOrder(t *testing.T) {
	var order []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "etag": "e", "version": 1})
	}))
	defer srv.Close()

	eng, s := newEngine(t, srv)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveFile(ctx, &store.File{
			ID: id, Title: id, ETag: etag.Generate(etag.Input{ID: id, Content: id}), Version: 1, IsDirty: true,
		}))
	}

	eng.QueueSync("c", 2)
	eng.QueueSync("a", 0)
	eng.QueueSync("b", 1)

	errs := eng.DrainQueue(ctx)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"/files/a", "/files/b", "/files/c"}, order)
}
