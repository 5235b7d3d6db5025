package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudtext/docsync/internal/checkpoint"
	"github.com/cloudtext/docsync/internal/config"
	"github.com/cloudtext/docsync/internal/filelock"
	"github.com/cloudtext/docsync/internal/httpclient"
	"github.com/cloudtext/docsync/internal/netstate"
	"github.com/cloudtext/docsync/internal/oplog"
	"github.com/cloudtext/docsync/internal/perf"
	"github.com/cloudtext/docsync/internal/store"
	"github.com/cloudtext/docsync/internal/syncengine"
	"github.com/cloudtext/docsync/internal/syncerr"
)

const probeInterval = 15 * time.Second

// httpProber issues a lightweight HEAD request to decide reachability,
// playing the role a browser's platform online/offline events would.
type httpProber struct {
	client  *http.Client
	baseURL string
}

func (p httpProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}

	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// workspace bundles an opened engine with its owned resources so callers can
// defer a single Close.
type workspace struct {
	Store    *store.Store
	Detector *netstate.Detector
	Errors   *syncerr.Registry
	Engine   *syncengine.Engine
	GC       *oplog.GC
	Perf     *perf.Monitor
}

// Close releases the workspace's owned resources in reverse-acquisition order.
func (w *workspace) Close() {
	w.Engine.Destroy()
	w.Detector.Stop()
	w.Store.Close()
}

// SyncTimed runs one sync cycle wrapped in the performance monitor, so
// 'docsync sync' can log recent cycle timings.
func (w *workspace) SyncTimed(ctx context.Context) (syncengine.Result, error) {
	var result syncengine.Result

	err := w.Perf.Time(ctx, "sync_cycle", func(ctx context.Context) error {
		var syncErr error
		result, syncErr = w.Engine.Sync(ctx)

		return syncErr
	})

	return result, err
}

// openWorkspace wires the full sync stack (store, connectivity detector,
// file locks, checkpoints, HTTP client, error registry, engine) from a
// resolved Config into one workspace a command can run against.
func openWorkspace(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*workspace, error) {
	st, err := store.Open(ctx, cfg.Workspace.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	httpClient := httpclient.New(cfg.Server.BaseURL, cfg.Server.APIKey, logger,
		httpclient.WithMaxAttempts(cfg.Server.MaxAttempts),
	)

	detector := netstate.NewDetector(httpProber{client: defaultHTTPClient(), baseURL: cfg.Server.BaseURL}, probeInterval)
	detector.Start(ctx)

	locks := filelock.NewManager()
	cp := checkpoint.NewManager(st, nil, nil)
	errs := syncerr.NewRegistry()

	autoSyncInterval, parseErr := time.ParseDuration(cfg.Sync.AutoSyncInterval)
	if parseErr != nil {
		autoSyncInterval = syncengine.DefaultAutoSyncInterval
	}

	engine := syncengine.New(syncengine.Config{
		Store:            st,
		Detector:         detector,
		Locks:            locks,
		Checkpoint:       cp,
		HTTP:             httpClient,
		Errors:           errs,
		Logger:           logger,
		UserID:           cfg.Workspace.UserID,
		AutoSyncInterval: autoSyncInterval,
	})

	gc := oplog.New(st, gcConfigFrom(cfg.Sync), logger, nil)

	return &workspace{Store: st, Detector: detector, Errors: errs, Engine: engine, GC: gc, Perf: perf.New(nil)}, nil
}

// gcConfigFrom translates the duration/size strings a TOML file carries
// into the typed thresholds oplog.GC needs, falling back to the package's
// defaults wherever a value fails to parse or is unset.
func gcConfigFrom(cfg config.SyncConfig) oplog.Config {
	var gcCfg oplog.Config

	if d, err := time.ParseDuration(cfg.GCMaxOpAge); err == nil {
		gcCfg.MaxOpAge = d
	}

	if d, err := time.ParseDuration(cfg.GCMinInterval); err == nil {
		gcCfg.MinGCInterval = d
	}

	gcCfg.MaxOperationsPerFile = cfg.GCMaxOperationsPerFile
	gcCfg.AggressiveThreshold = cfg.AggressiveGCThreshold

	if quota, err := config.ParseSize(cfg.QuotaBytes); err == nil {
		gcCfg.QuotaBytes = quota
	}

	return gcCfg
}
