// Package oplog garbage-collects the operation log: ages out synced
// operations past a retention window and compacts per-file logs that grow
// past a cap, run as a periodic background loop guarded by a minimum-interval
// check and an in-progress flag.
package oplog

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/cloudtext/docsync/internal/store"
)

const (
	// DefaultMinGCInterval is the minimum spacing between unforced runs.
	DefaultMinGCInterval = 5 * time.Minute
	// DefaultMaxOpAge is the normal retention window for synced operations.
	DefaultMaxOpAge = 7 * 24 * time.Hour
	// AggressiveMaxOpAge replaces DefaultMaxOpAge when storage is under
	// pressure.
	AggressiveMaxOpAge = 24 * time.Hour
	// DefaultMaxOperationsPerFile caps the per-file operation log length.
	DefaultMaxOperationsPerFile = 1000
	// AggressiveGCThreshold is the storage-percentage above which a run
	// tightens its retention window.
	AggressiveGCThreshold = 0.8
)

// Store is the subset of the durable store the GC needs.
type Store interface {
	GetAllFiles(ctx context.Context) ([]*store.File, error)
	GetOperations(ctx context.Context, fileID string) ([]*store.Operation, error)
	DeleteOldOperations(ctx context.Context, nowNano, maxAgeNano int64) (int64, error)
	ReplaceOperations(ctx context.Context, fileID string, ops []*store.Operation) error
	IsStorageNearlyFull(ctx context.Context, quotaBytes int64) (bool, error)
	GetStorageEstimate(ctx context.Context, quotaBytes int64) (*store.StorageEstimate, error)
}

// Config parameterizes a GC instance; zero values fall back to the
// package's Default* constants.
type Config struct {
	MinGCInterval        time.Duration
	MaxOpAge             time.Duration
	MaxOperationsPerFile int
	AggressiveThreshold  float64
	QuotaBytes           int64
}

func (c Config) withDefaults() Config {
	if c.MinGCInterval == 0 {
		c.MinGCInterval = DefaultMinGCInterval
	}

	if c.MaxOpAge == 0 {
		c.MaxOpAge = DefaultMaxOpAge
	}

	if c.MaxOperationsPerFile == 0 {
		c.MaxOperationsPerFile = DefaultMaxOperationsPerFile
	}

	if c.AggressiveThreshold == 0 {
		c.AggressiveThreshold = AggressiveGCThreshold
	}

	return c
}

// Result summarizes one GC run.
type Result struct {
	AgedOut        int64
	Compacted      int64
	Aggressive     bool
	SkippedTooSoon bool
	AlreadyRunning bool
}

// GC bounds the operation log against a store.
type GC struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      stdsync.Mutex
	running bool
	lastRun time.Time
}

// New creates a GC. now is injectable for tests; pass nil for time.Now.
func New(s Store, cfg Config, logger *slog.Logger, now func() time.Time) *GC {
	if logger == nil {
		logger = slog.Default()
	}

	if now == nil {
		now = time.Now
	}

	return &GC{store: s, cfg: cfg.withDefaults(), logger: logger, now: now}
}

// Run executes one GC pass. Unless force is true, it refuses if the last
// run was less than MinGCInterval ago, or if a run is already in progress.
func (g *GC) Run(ctx context.Context, force bool) (Result, error) {
	g.mu.Lock()

	if g.running {
		g.mu.Unlock()
		return Result{AlreadyRunning: true}, nil
	}

	if !force && !g.lastRun.IsZero() && g.now().Sub(g.lastRun) < g.cfg.MinGCInterval {
		g.mu.Unlock()
		return Result{SkippedTooSoon: true}, nil
	}

	g.running = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.lastRun = g.now()
		g.mu.Unlock()
	}()

	return g.run(ctx)
}

func (g *GC) run(ctx context.Context) (Result, error) {
	maxAge := g.cfg.MaxOpAge
	aggressive := false

	if g.cfg.QuotaBytes > 0 {
		full, err := g.store.IsStorageNearlyFull(ctx, g.cfg.QuotaBytes)
		if err != nil {
			return Result{}, fmt.Errorf("oplog: check storage pressure: %w", err)
		}

		if full {
			maxAge = AggressiveMaxOpAge
			aggressive = true
		}
	}

	now := g.now().UnixNano()

	agedOut, err := g.store.DeleteOldOperations(ctx, now, int64(maxAge))
	if err != nil {
		return Result{}, fmt.Errorf("oplog: age out operations: %w", err)
	}

	compacted, err := g.compactOversizedLogs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("oplog: compact logs: %w", err)
	}

	g.logger.Info("operation log gc complete",
		slog.Int64("aged_out", agedOut),
		slog.Int64("compacted", compacted),
		slog.Bool("aggressive", aggressive),
	)

	return Result{AgedOut: agedOut, Compacted: compacted, Aggressive: aggressive}, nil
}

// compactOversizedLogs keeps all unsynced operations plus the newest synced
// operations up to half the per-file cap, for every file whose log exceeds
// the cap.
func (g *GC) compactOversizedLogs(ctx context.Context) (int64, error) {
	files, err := g.store.GetAllFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	var compacted int64

	for _, f := range files {
		ops, err := g.store.GetOperations(ctx, f.ID)
		if err != nil {
			return compacted, fmt.Errorf("list operations for %s: %w", f.ID, err)
		}

		if len(ops) <= g.cfg.MaxOperationsPerFile {
			continue
		}

		kept := compactOne(ops, g.cfg.MaxOperationsPerFile)
		if err := g.store.ReplaceOperations(ctx, f.ID, kept); err != nil {
			return compacted, fmt.Errorf("replace operations for %s: %w", f.ID, err)
		}

		compacted += int64(len(ops) - len(kept))
	}

	return compacted, nil
}

// compactOne keeps every unsynced operation plus the newest synced
// operations up to half of cap, sorted oldest-first as the store returns
// them.
func compactOne(ops []*store.Operation, maxOps int) []*store.Operation {
	var unsynced, synced []*store.Operation

	for _, op := range ops {
		if op.Synced {
			synced = append(synced, op)
		} else {
			unsynced = append(unsynced, op)
		}
	}

	keepSynced := maxOps / 2
	if keepSynced > len(synced) {
		keepSynced = len(synced)
	}

	// synced is oldest-first; keep the newest keepSynced entries.
	trimmedSynced := synced[len(synced)-keepSynced:]

	out := make([]*store.Operation, 0, len(unsynced)+len(trimmedSynced))
	out = append(out, unsynced...)
	out = append(out, trimmedSynced...)

	return out
}

// Schedule runs Run(ctx, false) every interval until ctx is canceled.
func (g *GC) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Run(ctx, false); err != nil {
				g.logger.Error("scheduled gc run failed", slog.String("error", err.Error()))
			}
		}
	}
}
