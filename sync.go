package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudtext/docsync/internal/oplog"
	"github.com/cloudtext/docsync/internal/syncengine"
)

// windowMultiplier widens the perf stats window beyond one tick interval so
// a handful of recent cycles are summarized together, not just the latest.
const windowMultiplier = 10

func newSyncCmd() *cobra.Command {
	var flagWatch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a push-then-pull sync cycle against the server",
		Long: `Push locally dirty files under per-file lock, then cursor-paginate and
apply server changes. Auto-merge runs first on any conflict; edits that
overlap fall back to the configured conflict_strategy and are recorded for
later review with 'docsync conflicts'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), flagWatch)
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "run continuously on the configured auto_sync_interval until interrupted")

	return cmd
}

func runSync(ctx context.Context, watch bool) error {
	cc := mustCLIContext(ctx)

	ws, err := openWorkspace(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}
	defer ws.Close()

	ws.Engine.SetConflictCallback(makeConflictCallback(cc.Cfg.Sync.ConflictStrategy, cc.Logger))

	if watch {
		return runSyncWatch(ctx, ws, cc)
	}

	result, err := ws.SyncTimed(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if _, err := ws.GC.Run(ctx, false); err != nil {
		cc.Logger.Warn("operation log gc failed", "error", err)
	}

	stats := ws.Perf.GetStats("sync_cycle", 0)
	cc.Logger.Debug("sync cycle timing", "duration", stats.Total, "count", stats.Count)

	return reportSyncResult(result, flagJSON)
}

func runSyncWatch(ctx context.Context, ws *workspace, cc *CLIContext) error {
	pidPath := daemonPIDPath()

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	// 'docsync pause' and 'resume' send SIGHUP; the pause state is reread on
	// every tick, so the signal is ignored rather than ending the process.
	signal.Ignore(syscall.SIGHUP)

	watchCtx := shutdownContext(ctx, cc.Logger)

	interval, parseErr := time.ParseDuration(cc.Cfg.Sync.AutoSyncInterval)
	if parseErr != nil {
		interval = syncengine.DefaultAutoSyncInterval
	}

	cc.Logger.Info("sync: watching", "interval", interval)

	go ws.GC.Schedule(watchCtx, oplog.DefaultMinGCInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-watchCtx.Done():
			return nil
		case <-ticker.C:
			st, err := readPauseState()
			if err != nil {
				cc.Logger.Warn("reading pause state failed", "error", err)
			}

			if st.Paused {
				continue
			}

			if _, err := ws.SyncTimed(watchCtx); err != nil {
				cc.Logger.Warn("auto-sync cycle failed", "error", err)
			}

			stats := ws.Perf.GetStats("sync_cycle", int64(interval/time.Millisecond)*windowMultiplier)
			cc.Logger.Debug("sync cycle timing", "avg", stats.Avg, "p95", stats.P95, "count", stats.Count)
		}
	}
}

// reportSyncResult renders one sync cycle's outcome and returns a non-nil
// error when the cycle surfaced any action errors, so the process exits
// non-zero per the CLI's "errors mean failure" convention.
func reportSyncResult(result syncengine.Result, asJSON bool) error {
	if asJSON {
		if err := printSyncJSON(result); err != nil {
			return err
		}
	} else {
		printSyncText(result)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("sync completed with %d errors", len(result.Errors))
	}

	return nil
}

func printSyncText(result syncengine.Result) {
	if result.Pushed == 0 && result.Pulled == 0 && result.Conflicts == 0 && len(result.Errors) == 0 {
		fmt.Println("Already in sync.")
		return
	}

	fmt.Printf("Sync complete (%s)\n", result.State)
	fmt.Printf("  Pushed:    %d\n", result.Pushed)
	fmt.Printf("  Pulled:    %d\n", result.Pulled)

	if result.Conflicts > 0 {
		fmt.Printf("  Conflicts: %d (see 'docsync conflicts')\n", result.Conflicts)
	}

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:    %d\n", len(result.Errors))
	}
}

type syncJSONOutput struct {
	State     string   `json:"state"`
	Reason    string   `json:"reason,omitempty"`
	Pushed    int      `json:"pushed"`
	Pulled    int      `json:"pulled"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

func printSyncJSON(result syncengine.Result) error {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.Error())
	}

	out := syncJSONOutput{
		State:     string(result.State),
		Reason:    result.Reason,
		Pushed:    result.Pushed,
		Pulled:    result.Pulled,
		Conflicts: result.Conflicts,
		Errors:    errs,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
