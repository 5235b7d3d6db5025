package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace sync status",
		Long: `Report connectivity, the count of locally dirty files awaiting push,
the last successful sync time, pause state, and any conflicts pending
review.`,
		RunE: runStatus,
	}
}

type statusReport struct {
	Connectivity   string `json:"connectivity"`
	LastSyncedAt   string `json:"last_synced_at,omitempty"`
	DirtyFiles     int    `json:"dirty_files"`
	PendingOps     int    `json:"pending_operations"`
	Paused         bool   `json:"paused"`
	PausedUntil    string `json:"paused_until,omitempty"`
	ConflictsCount int    `json:"conflicts_pending"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	ctx := cmd.Context()

	ws, err := openWorkspace(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}
	defer ws.Close()

	report, err := buildStatusReport(ctx, ws, cc.Cfg.Workspace.UserID)
	if err != nil {
		return err
	}

	if flagJSON {
		return printStatusJSON(report)
	}

	printStatusText(report)

	return nil
}

func buildStatusReport(ctx context.Context, ws *workspace, userID string) (statusReport, error) {
	md, err := ws.Store.GetMetadata(ctx, userID)
	if err != nil {
		return statusReport{}, fmt.Errorf("reading sync metadata: %w", err)
	}

	dirty, err := ws.Store.GetDirtyFiles(ctx)
	if err != nil {
		return statusReport{}, fmt.Errorf("counting dirty files: %w", err)
	}

	pause, err := readPauseState()
	if err != nil {
		return statusReport{}, err
	}

	conflicts, err := loadConflictLog()
	if err != nil {
		return statusReport{}, err
	}

	var lastSynced string
	if md.LastSyncedAt > 0 {
		lastSynced = time.Unix(0, md.LastSyncedAt).UTC().Format(time.RFC3339)
	}

	return statusReport{
		Connectivity:   ws.Detector.GetState().String(),
		LastSyncedAt:   lastSynced,
		DirtyFiles:     len(dirty),
		PendingOps:     int(md.PendingOperationsCount),
		Paused:         pause.Paused,
		PausedUntil:    pause.PausedUntil,
		ConflictsCount: len(conflicts),
	}, nil
}

func printStatusText(r statusReport) {
	fmt.Printf("Connectivity:  %s\n", r.Connectivity)

	if r.LastSyncedAt != "" {
		fmt.Printf("Last synced:   %s\n", r.LastSyncedAt)
	} else {
		fmt.Printf("Last synced:   never\n")
	}

	fmt.Printf("Dirty files:   %d\n", r.DirtyFiles)
	fmt.Printf("Pending ops:   %d\n", r.PendingOps)

	if r.Paused {
		if r.PausedUntil != "" {
			fmt.Printf("Auto-sync:     paused until %s\n", r.PausedUntil)
		} else {
			fmt.Printf("Auto-sync:     paused\n")
		}
	} else {
		fmt.Printf("Auto-sync:     active\n")
	}

	if r.ConflictsCount > 0 {
		fmt.Printf("Conflicts:     %d pending (see 'docsync conflicts')\n", r.ConflictsCount)
	} else {
		fmt.Printf("Conflicts:     none\n")
	}
}

func printStatusJSON(r statusReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}
