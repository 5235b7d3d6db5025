package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudtext/docsync/internal/merge"
)

// errConflictsOutstanding marks main's exit-status path when conflicts remain
// unresolved: main exits with status 1 without printing an error message.
var errConflictsOutstanding = errors.New("resolve: conflicts remain unresolved")

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [file-id]",
		Short: "Override an auto-merge fallback decision",
		Long: `Re-resolve a conflict recorded in the conflict log with an explicit
strategy, then push the result immediately.

Strategies:
  --local   keep the local version (bumps version past the server's)
  --server  adopt the server version, discarding local edits

Use --all to re-resolve every recorded conflict with the chosen strategy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().Bool("local", false, "keep the local version")
	cmd.Flags().Bool("server", false, "adopt the server version")
	cmd.Flags().Bool("all", false, "resolve every recorded conflict")

	cmd.MarkFlagsMutuallyExclusive("local", "server")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	strategy, err := resolveFlagStrategy(cmd)
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")

	if !all && len(args) == 0 {
		return fmt.Errorf("specify a file ID, or use --all to resolve every recorded conflict")
	}

	if all && len(args) > 0 {
		return fmt.Errorf("--all and a specific file ID are mutually exclusive")
	}

	entries, err := loadConflictLog()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	ws, err := openWorkspace(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}
	defer ws.Close()

	var targets []pendingConflict

	if all {
		targets = entries
	} else {
		found, err := findPendingConflict(entries, args[0])
		if err != nil {
			return err
		}

		targets = []pendingConflict{found}
	}

	failed := 0

	for _, c := range targets {
		if err := resolveOne(cmd.Context(), ws, c, strategy); err != nil {
			cc.Logger.Warn("resolve failed", "file_id", c.FileID, "error", err)
			failed++

			continue
		}

		if err := removeConflictLog(c.FileID); err != nil {
			return err
		}

		statusf(flagQuiet, "Resolved %s as %s\n", c.FileID, strategy)
	}

	if failed > 0 {
		return errConflictsOutstanding
	}

	return nil
}

func resolveFlagStrategy(cmd *cobra.Command) (merge.Strategy, error) {
	local, _ := cmd.Flags().GetBool("local")
	server, _ := cmd.Flags().GetBool("server")

	switch {
	case local:
		return merge.StrategyLocal, nil
	case server:
		return merge.StrategyServer, nil
	default:
		return "", fmt.Errorf("specify a resolution strategy: --local or --server")
	}
}

func findPendingConflict(entries []pendingConflict, fileID string) (pendingConflict, error) {
	for _, e := range entries {
		if e.FileID == fileID || (len(e.FileID) >= len(fileID) && e.FileID[:len(fileID)] == fileID) {
			return e, nil
		}
	}

	return pendingConflict{}, fmt.Errorf("no recorded conflict for %q", fileID)
}

func resolveOne(ctx context.Context, ws *workspace, c pendingConflict, strategy merge.Strategy) error {
	local, err := ws.Store.GetFile(ctx, c.FileID)
	if err != nil {
		return fmt.Errorf("loading %s: %w", c.FileID, err)
	}

	localVersion := merge.Version{Content: local.Content, ETag: local.ETag, LastModified: local.LastModified, Version: local.Version}
	serverVersion := merge.Version{Content: c.ServerContent, Version: local.Version}

	resolved, err := merge.ResolveConflict(localVersion, serverVersion, strategy, nil)
	if err != nil {
		return err
	}

	local.Content = resolved.Content
	local.Version = resolved.Version
	local.IsDirty = true

	if err := ws.Store.SaveFile(ctx, local); err != nil {
		return fmt.Errorf("saving %s: %w", c.FileID, err)
	}

	return ws.Engine.SyncFile(ctx, c.FileID)
}
