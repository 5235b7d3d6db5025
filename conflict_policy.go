package main

import (
	"context"
	"log/slog"

	"github.com/cloudtext/docsync/internal/merge"
	"github.com/cloudtext/docsync/internal/syncengine"
)

// makeConflictCallback installs the configured non-interactive conflict
// policy: attempt a three-way auto-merge first regardless of the configured
// strategy (it is strictly safer whenever it succeeds), and only fall back
// to the configured strategy when the edits overlap. Fallback decisions are
// recorded to the conflict log so `docsync conflicts`/`docsync resolve` can
// revisit them later.
func makeConflictCallback(strategy string, logger *slog.Logger) syncengine.ConflictCallback {
	return func(_ context.Context, c syncengine.Conflict) syncengine.ConflictDecision {
		result := merge.AttemptAutoMerge("", c.LocalVersion.Content, c.ServerVersion.Content)
		if result.Merged {
			content := result.Content

			return syncengine.ConflictDecision{Strategy: merge.StrategyMerge, MergedContent: &content}
		}

		fallback := mergeStrategyFor(strategy)

		if err := appendConflictLog(pendingConflict{
			FileID:          c.FileID,
			LocalContent:    c.LocalVersion.Content,
			ServerContent:   c.ServerVersion.Content,
			AppliedStrategy: string(fallback),
		}); err != nil {
			logger.Warn("recording conflict log entry failed", "file_id", c.FileID, "error", err)
		}

		return syncengine.ConflictDecision{Strategy: fallback}
	}
}

func mergeStrategyFor(configured string) merge.Strategy {
	switch configured {
	case "local":
		return merge.StrategyLocal
	case "server":
		return merge.StrategyServer
	default:
		return merge.StrategyServer
	}
}
