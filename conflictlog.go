package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudtext/docsync/internal/config"
)

// pendingConflict is a conflict the auto-merge policy could not resolve
// cleanly (an overlapping edit) and applied a fallback strategy for.
// Recorded so a later `conflicts`/`resolve` pass can revisit the decision.
type pendingConflict struct {
	FileID          string `json:"file_id"`
	LocalContent    string `json:"local_content"`
	ServerContent   string `json:"server_content"`
	AppliedStrategy string `json:"applied_strategy"`
	DetectedAt      string `json:"detected_at"`
}

func conflictLogPath() string {
	return filepath.Join(config.DefaultDataDir(), "conflicts.json")
}

func loadConflictLog() ([]pendingConflict, error) {
	path := conflictLogPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading conflict log: %w", err)
	}

	var entries []pendingConflict
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing conflict log: %w", err)
	}

	return entries, nil
}

func saveConflictLog(entries []pendingConflict) error {
	path := conflictLogPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conflict log: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing conflict log: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("installing conflict log: %w", err)
	}

	return nil
}

func appendConflictLog(c pendingConflict) error {
	entries, err := loadConflictLog()
	if err != nil {
		return err
	}

	c.DetectedAt = time.Now().UTC().Format(time.RFC3339)
	entries = append(entries, c)

	return saveConflictLog(entries)
}

func removeConflictLog(fileID string) error {
	entries, err := loadConflictLog()
	if err != nil {
		return err
	}

	kept := entries[:0]

	for _, e := range entries {
		if e.FileID != fileID {
			kept = append(kept, e)
		}
	}

	return saveConflictLog(kept)
}
