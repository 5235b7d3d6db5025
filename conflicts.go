package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// conflictIDPrefixLen is the number of characters to show for a conflict's
// file ID in table output.
const conflictIDPrefixLen = 8

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts the auto-merge policy fell back on",
		Long: `Display conflicts detected during sync where the three-way auto-merge
found overlapping edits and applied the configured conflict_strategy as a
fallback. Use 'docsync resolve' to override a fallback decision.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runConflicts,
	}
}

func runConflicts(_ *cobra.Command, _ []string) error {
	entries, err := loadConflictLog()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	if flagJSON {
		return printConflictsJSON(entries)
	}

	printConflictsTable(entries)

	return nil
}

func printConflictsJSON(entries []pendingConflict) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printConflictsTable(entries []pendingConflict) {
	headers := []string{"FILE ID", "APPLIED", "DETECTED"}
	rows := make([][]string, len(entries))

	for i, e := range entries {
		id := e.FileID
		if len(id) > conflictIDPrefixLen {
			id = id[:conflictIDPrefixLen]
		}

		rows[i] = []string{id, e.AppliedStrategy, e.DetectedAt}
	}

	printTable(os.Stdout, headers, rows)
}
