// Package merge implements conflict detection and three-way line merge for
// files that diverged between a local edit and the server's copy. No base
// version is stored (this is not a CRDT): auto-merge treats an empty base,
// so every line looks like an insert on both sides, which makes the
// algorithm conservative by construction — it declares a conflict whenever
// both sides touch the same line index with different content. The
// resolution-strategy dispatch (a small closed set of named strategies)
// follows the package's own conventions; the line-merge algorithm itself
// is hand-rolled rather than pulled from a general-purpose diff library,
// since nothing in the dependency set implements Myers diff.
package merge

import (
	"fmt"
	"strings"
)

// Strategy is how an open conflict is resolved.
type Strategy string

// The three resolution strategies the sync manager's conflict callback may
// choose.
const (
	StrategyLocal  Strategy = "local"
	StrategyServer Strategy = "server"
	StrategyMerge  Strategy = "merge"
)

// Side identifies whose content a diff line came from.
type Side string

// DiffOp tags one line of a visualizable diff.
type DiffOp string

// The three diff line kinds returned for UI rendering when auto-merge fails.
const (
	DiffEqual  DiffOp = "equal"
	DiffInsert DiffOp = "insert"
	DiffDelete DiffOp = "delete"
)

// DiffLine is one rendered line of a failed-merge visualization.
type DiffLine struct {
	Op      DiffOp
	Content string
}

// Version is one side's {content, etag, lastModified, version} for a
// conflict record.
type Version struct {
	Content      string
	ETag         string
	LastModified int64
	Version      int64
}

// DetectConflict reports true iff the local copy is dirty and its ETag
// differs from the server's.
func DetectConflict(localDirty bool, localETag, serverETag string) bool {
	return localDirty && localETag != serverETag
}

// AutoMergeResult is the outcome of AttemptAutoMerge.
type AutoMergeResult struct {
	Merged  bool
	Content string     // valid when Merged
	Diff    []DiffLine // valid when !Merged, for UI rendering
}

// changeMap maps a base line index to the replacement content observed on
// one side. Lines past the base's length are treated as appended inserts
// keyed by their target index in the side's own content.
type changeMap map[int]string

// AttemptAutoMerge splits base, local, and server on newlines, computes a
// line-indexed change map from base to each side, and merges both change
// sets if and only if they never touch the same line index with different
// content (an "overlap"). On overlap it returns a diff for UI rendering
// instead of guessing.
func AttemptAutoMerge(base, local, server string) AutoMergeResult {
	baseLines := splitLines(base)
	localLines := splitLines(local)
	serverLines := splitLines(server)

	localChanges := diffChanges(baseLines, localLines)
	serverChanges := diffChanges(baseLines, serverLines)

	if overlaps(localChanges, serverChanges) {
		return AutoMergeResult{
			Merged: false,
			Diff:   buildDiff(baseLines, localLines, serverLines, localChanges, serverChanges),
		}
	}

	merged := applyChanges(baseLines, localChanges, serverChanges)

	return AutoMergeResult{Merged: true, Content: strings.Join(merged, "\n")}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

// diffChanges computes the line-indexed change map from base to modified:
// for every index present in modified that differs from base (or has no
// base counterpart), record modified's line at that index.
func diffChanges(base, modified []string) changeMap {
	cm := make(changeMap)

	for i, line := range modified {
		if i >= len(base) || base[i] != line {
			cm[i] = line
		}
	}

	// Indices present in base but beyond modified's length were deleted;
	// represent a deletion with a nil-marker sentinel so overlap detection
	// and application both see it.
	for i := len(modified); i < len(base); i++ {
		cm[i] = deletionMarker
	}

	return cm
}

// deletionMarker is an out-of-band sentinel value distinguishing "line
// deleted" from "line replaced with an empty string" in a changeMap.
const deletionMarker = "\x00__deleted__"

// overlaps reports whether two change maps touch the same line index with
// genuinely different content.
func overlaps(a, b changeMap) bool {
	for idx, av := range a {
		if bv, ok := b[idx]; ok && av != bv {
			return true
		}
	}

	return false
}

// applyChanges applies both change sets to base in descending line order so
// earlier indices remain valid as later ones are removed.
func applyChanges(base []string, a, b changeMap) []string {
	merged := make([]string, len(base))
	copy(merged, base)

	combined := make(changeMap, len(a)+len(b))
	for idx, v := range a {
		combined[idx] = v
	}

	for idx, v := range b {
		combined[idx] = v
	}

	var inBounds, appended []int

	for idx := range combined {
		if idx < len(base) {
			inBounds = append(inBounds, idx)
		} else {
			appended = append(appended, idx)
		}
	}

	sortDescending(inBounds)

	for _, idx := range inBounds {
		v := combined[idx]

		if v == deletionMarker {
			merged = append(merged[:idx], merged[idx+1:]...)
			continue
		}

		merged[idx] = v
	}

	sortAscending(appended)

	for _, idx := range appended {
		if v := combined[idx]; v != deletionMarker {
			merged = append(merged, v)
		}
	}

	return merged
}

func sortAscending(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func sortDescending(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] < xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// buildDiff renders a best-effort equal/insert/delete sequence over the
// union of base, local, and server lines for UI display when auto-merge
// fails. This is not a minimal diff (no Myers algorithm) — it is a
// line-indexed rendering sufficient to show the user where the two sides
// disagree, consistent with the conservative, non-CRDT design.
func buildDiff(base, local, server []string, localChanges, serverChanges changeMap) []DiffLine {
	max := len(base)
	if len(local) > max {
		max = len(local)
	}

	if len(server) > max {
		max = len(server)
	}

	diff := make([]DiffLine, 0, max)

	for i := 0; i < max; i++ {
		_, localChanged := localChanges[i]
		_, serverChanged := serverChanges[i]

		switch {
		case localChanged && serverChanged:
			diff = append(diff, DiffLine{Op: DiffDelete, Content: lineAt(base, i)})
			diff = append(diff, DiffLine{Op: DiffInsert, Content: lineAt(local, i)})
			diff = append(diff, DiffLine{Op: DiffInsert, Content: lineAt(server, i)})
		case localChanged:
			diff = append(diff, DiffLine{Op: DiffInsert, Content: lineAt(local, i)})
		case serverChanged:
			diff = append(diff, DiffLine{Op: DiffInsert, Content: lineAt(server, i)})
		default:
			diff = append(diff, DiffLine{Op: DiffEqual, Content: lineAt(base, i)})
		}
	}

	return diff
}

func lineAt(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}

	return lines[i]
}

// ResolveConflict applies strategy to local/server versions. Merge requires
// mergedContent to be non-nil. An unknown strategy is a programmer error —
// it panics rather than silently falling back.
func ResolveConflict(local, server Version, strategy Strategy, mergedContent *string) (Version, error) {
	nextVersion := local.Version
	if server.Version > nextVersion {
		nextVersion = server.Version
	}

	nextVersion++

	switch strategy {
	case StrategyLocal:
		return Version{Content: local.Content, ETag: local.ETag, LastModified: local.LastModified, Version: nextVersion}, nil
	case StrategyServer:
		return server, nil
	case StrategyMerge:
		if mergedContent == nil {
			return Version{}, fmt.Errorf("merge: resolve conflict: strategy %q requires mergedContent", strategy)
		}

		return Version{Content: *mergedContent, Version: nextVersion}, nil
	default:
		panic(fmt.Sprintf("merge: unknown resolution strategy %q", strategy))
	}
}
