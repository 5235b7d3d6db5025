package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudtext/docsync/internal/config"
)

// pauseState is the sidecar file recording whether auto-sync is paused and,
// optionally, when it should automatically resume.
type pauseState struct {
	Paused      bool   `json:"paused"`
	PausedUntil string `json:"paused_until,omitempty"`
}

func pauseStatePath() string {
	return filepath.Join(config.DefaultDataDir(), "paused.json")
}

func readPauseState() (pauseState, error) {
	data, err := os.ReadFile(pauseStatePath())
	if os.IsNotExist(err) {
		return pauseState{}, nil
	}

	if err != nil {
		return pauseState{}, fmt.Errorf("reading pause state: %w", err)
	}

	var st pauseState
	if err := json.Unmarshal(data, &st); err != nil {
		return pauseState{}, fmt.Errorf("parsing pause state: %w", err)
	}

	if st.Paused && st.PausedUntil != "" {
		if until, parseErr := time.Parse(time.RFC3339, st.PausedUntil); parseErr == nil && time.Now().After(until) {
			return pauseState{}, nil
		}
	}

	return st, nil
}

func writePauseState(st pauseState) error {
	path := pauseStatePath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pause state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing pause state: %w", err)
	}

	return os.Rename(tmp, path)
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [duration]",
		Short: "Pause auto-sync",
		Long: `Pause the background sync timer. An optional duration argument (e.g.,
"2h", "30m", "1d") schedules automatic resume after the interval; without
one, sync stays paused until 'docsync resume' is run.

If a 'docsync sync --watch' daemon is running, it receives a SIGHUP to pick
up the change.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runPause,
		Args:        cobra.MaximumNArgs(1),
	}
}

func runPause(_ *cobra.Command, args []string) error {
	st := pauseState{Paused: true}

	if len(args) > 0 {
		duration, err := parseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}

		st.PausedUntil = time.Now().Add(duration).Format(time.RFC3339)
	}

	if err := writePauseState(st); err != nil {
		return err
	}

	if st.PausedUntil != "" {
		statusf(flagQuiet, "Auto-sync paused until %s\n", st.PausedUntil)
	} else {
		statusf(flagQuiet, "Auto-sync paused\n")
	}

	notifyDaemon(flagQuiet)

	return nil
}

// notifyDaemon attempts to send SIGHUP to a running sync --watch daemon.
// Non-fatal: if no daemon is running, prints a note instead.
func notifyDaemon(quiet bool) {
	if err := sendSIGHUP(daemonPIDPath()); err != nil {
		statusf(quiet, "Note: %v — changes take effect on next daemon start\n", err)
	} else {
		statusf(quiet, "Notified running daemon to reload\n")
	}
}

// hoursPerDay is used to convert day durations to hours.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// parseDuration parses a human-friendly duration string. Supports Go duration
// syntax (e.g., "2h30m") plus a "d" suffix for days (converted to 24h).
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if !durationPattern.MatchString(s) || s == "" {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	re := regexp.MustCompile(`(\d+)([dhms])`)
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}
