package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume auto-sync",
		Long: `Clear a pause set by 'docsync pause'.

If a 'docsync sync --watch' daemon is running, it receives a SIGHUP to pick
up the change.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runResume,
	}
}

func runResume(_ *cobra.Command, _ []string) error {
	st, err := readPauseState()
	if err != nil {
		return err
	}

	if !st.Paused {
		statusf(flagQuiet, "Auto-sync is not paused\n")
		return nil
	}

	if err := os.Remove(pauseStatePath()); err != nil && !os.IsNotExist(err) {
		return err
	}

	statusf(flagQuiet, "Auto-sync resumed\n")
	notifyDaemon(flagQuiet)

	return nil
}
