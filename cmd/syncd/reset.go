package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the initial-synchronization flag, forcing a fresh reconciliation on next start",
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOverlay(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if !cfg.DidFinishInitialSynchronization {
		fmt.Println("already in initial-synchronization mode; nothing to reset")
		return nil
	}

	cfg.DidFinishInitialSynchronization = false
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println("initial-synchronization flag cleared; next start will re-reconcile from scratch")
	return nil
}
