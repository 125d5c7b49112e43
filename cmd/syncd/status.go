package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ubisync/syncd/internal/diagnostics"
	"github.com/ubisync/syncd/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent synchronization activity",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOverlay(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ws, err := workspace.New(cfg.SyncRoot)
	if err != nil {
		return err
	}

	fmt.Printf("sync root:   %s\n", ws.Root)
	fmt.Printf("cloud bucket: s3://%s/%s\n", cfg.CloudBucket, cfg.CloudPrefix)
	fmt.Printf("initial sync done: %v\n", cfg.DidFinishInitialSynchronization)

	taskLog := diagnostics.NewTaskLog(filepath.Join(ws.MetadataDir, "tasklog.db"))
	if err := taskLog.Open(); err != nil {
		fmt.Println("no task history yet")
		return nil
	}
	defer taskLog.Close()

	entries, err := taskLog.Recent(20)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no task history yet")
		return nil
	}

	fmt.Println("\nrecent activity:")
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %-28s %-10s %s", e.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), e.Name, e.Outcome, e.ItemName)
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		fmt.Println(line)
	}
	return nil
}
