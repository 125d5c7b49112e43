package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ubisync/syncd/internal/applife"
	"github.com/ubisync/syncd/internal/cloudstore"
	"github.com/ubisync/syncd/internal/config"
	"github.com/ubisync/syncd/internal/diagnostics"
	"github.com/ubisync/syncd/internal/reconcile"
	"github.com/ubisync/syncd/internal/sync"
	"github.com/ubisync/syncd/internal/workspace"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the synchronization daemon",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigOverlay(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ws, err := workspace.New(cfg.SyncRoot)
	if err != nil {
		return err
	}
	if err := ws.Setup(); err != nil {
		return err
	}
	defer ws.Unlock()

	ctx := cmd.Context()

	store, err := cloudstore.New(ctx, cfg,
		os.Getenv("UBISYNC_AWS_ACCESS_KEY_ID"),
		os.Getenv("UBISYNC_AWS_SECRET_ACCESS_KEY"),
	)
	if err != nil {
		return fmt.Errorf("build cloud store: %w", err)
	}

	taskLog := diagnostics.NewTaskLog(filepath.Join(ws.MetadataDir, "tasklog.db"))
	if err := taskLog.Open(); err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer taskLog.Close()

	ignore := reconcile.NewIgnoreList(ws.Root)
	ignore.Load()
	accepted := reconcile.NewAcceptedTypes(cfg.AcceptedTypePatterns)

	ignoreReload, err := config.NewReloader(func(string) {
		slog.Info("reloading ignore rules")
		ignore.Load()
	}, filepath.Join(ws.Root, ".syncignore"))
	if err != nil {
		return fmt.Errorf("watch ignore file: %w", err)
	}
	defer ignoreReload.Stop()
	go func() {
		if err := ignoreReload.Run(ctx); err != nil {
			slog.Warn("ignore file reloader stopped", "error", err)
		}
	}()

	lifecycle := applife.NewSignalLifecycle(ctx)
	defer lifecycle.Stop()

	onReload := func() {
		slog.Debug("sync batch changed local state; reload hook fired")
	}

	orchestrator := sync.New(cfg, ws, store, taskLog, ignore, accepted, lifecycle, onReload)

	slog.Info("starting syncd", "config", cfg)
	if err := orchestrator.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
