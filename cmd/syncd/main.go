package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubisync/syncd/internal/config"
	"github.com/ubisync/syncd/internal/logging"
	"github.com/ubisync/syncd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "syncd",
	Short:   "Two-way file synchronization daemon",
	Version: version.Detailed(),
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file path")

	startCmd.Flags().StringP("sync-root", "r", config.DefaultSyncRoot, "local directory to synchronize")
	startCmd.Flags().String("cloud-bucket", "", "S3 bucket backing the cloud container")
	startCmd.Flags().String("cloud-prefix", "", "key prefix within the bucket")
	startCmd.Flags().String("cloud-region", "us-east-1", "bucket region")
	startCmd.Flags().String("cloud-endpoint", "", "custom S3-compatible endpoint (blank for AWS)")

	rootCmd.AddCommand(startCmd, statusCmd, resetCmd)
}

func main() {
	logger, closeLogging, err := logging.Setup(config.DefaultLogFilePath, slog.LevelDebug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	defer closeLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfigOverlay binds cmd's flags into viper, reads the config file if
// present (a missing file is not an error: start still runs off flags/env
// and creates the file on first Save), and builds a *config.Config.
func loadConfigOverlay(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	viper.SetConfigFile(configPath)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %q: %w", configPath, err)
		}
	}

	for _, name := range []string{"sync-root", "cloud-bucket", "cloud-prefix", "cloud-region", "cloud-endpoint"} {
		key := strings.ReplaceAll(name, "-", "_")
		if flag := cmd.Flags().Lookup(name); flag != nil {
			viper.BindPFlag(key, flag)
		}
	}
	viper.SetEnvPrefix("UBISYNC")
	viper.AutomaticEnv()

	cfg := &config.Config{
		Path:          configPath,
		SyncRoot:      viper.GetString("sync_root"),
		CloudBucket:   viper.GetString("cloud_bucket"),
		CloudPrefix:   viper.GetString("cloud_prefix"),
		CloudRegion:   viper.GetString("cloud_region"),
		CloudEndpoint: viper.GetString("cloud_endpoint"),
	}

	if existing, err := config.LoadFromFile(configPath); err == nil {
		cfg.DidFinishInitialSynchronization = existing.DidFinishInitialSynchronization
		if len(cfg.AcceptedTypePatterns) == 0 {
			cfg.AcceptedTypePatterns = existing.AcceptedTypePatterns
		}
	}

	return cfg, nil
}
