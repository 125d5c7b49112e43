// Package config defines the daemon's persisted configuration and the
// single durable flag ("didFinishInitialSynchronization") that seeds the
// Reconciler's initial-sync mode across restarts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ubisync/syncd/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".ubisync", "config.json")
	DefaultSyncRoot    = filepath.Join(home, "UbiSync")
	DefaultLogFilePath = filepath.Join(home, ".ubisync", "logs", "ubisync.log")
)

// ErrMissingBucket is returned by Validate when no cloud bucket is
// configured.
var ErrMissingBucket = errors.New("cloud bucket must be set")

// Config is the daemon's full persisted + runtime configuration, loaded
// through a JSON file overlaid with CLI flags and environment variables
// (see cmd/syncd).
type Config struct {
	// SyncRoot is the local directory watched and written into.
	SyncRoot string `json:"sync_root" mapstructure:"sync_root"`

	// CloudBucket/CloudPrefix/CloudRegion/CloudEndpoint address the
	// S3-compatible "ubiquitous container" backing internal/cloudstore.
	CloudBucket   string `json:"cloud_bucket" mapstructure:"cloud_bucket"`
	CloudPrefix   string `json:"cloud_prefix" mapstructure:"cloud_prefix"`
	CloudRegion   string `json:"cloud_region" mapstructure:"cloud_region"`
	CloudEndpoint string `json:"cloud_endpoint,omitempty" mapstructure:"cloud_endpoint,omitempty"`

	// AcceptedTypePatterns are doublestar globs; see reconcile.AcceptedTypes.
	AcceptedTypePatterns []string `json:"accepted_type_patterns,omitempty" mapstructure:"accepted_type_patterns"`

	// DidFinishInitialSynchronization is the durable flag the Reconciler's
	// isInitialSync is seeded from. Set by the orchestrator on receipt of
	// DidFinishInitialSync; cleared by `syncd reset`.
	DidFinishInitialSynchronization bool `json:"did_finish_initial_synchronization" mapstructure:"did_finish_initial_synchronization"`

	// Path is where this Config was loaded from / will be saved to. Never
	// itself persisted.
	Path string `json:"-" mapstructure:"config_path"`
}

// Save writes the config back to Path as JSON, creating parent directories
// as needed.
func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o644)
}

// Validate fills in defaults and rejects an unusable configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}

	var err error
	c.SyncRoot, err = utils.ResolvePath(c.SyncRoot)
	if err != nil {
		return fmt.Errorf("sync root: %w", err)
	}

	if c.CloudBucket == "" {
		return ErrMissingBucket
	}

	if len(c.AcceptedTypePatterns) == 0 {
		c.AcceptedTypePatterns = []string{"**/*.yaml", "**/*.yml", "**/*.toml", "**/*.md", "**/*.MD"}
	}

	return nil
}

// LogValue implements slog.LogValuer so the config can be logged as a
// structured group without leaking into plain %v formatting.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sync_root", c.SyncRoot),
		slog.String("cloud_bucket", c.CloudBucket),
		slog.String("cloud_prefix", c.CloudPrefix),
		slog.String("cloud_region", c.CloudRegion),
		slog.Bool("did_finish_initial_synchronization", c.DidFinishInitialSynchronization),
		slog.String("path", c.Path),
	)
}

// LoadFromFile reads and parses a Config from disk.
func LoadFromFile(path string) (*Config, error) {
	path, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(path, f)
}

// LoadFromReader parses a Config from an already-open reader, stamping Path
// for subsequent Save calls.
func LoadFromReader(path string, r io.ReadCloser) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	return &cfg, nil
}

// MarkInitialSyncFinished persists DidFinishInitialSynchronization=true.
// Grounded on SPEC_FULL.md §6's config-persistence contract: called once,
// by the orchestrator, on receipt of reconcile.DidFinishInitialSync.
func (c *Config) MarkInitialSyncFinished() error {
	if c.DidFinishInitialSynchronization {
		return nil
	}
	c.DidFinishInitialSynchronization = true
	return c.Save()
}
