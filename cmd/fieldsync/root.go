package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/config"
	"github.com/brightpath-energy/fieldsync/internal/db"
	"github.com/brightpath-energy/fieldsync/internal/logging"
)

var (
	flagDataDir   string
	flagRemoteURL string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync agent for field inspection clients",
	Long: `FieldSync keeps a durable local queue of mutations and inspection
photos, and drains it against the backend whenever connectivity allows.

Configuration comes from FIELDSYNC_* environment variables; flags
override individual settings.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ./data, env FIELDSYNC_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagRemoteURL, "remote-url", "", "backend base URL (env FIELDSYNC_REMOTE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (env FIELDSYNC_LOG_LEVEL)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the environment configuration with flag overrides and
// initializes logging.
func loadConfig() *config.Config {
	cfg := config.FromEnv()
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagRemoteURL != "" {
		cfg.RemoteURL = flagRemoteURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logging.Init(os.Stderr, logging.LogLevel(strings.ToUpper(cfg.LogLevel)))
	return cfg
}

// openStore opens the local database, applies pending migrations and wraps
// it in a repository. The caller owns the returned DB.
func openStore(cfg *config.Config) (*db.DB, *db.Repository, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, db.NewRepository(database.DB), nil
}
