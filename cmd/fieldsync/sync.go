package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/connectivity"
	"github.com/brightpath-energy/fieldsync/internal/photo"
	"github.com/brightpath-energy/fieldsync/internal/remote"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync pass and exit",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	prober := connectivity.NewHTTPProber(cfg.RemoteURL+"/api/health", 5*time.Second)
	monitor := connectivity.NewMonitor(prober, &connectivity.Config{AssumeOnline: false})
	monitor.SetOnline(prober.Probe(ctx))
	if !monitor.IsOnline() {
		return fmt.Errorf("backend %s is unreachable", cfg.RemoteURL)
	}

	registry := syncpkg.NewRegistry()
	client := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteURL,
		Token:   func() string { return cfg.RemoteToken },
	})
	remote.RegisterAll(registry, client)

	engineCfg := syncpkg.Config{
		Store:        repo,
		Registry:     registry,
		Connectivity: monitor,
	}
	if cfg.PhotoUploadEnabled() {
		store := syncpkg.NewS3Client(&syncpkg.S3Config{
			Endpoint:       cfg.S3Endpoint,
			BucketName:     cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		engineCfg.Photos = photo.NewUploader(store)
	}
	engine := syncpkg.New(engineCfg)

	engine.TriggerSync(ctx)
	stats := engine.Stats()

	remaining, err := repo.CountPendingMutations()
	if err != nil {
		return err
	}
	remainingPhotos, err := repo.CountUnsyncedPhotos()
	if err != nil {
		return err
	}

	fmt.Printf("applied:        %d\n", stats.Applied)
	fmt.Printf("retried:        %d\n", stats.Retried)
	fmt.Printf("dead-lettered:  %d\n", stats.DeadLettered)
	fmt.Printf("photos sent:    %d\n", stats.PhotosUploaded)
	fmt.Printf("still pending:  %d mutations, %d photos\n", remaining, remainingPhotos)

	if stats.DeadLettered > 0 {
		fmt.Println("\nsome mutations were dead-lettered; inspect them with 'fieldsync dlq list'")
	}
	return nil
}
