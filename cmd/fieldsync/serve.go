package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/connectivity"
	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/photo"
	"github.com/brightpath-energy/fieldsync/internal/remote"
	"github.com/brightpath-energy/fieldsync/internal/server"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
	"github.com/brightpath-energy/fieldsync/internal/sync/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync agent and local API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log := logging.Get()

	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mutation apply path: every resource/type pair goes to the backend
	// REST API.
	registry := syncpkg.NewRegistry()
	client := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteURL,
		Token:   func() string { return cfg.RemoteToken },
	})
	remote.RegisterAll(registry, client)

	monitor := connectivity.NewMonitor(
		connectivity.NewHTTPProber(cfg.RemoteURL+"/api/health", 5*time.Second),
		&connectivity.Config{PollInterval: cfg.ConnectivityProbe, AssumeOnline: true},
	)

	hub := server.NewWSHub()

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
		if err := store.TestConnection(ctx); err != nil {
			// Not fatal: photos stay queued and retry on later passes.
			log.Warn("Object storage unreachable at startup",
				map[string]interface{}{"endpoint": cfg.S3Endpoint, "error": err.Error()})
		}
		engineCfg.Photos = photo.NewUploader(store)
	} else {
		log.Warn("Object storage not configured, photo uploads disabled", nil)
	}

	engineCfg.OnDeadLetter = hub.BroadcastMutationDeadLettered

	engine := syncpkg.New(engineCfg)
	engine.Subscribe(hub.BroadcastSyncState)

	monitor.OnOnline(func(ctx context.Context) {
		hub.BroadcastConnectivity(true)
		go engine.TriggerSync(ctx)
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	sched := scheduler.New(engine, &scheduler.Config{SyncInterval: cfg.SyncInterval})
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.DropDir != "" {
		intake := photo.NewIntake(cfg.DropDir, repo)
		intake.OnRegistered = func(ctx context.Context, p *models.Photo) {
			hub.Broadcast(server.EventPhotoRegistered, map[string]interface{}{
				"photo_id":      p.ID.String(),
				"inspection_id": p.InspectionID.String(),
			})
			go engine.TriggerSync(ctx)
		}
		if err := intake.Start(ctx); err != nil {
			return err
		}
		defer intake.Stop()
	}

	srv := server.New(server.Config{
		Addr:         cfg.ListenAddr,
		Store:        repo,
		Engine:       engine,
		Connectivity: monitor,
		Hub:          hub,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Drain whatever queued up while the agent was down.
	go engine.TriggerSync(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
