package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/photo"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Inspect and manage the offline photo backlog",
}

var photosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List photos pending upload",
	RunE:  runPhotosList,
}

var photosPurgeCmd = &cobra.Command{
	Use:   "purge <photo-id>",
	Short: "Delete a photo locally and from object storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhotosPurge,
}

func init() {
	photosCmd.AddCommand(photosListCmd, photosPurgeCmd)
	rootCmd.AddCommand(photosCmd)
}

func runPhotosList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	photos, err := repo.ListUnsyncedPhotos()
	if err != nil {
		return err
	}
	if len(photos) == 0 {
		fmt.Println("no photos pending upload")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINSPECTION\tSIZE\tAGE\tCAPTION")
	for _, p := range photos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			uuid.Short(p.ID.String()),
			uuid.Short(p.InspectionID.String()),
			humanize.Bytes(uint64(len(p.Data))),
			humanize.Time(p.CreatedAtTime()),
			truncate(p.Caption, 32),
		)
	}
	w.Flush()

	fmt.Printf("\n%d photos pending upload\n", len(photos))
	return nil
}

func runPhotosPurge(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := uuid.Validate(id); err != nil {
		return fmt.Errorf("invalid photo id %q", id)
	}

	cfg := loadConfig()
	database, repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	p, err := repo.GetPhoto(models.UUID(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("photo %s not found", uuid.Short(id))
		}
		return err
	}

	// An already-uploaded photo has remote objects to clean up too.
	if p.Synced {
		if !cfg.PhotoUploadEnabled() {
			return fmt.Errorf("photo %s is already uploaded but object storage is not configured; refusing to orphan its remote objects", uuid.Short(id))
		}
		store := syncpkg.NewS3Client(&syncpkg.S3Config{
			Endpoint:       cfg.S3Endpoint,
			BucketName:     cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := photo.NewUploader(store).RemovePhoto(ctx, p); err != nil {
			return fmt.Errorf("failed to remove remote objects for %s: %w", uuid.Short(id), err)
		}
	}

	if err := repo.DeletePhoto(p.ID); err != nil {
		return fmt.Errorf("failed to purge %s: %w", uuid.Short(id), err)
	}
	fmt.Printf("purged %s\n", uuid.Short(id))
	return nil
}
