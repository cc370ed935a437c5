package photo

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

// Uploader pushes inspection photos to object storage. It satisfies the
// sync engine's photo uploader.
type Uploader struct {
	store syncpkg.ObjectStore
	log   *logging.Logger

	// SkipThumbnails disables the thumbnail sidecar, for callers uploading
	// non-image payloads or on constrained links.
	SkipThumbnails bool
}

// NewUploader creates an Uploader over the given object store.
func NewUploader(store syncpkg.ObjectStore) *Uploader {
	return &Uploader{store: store, log: logging.Get()}
}

// objectMetadata is the sidecar JSON stored next to each photo.
type objectMetadata struct {
	PhotoID      string `json:"photo_id"`
	InspectionID string `json:"inspection_id"`
	Caption      string `json:"caption,omitempty"`
	Category     string `json:"category,omitempty"`
	ContentType  string `json:"content_type"`
	CapturedAt   string `json:"captured_at"`
}

// UploadPhoto uploads the photo payload, a JPEG thumbnail and a metadata
// sidecar. The payload upload is authoritative: a sidecar or thumbnail
// failure is logged but does not fail the photo.
func (u *Uploader) UploadPhoto(ctx context.Context, p *models.Photo) error {
	key := p.StorageKey()

	contentType := p.ContentType
	if contentType == "" {
		contentType = DetectContentType(p.Data)
	}

	if err := u.store.Upload(ctx, key, p.Data, contentType); err != nil {
		return apperrors.Wrap(apperrors.ErrUploadFailed, "failed to upload photo "+key, err)
	}

	if !u.SkipThumbnails {
		if thumb, err := Thumbnail(p.Data); err != nil {
			u.log.Warn("Thumbnail generation failed, uploading original only",
				map[string]interface{}{"photo_id": uuid.Short(p.ID.String()), "error": err.Error()})
		} else if err := u.store.Upload(ctx, key+".thumb.jpg", thumb, "image/jpeg"); err != nil {
			u.log.Warn("Thumbnail upload failed",
				map[string]interface{}{"photo_id": uuid.Short(p.ID.String()), "error": err.Error()})
		}
	}

	meta, err := json.Marshal(objectMetadata{
		PhotoID:      p.ID.String(),
		InspectionID: p.InspectionID.String(),
		Caption:      p.Caption,
		Category:     p.Category,
		ContentType:  contentType,
		CapturedAt:   p.CreatedAtTime().UTC().Format(time.RFC3339),
	})
	if err == nil {
		if err := u.store.Upload(ctx, key+".json", meta, "application/json"); err != nil {
			u.log.Warn("Metadata upload failed",
				map[string]interface{}{"photo_id": uuid.Short(p.ID.String()), "error": err.Error()})
		}
	}

	u.log.Info("Photo uploaded", map[string]interface{}{
		"photo_id":      uuid.Short(p.ID.String()),
		"inspection_id": uuid.Short(p.InspectionID.String()),
		"key":           key,
		"bytes":         len(p.Data),
	})
	return nil
}

// RemovePhoto deletes the photo payload and all of its sidecars from object
// storage. The storage key is a prefix of every object the photo owns, so a
// prefix listing finds payload, thumbnail and metadata in one pass.
func (u *Uploader) RemovePhoto(ctx context.Context, p *models.Photo) error {
	key := p.StorageKey()

	keys, err := u.store.List(ctx, key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUploadFailed, "failed to list objects for "+key, err)
	}

	for _, k := range keys {
		if err := u.store.Delete(ctx, k); err != nil {
			return apperrors.Wrap(apperrors.ErrUploadFailed, "failed to delete object "+k, err)
		}
	}

	u.log.Info("Photo removed from object storage", map[string]interface{}{
		"photo_id": uuid.Short(p.ID.String()),
		"key":      key,
		"objects":  len(keys),
	})
	return nil
}
