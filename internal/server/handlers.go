package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/photo"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "fieldsync",
	})
}

// enqueueRequest is the POST /api/mutations body.
type enqueueRequest struct {
	Type     models.MutationType `json:"type"`
	Resource models.Resource     `json:"resource"`
	Payload  json.RawMessage     `json:"payload"`
}

func (s *Server) handleEnqueueMutation(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return
	}

	m, err := s.engine.Enqueue(r.Context(), req.Type, req.Resource, req.Payload)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrValidation {
			writeError(w, http.StatusBadRequest, appErr.Code, appErr.Message)
			return
		}
		s.log.Error("Failed to enqueue mutation", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to enqueue mutation")
		return
	}

	if s.hub != nil {
		s.hub.BroadcastMutationEnqueued(m)
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMutations(w http.ResponseWriter, r *http.Request) {
	mutations, err := s.store.ListPendingMutations()
	if err != nil {
		s.log.Error("Failed to list mutations", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to list mutations")
		return
	}
	if mutations == nil {
		mutations = []*models.Mutation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mutations": mutations,
		"count":     len(mutations),
	})
}

func (s *Server) handleGetMutation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid mutation id")
		return
	}

	m, err := s.store.GetMutation(models.UUID(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, apperrors.ErrMutationNotFound, "mutation not found")
			return
		}
		s.log.Error("Failed to get mutation", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to get mutation")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.engine.IsSyncing() {
		writeError(w, http.StatusConflict, apperrors.ErrSyncBusy, "sync already in progress")
		return
	}
	if !s.connectivity.IsOnline() {
		writeError(w, http.StatusServiceUnavailable, apperrors.ErrSyncOffline, "backend is unreachable")
		return
	}

	go s.engine.TriggerSync(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.CountPendingMutations()
	if err != nil {
		s.log.Error("Failed to count pending mutations", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to read queue")
		return
	}
	unsyncedPhotos, err := s.store.CountUnsyncedPhotos()
	if err != nil {
		s.log.Error("Failed to count unsynced photos", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to read photo backlog")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"syncing":         s.engine.IsSyncing(),
		"online":          s.connectivity.IsOnline(),
		"pending":         pending,
		"unsynced_photos": unsyncedPhotos,
		"stats":           s.engine.Stats(),
	})
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	failed, err := s.store.ListFailedMutations()
	if err != nil {
		s.log.Error("Failed to list dead-letter records", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to list dead-letter records")
		return
	}
	if failed == nil {
		failed = []*models.FailedMutation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failed": failed,
		"count":  len(failed),
	})
}

func (s *Server) handleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid mutation id")
		return
	}

	if err := s.store.RequeueFailedMutation(models.UUID(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, apperrors.ErrMutationNotFound, "dead-letter record not found")
			return
		}
		s.log.Error("Failed to replay dead-letter record", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to replay dead-letter record")
		return
	}

	go s.engine.TriggerSync(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handlePurgeDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid mutation id")
		return
	}

	if err := s.store.PurgeFailedMutation(models.UUID(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, apperrors.ErrMutationNotFound, "dead-letter record not found")
			return
		}
		s.log.Error("Failed to purge dead-letter record", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to purge dead-letter record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// savePhotoRequest is the POST /api/photos body. Data is base64 in JSON.
type savePhotoRequest struct {
	InspectionID string `json:"inspection_id"`
	Caption      string `json:"caption"`
	Category     string `json:"category"`
	Data         []byte `json:"data"`
}

func (s *Server) handleSavePhoto(w http.ResponseWriter, r *http.Request) {
	var req savePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return
	}
	if err := uuid.Validate(req.InspectionID); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrValidation, "invalid inspection id")
		return
	}

	contentType, err := photo.ValidateImage(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrPhotoInvalid, err.Error())
		return
	}

	p := &models.Photo{
		ID:           models.UUID(uuid.New()),
		InspectionID: models.UUID(req.InspectionID),
		Data:         req.Data,
		Caption:      req.Caption,
		Category:     req.Category,
		ContentType:  contentType,
		CreatedAt:    time.Now().UnixNano(),
	}
	if err := s.store.SavePhoto(p); err != nil {
		s.log.Error("Failed to save photo", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to save photo")
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(EventPhotoRegistered, map[string]interface{}{
			"photo_id":      p.ID.String(),
			"inspection_id": p.InspectionID.String(),
		})
	}
	go s.engine.TriggerSync(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":          p.ID,
		"storage_key": p.StorageKey(),
	})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid photo id")
		return
	}

	p, err := s.store.GetPhoto(models.UUID(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, apperrors.ErrPhotoNotFound, "photo not found")
			return
		}
		s.log.Error("Failed to get photo", err)
		writeError(w, http.StatusInternalServerError, apperrors.ErrQueueStore, "failed to get photo")
		return
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(p.Data)
}
