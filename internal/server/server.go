// Package server exposes the local HTTP/WebSocket API the field client
// talks to: enqueueing mutations, registering photos, inspecting the queue
// and the dead-letter store, and triggering sync passes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	syncpkg "github.com/brightpath-energy/fieldsync/internal/sync"
)

// Store is the repository surface the API reads and writes. Implemented by
// db.Repository.
type Store interface {
	ListPendingMutations() ([]*models.Mutation, error)
	CountPendingMutations() (int, error)
	GetMutation(id models.UUID) (*models.Mutation, error)

	ListFailedMutations() ([]*models.FailedMutation, error)
	PurgeFailedMutation(id models.UUID) error
	RequeueFailedMutation(id models.UUID) error

	SavePhoto(p *models.Photo) error
	GetPhoto(id models.UUID) (*models.Photo, error)
	CountUnsyncedPhotos() (int, error)
}

// SyncEngine is the engine surface the API drives.
type SyncEngine interface {
	Enqueue(ctx context.Context, typ models.MutationType, resource models.Resource, payload json.RawMessage) (*models.Mutation, error)
	TriggerSync(ctx context.Context) bool
	IsSyncing() bool
	Stats() syncpkg.StatsSnapshot
}

// Connectivity reports reachability for the status endpoint.
type Connectivity interface {
	IsOnline() bool
}

// Server is the local API server.
type Server struct {
	store        Store
	engine       SyncEngine
	connectivity Connectivity
	hub          *WSHub
	log          *logging.Logger

	httpServer *http.Server
}

// Config configures a Server.
type Config struct {
	Addr         string
	Store        Store
	Engine       SyncEngine
	Connectivity Connectivity
	Hub          *WSHub
}

// New creates a Server. The hub is optional; without one the WebSocket
// endpoint is not registered.
func New(cfg Config) *Server {
	s := &Server{
		store:        cfg.Store,
		engine:       cfg.Engine,
		connectivity: cfg.Connectivity,
		hub:          cfg.Hub,
		log:          logging.Get(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/mutations", s.handleEnqueueMutation)
	mux.HandleFunc("GET /api/mutations", s.handleListMutations)
	mux.HandleFunc("GET /api/mutations/{id}", s.handleGetMutation)

	mux.HandleFunc("POST /api/sync", s.handleTriggerSync)
	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)

	mux.HandleFunc("GET /api/dlq", s.handleListDeadLetters)
	mux.HandleFunc("POST /api/dlq/{id}/replay", s.handleReplayDeadLetter)
	mux.HandleFunc("DELETE /api/dlq/{id}", s.handlePurgeDeadLetter)

	mux.HandleFunc("POST /api/photos", s.handleSavePhoto)
	mux.HandleFunc("GET /api/photos/{id}", s.handleGetPhoto)

	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}

	return mux
}

// Start serves the API until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("API server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to an HTTP status with a JSON body.
func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	writeJSON(w, status, map[string]string{
		"error":   string(code),
		"message": message,
	})
}
