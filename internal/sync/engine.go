// Package sync provides the offline mutation queue engine: durable FIFO
// replay of local changes against a remote backend, with retry/backoff,
// dead-lettering and a parallel unsynced-photo uploader.
package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	apperrors "github.com/brightpath-energy/fieldsync/internal/errors"
	"github.com/brightpath-energy/fieldsync/internal/logging"
	"github.com/brightpath-energy/fieldsync/internal/models"
	"github.com/brightpath-energy/fieldsync/internal/uuid"
)

// Store is the durable queue store the engine drains. Implemented by
// db.Repository.
type Store interface {
	EnqueueMutation(m *models.Mutation) error
	ListPendingMutations() ([]*models.Mutation, error)
	RemoveMutation(id models.UUID) error
	MoveToDeadLetter(m *models.Mutation) error

	ListUnsyncedPhotos() ([]*models.Photo, error)
	MarkPhotoSynced(id models.UUID) error
}

// PhotoUploader pushes one offline photo to object storage.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, p *models.Photo) error
}

// ConnectivityChecker reports whether the remote backend is reachable. The
// engine reads it once at the start of each pass; a mid-drain connectivity
// loss surfaces as a request failure, not a preemptive stop.
type ConnectivityChecker interface {
	IsOnline() bool
}

// Subscriber is notified with true when a sync pass starts and false when it
// stops. Callbacks run on the syncing goroutine in registration order and
// are not shielded: a panicking subscriber aborts the notification loop.
type Subscriber func(syncing bool)

// Config configures an Engine.
type Config struct {
	Store        Store
	Registry     *Registry
	Connectivity ConnectivityChecker

	// Photos is optional; when nil the photo backlog is skipped.
	Photos PhotoUploader

	// Policy selects the retry semantics. Defaults to DefaultRetryPolicy
	// (three retries, exponential backoff, then dead-letter).
	Policy RetryPolicy

	// OnDeadLetter, when set, is invoked after a mutation lands in the
	// dead-letter store.
	OnDeadLetter func(m *models.Mutation)

	// Sleep is the backoff sleeper, injectable for tests. Defaults to
	// time.Sleep. The sleep deliberately ignores context: once a pass
	// begins it runs to completion.
	Sleep func(d time.Duration)

	Logger *logging.Logger
}

// Engine drains the mutation queue and photo backlog against connectivity.
// At most one pass runs at a time (single-flight); re-entrant TriggerSync
// calls are no-ops.
type Engine struct {
	store        Store
	registry     *Registry
	connectivity ConnectivityChecker
	photos       PhotoUploader
	policy       RetryPolicy
	onDeadLetter func(*models.Mutation)
	sleep        func(time.Duration)
	log          *logging.Logger

	mu          stdsync.Mutex
	syncing     bool
	subscribers []subscriber
	nextSubID   int

	stats Stats
}

type subscriber struct {
	id int
	fn Subscriber
}

// New creates an Engine. Store, Registry and Connectivity are required.
func New(cfg Config) *Engine {
	if cfg.Store == nil || cfg.Registry == nil || cfg.Connectivity == nil {
		panic("sync: Config requires Store, Registry and Connectivity")
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Get()
	}
	return &Engine{
		store:        cfg.Store,
		registry:     cfg.Registry,
		connectivity: cfg.Connectivity,
		photos:       cfg.Photos,
		policy:       cfg.Policy,
		onDeadLetter: cfg.OnDeadLetter,
		sleep:        cfg.Sleep,
		log:          cfg.Logger,
	}
}

// Enqueue persists a new mutation and kicks off a best-effort sync. The
// returned mutation carries the generated id; the caller is not blocked on
// the sync attempt, only on persistence.
func (e *Engine) Enqueue(ctx context.Context, typ models.MutationType, resource models.Resource, payload json.RawMessage) (*models.Mutation, error) {
	if !typ.IsValid() {
		return nil, apperrors.New(apperrors.ErrValidation, "unknown mutation type "+string(typ))
	}
	if !resource.IsValid() {
		return nil, apperrors.New(apperrors.ErrValidation, "unknown resource "+string(resource))
	}

	m := &models.Mutation{
		ID:        models.UUID(uuid.New()),
		Type:      typ,
		Resource:  resource,
		Payload:   payload,
		CreatedAt: time.Now().UnixNano(),
	}

	if err := e.store.EnqueueMutation(m); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueStore, "failed to persist mutation", err)
	}

	e.log.Debug("Enqueued mutation", map[string]interface{}{
		"mutation_id": uuid.Short(m.ID.String()),
		"key":         m.Key(),
	})

	go e.TriggerSync(context.WithoutCancel(ctx))

	return m, nil
}

// TriggerSync runs one sync pass: drain the mutation queue in FIFO order,
// then the unsynced-photo backlog. It is a no-op returning false when a pass
// is already running or connectivity is absent (checked once at entry, with
// no queue reads and no subscriber notifications in either case).
func (e *Engine) TriggerSync(ctx context.Context) bool {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return false
	}
	if !e.connectivity.IsOnline() {
		e.mu.Unlock()
		return false
	}
	e.syncing = true
	e.mu.Unlock()

	// Start/stop notifications fire in pairs even if draining panics.
	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		e.notify(false)
	}()
	e.notify(true)

	e.stats.passes.Add(1)
	e.drainMutations(ctx)
	e.drainPhotos(ctx)
	return true
}

// IsSyncing reports whether a sync pass is currently running.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// Subscribe registers a callback for sync start/stop notifications and
// returns a function that removes exactly that callback.
func (e *Engine) Subscribe(fn Subscriber) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subscribers {
			if s.id == id {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

// notify delivers a start/stop notification in registration order.
func (e *Engine) notify(syncing bool) {
	e.mu.Lock()
	subs := make([]subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(syncing)
	}
}

// failureOutcome reports how handleFailure disposed of a mutation.
type failureOutcome int

const (
	outcomeHalted failureOutcome = iota
	outcomeRetried
	outcomeDeadLettered
)

// drainMutations processes the pending queue strictly in FIFO order, one
// item at a time. A failed item blocks the rest of the pass by design:
// head-of-line blocking preserves dependency ordering between mutations.
func (e *Engine) drainMutations(ctx context.Context) {
	pending, err := e.store.ListPendingMutations()
	if err != nil {
		e.log.ErrorWithCode("Failed to read mutation queue", string(apperrors.ErrQueueStore), err)
		return
	}

	for _, m := range pending {
		apply := e.registry.Resolve(m.Resource, m.Type)
		if apply == nil {
			// Permanent configuration error: drop, don't retry.
			e.log.Warn("No apply function registered, dropping mutation", map[string]interface{}{
				"mutation_id": uuid.Short(m.ID.String()),
				"key":         m.Key(),
			})
			if err := e.store.RemoveMutation(m.ID); err != nil {
				e.log.Error("Failed to drop mutation", err)
				return
			}
			e.stats.dropped.Add(1)
			continue
		}

		res, err := apply(ctx, m.Payload)
		if err != nil {
			// Transport/system error: retry or dead-letter, then always
			// stop the pass.
			e.handleFailure(m, err.Error())
			return
		}

		if res.Success {
			if err := e.store.RemoveMutation(m.ID); err != nil {
				e.log.Error("Failed to remove applied mutation", err)
				return
			}
			e.stats.applied.Add(1)
			continue
		}

		// Business failure: a dead-lettered item is terminal and doesn't
		// block later items; a retried item halts the pass to preserve
		// ordering.
		if e.handleFailure(m, failureMessage(res)) == outcomeDeadLettered {
			continue
		}
		return
	}
}

func failureMessage(res Result) string {
	if res.Message != "" {
		return res.Message
	}
	return "apply reported failure"
}

// handleFailure applies the retry policy to a failed mutation.
func (e *Engine) handleFailure(m *models.Mutation, msg string) failureOutcome {
	switch e.policy.Decide(m.RetryCount) {
	case DecisionRetry:
		delay := e.policy.Delay(m.RetryCount)
		m.RetryCount++
		m.LastError = msg
		if err := e.store.EnqueueMutation(m); err != nil {
			e.log.ErrorWithCode("Failed to persist retry", string(apperrors.ErrQueueStore), err)
			return outcomeHalted
		}
		e.stats.retried.Add(1)
		e.log.Warn("Mutation failed, will retry", map[string]interface{}{
			"mutation_id": uuid.Short(m.ID.String()),
			"key":         m.Key(),
			"retry_count": m.RetryCount,
			"backoff_ms":  delay.Milliseconds(),
			"error":       msg,
		})
		e.sleep(delay)
		return outcomeRetried

	case DecisionDeadLetter:
		m.LastError = msg
		if err := e.store.MoveToDeadLetter(m); err != nil {
			e.log.ErrorWithCode("Failed to dead-letter mutation", string(apperrors.ErrQueueStore), err)
			return outcomeHalted
		}
		if err := e.store.RemoveMutation(m.ID); err != nil {
			e.log.Error("Failed to remove dead-lettered mutation", err)
		}
		e.stats.deadLettered.Add(1)
		e.log.ErrorWithCode("Mutation exhausted retries, dead-lettered",
			string(apperrors.ErrDeadLettered), nil, map[string]interface{}{
				"mutation_id": uuid.Short(m.ID.String()),
				"key":         m.Key(),
				"error":       msg,
			})
		if e.onDeadLetter != nil {
			e.onDeadLetter(m)
		}
		return outcomeDeadLettered

	default:
		// Legacy mode: leave the item untouched; the next trigger retries
		// it verbatim.
		e.log.Warn("Mutation failed, halting pass", map[string]interface{}{
			"mutation_id": uuid.Short(m.ID.String()),
			"key":         m.Key(),
			"error":       msg,
		})
		return outcomeHalted
	}
}

// drainPhotos uploads the unsynced-photo backlog. Photo failures carry no
// retry bookkeeping: a failed upload is logged and retried verbatim on the
// next pass.
func (e *Engine) drainPhotos(ctx context.Context) {
	if e.photos == nil {
		return
	}

	photos, err := e.store.ListUnsyncedPhotos()
	if err != nil {
		e.log.ErrorWithCode("Failed to read photo backlog", string(apperrors.ErrQueueStore), err)
		return
	}

	for _, p := range photos {
		if err := e.photos.UploadPhoto(ctx, p); err != nil {
			e.stats.photosFailed.Add(1)
			e.log.ErrorWithCode("Photo upload failed", string(apperrors.ErrUploadFailed), err,
				map[string]interface{}{"photo_id": uuid.Short(p.ID.String())})
			continue
		}
		if err := e.store.MarkPhotoSynced(p.ID); err != nil {
			e.log.Error("Failed to mark photo synced", err)
			continue
		}
		e.stats.photosUploaded.Add(1)
	}
}
