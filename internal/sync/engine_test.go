package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/brightpath-energy/fieldsync/internal/models"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeStore is an in-memory Store that preserves enqueue order.
type fakeStore struct {
	mu     stdsync.Mutex
	queue  []*models.Mutation
	dead   []*models.Mutation
	photos []*models.Photo

	listErr error
}

func (s *fakeStore) EnqueueMutation(m *models.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	for i, existing := range s.queue {
		if existing.ID == m.ID {
			s.queue[i] = &cp
			return nil
		}
	}
	s.queue = append(s.queue, &cp)
	return nil
}

func (s *fakeStore) ListPendingMutations() ([]*models.Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*models.Mutation, len(s.queue))
	for i, m := range s.queue {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *fakeStore) RemoveMutation(id models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.queue {
		if m.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) MoveToDeadLetter(m *models.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.dead = append(s.dead, &cp)
	return nil
}

func (s *fakeStore) ListUnsyncedPhotos() ([]*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Photo
	for _, p := range s.photos {
		if !p.Synced {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPhotoSynced(id models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		if p.ID == id {
			p.Synced = true
			return nil
		}
	}
	return errors.New("photo not found")
}

func (s *fakeStore) pending() []*models.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Mutation, len(s.queue))
	copy(out, s.queue)
	return out
}

// onlineFlag is a fixed-state connectivity checker.
type onlineFlag struct{ online bool }

func (c onlineFlag) IsOnline() bool { return c.online }

// sleepRecorder captures backoff sleeps instead of waiting.
type sleepRecorder struct {
	mu     stdsync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func newTestEngine(t *testing.T, store *fakeStore, reg *Registry, online bool) (*Engine, *sleepRecorder) {
	t.Helper()
	sleeps := &sleepRecorder{}
	engine := New(Config{
		Store:        store,
		Registry:     reg,
		Connectivity: onlineFlag{online: online},
		Sleep:        sleeps.sleep,
	})
	return engine, sleeps
}

func testMutation(id string, resource models.Resource, typ models.MutationType, createdAt int64) *models.Mutation {
	return &models.Mutation{
		ID:        models.UUID(id),
		Type:      typ,
		Resource:  resource,
		Payload:   json.RawMessage(`{"id":"` + id + `"}`),
		CreatedAt: createdAt,
	}
}

func succeed(ctx context.Context, payload json.RawMessage) (Result, error) {
	return Result{Success: true}, nil
}

// =====================================================
// Enqueue Tests
// =====================================================

func TestEngine_Enqueue_validation(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store, NewRegistry(), false)

	if _, err := engine.Enqueue(context.Background(), "upsert", models.ResourceJob, nil); err == nil {
		t.Error("Enqueue should reject unknown mutation type")
	}
	if _, err := engine.Enqueue(context.Background(), models.MutationCreate, "tractor", nil); err == nil {
		t.Error("Enqueue should reject unknown resource")
	}
	if len(store.pending()) != 0 {
		t.Error("rejected mutations must not be persisted")
	}
}

func TestEngine_Enqueue_persists(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store, NewRegistry(), false)

	m, err := engine.Enqueue(context.Background(), models.MutationCreate, models.ResourceJob,
		json.RawMessage(`{"name":"attic insulation"}`))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if m.ID == "" {
		t.Error("Enqueue should assign an id")
	}
	if m.CreatedAt == 0 {
		t.Error("Enqueue should stamp CreatedAt")
	}
	if m.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", m.RetryCount)
	}

	pending := store.pending()
	if len(pending) != 1 || pending[0].ID != m.ID {
		t.Fatalf("mutation not persisted: %+v", pending)
	}
}

// =====================================================
// TriggerSync Guard Tests
// =====================================================

func TestTriggerSync_offlineIsNoop(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue, testMutation("m1", models.ResourceJob, models.MutationCreate, 1))

	engine, _ := newTestEngine(t, store, NewRegistry(), false)

	var notified bool
	engine.Subscribe(func(bool) { notified = true })

	if engine.TriggerSync(context.Background()) {
		t.Error("TriggerSync should return false when offline")
	}
	if notified {
		t.Error("offline trigger must not notify subscribers")
	}
	if len(store.pending()) != 1 {
		t.Error("offline trigger must not touch the queue")
	}
}

func TestTriggerSync_singleFlight(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue, testMutation("m1", models.ResourceJob, models.MutationCreate, 1))

	started := make(chan struct{})
	release := make(chan struct{})

	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			close(started)
			<-release
			return Result{Success: true}, nil
		})

	engine, _ := newTestEngine(t, store, reg, true)

	done := make(chan bool)
	go func() { done <- engine.TriggerSync(context.Background()) }()

	<-started
	if !engine.IsSyncing() {
		t.Error("IsSyncing should report true mid-pass")
	}
	if engine.TriggerSync(context.Background()) {
		t.Error("re-entrant TriggerSync should return false")
	}

	close(release)
	if !<-done {
		t.Error("first TriggerSync should return true")
	}
	if engine.IsSyncing() {
		t.Error("IsSyncing should report false after the pass")
	}
}

// =====================================================
// Drain Order and Outcome Tests
// =====================================================

func TestTriggerSync_appliesInFIFOOrder(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue,
		testMutation("m1", models.ResourceJob, models.MutationCreate, 10),
		testMutation("m2", models.ResourceEquipment, models.MutationUpdate, 20),
		testMutation("m3", models.ResourceVehicle, models.MutationDelete, 30),
	)

	var order []string
	record := func(ctx context.Context, payload json.RawMessage) (Result, error) {
		var body struct {
			ID string `json:"id"`
		}
		json.Unmarshal(payload, &body)
		order = append(order, body.ID)
		return Result{Success: true}, nil
	}

	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate, record)
	reg.Register(models.ResourceEquipment, models.MutationUpdate, record)
	reg.Register(models.ResourceVehicle, models.MutationDelete, record)

	engine, _ := newTestEngine(t, store, reg, true)
	if !engine.TriggerSync(context.Background()) {
		t.Fatal("TriggerSync should run")
	}

	want := []string{"m1", "m2", "m3"}
	if len(order) != len(want) {
		t.Fatalf("applied %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("applied %v, want %v", order, want)
		}
	}
	if len(store.pending()) != 0 {
		t.Error("applied mutations should leave the queue")
	}
	if got := engine.Stats().Applied; got != 3 {
		t.Errorf("Stats().Applied = %d, want 3", got)
	}
}

func TestTriggerSync_transportErrorHaltsPass(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue,
		testMutation("m1", models.ResourceJob, models.MutationCreate, 10),
		testMutation("m2", models.ResourceJob, models.MutationCreate, 20),
	)

	calls := 0
	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			calls++
			return Result{}, errors.New("connection refused")
		})

	engine, sleeps := newTestEngine(t, store, reg, true)
	engine.TriggerSync(context.Background())

	if calls != 1 {
		t.Errorf("apply calls = %d, want 1 (head-of-line blocking)", calls)
	}

	pending := store.pending()
	if len(pending) != 2 {
		t.Fatalf("queue length = %d, want 2", len(pending))
	}
	if pending[0].RetryCount != 1 {
		t.Errorf("head RetryCount = %d, want 1", pending[0].RetryCount)
	}
	if pending[0].LastError == "" {
		t.Error("head LastError should record the failure")
	}
	if pending[1].RetryCount != 0 {
		t.Errorf("blocked item RetryCount = %d, want 0", pending[1].RetryCount)
	}

	if len(sleeps.delays) != 1 || sleeps.delays[0] != time.Second {
		t.Errorf("backoff delays = %v, want [1s]", sleeps.delays)
	}
}

func TestTriggerSync_retryBackoffThenDeadLetter(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue, testMutation("m1", models.ResourceInspection, models.MutationCreate, 1))

	reg := NewRegistry()
	reg.Register(models.ResourceInspection, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{}, errors.New("backend down")
		})

	sleeps := &sleepRecorder{}
	var deadLettered *models.Mutation
	engine := New(Config{
		Store:        store,
		Registry:     reg,
		Connectivity: onlineFlag{online: true},
		Sleep:        sleeps.sleep,
		OnDeadLetter: func(m *models.Mutation) { deadLettered = m },
	})

	// Three failing passes burn the retry budget.
	for i := 0; i < 3; i++ {
		engine.TriggerSync(context.Background())
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeps.delays, want)
	}
	for i := range want {
		if sleeps.delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", sleeps.delays, want)
		}
	}

	// Fourth failure dead-letters.
	engine.TriggerSync(context.Background())

	if len(store.pending()) != 0 {
		t.Error("dead-lettered mutation should leave the live queue")
	}
	if len(store.dead) != 1 {
		t.Fatalf("dead-letter store has %d records, want 1", len(store.dead))
	}
	if store.dead[0].RetryCount != 3 {
		t.Errorf("dead-lettered RetryCount = %d, want 3", store.dead[0].RetryCount)
	}
	if deadLettered == nil || deadLettered.ID != "m1" {
		t.Error("OnDeadLetter callback should fire with the mutation")
	}
	if got := engine.Stats().DeadLettered; got != 1 {
		t.Errorf("Stats().DeadLettered = %d, want 1", got)
	}
}

func TestTriggerSync_businessDeadLetterContinuesPass(t *testing.T) {
	store := &fakeStore{}
	exhausted := testMutation("m1", models.ResourceJob, models.MutationCreate, 10)
	exhausted.RetryCount = 3
	store.queue = append(store.queue,
		exhausted,
		testMutation("m2", models.ResourceJob, models.MutationUpdate, 20),
	)

	applied := 0
	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{Success: false, Message: "duplicate job number"}, nil
		})
	reg.Register(models.ResourceJob, models.MutationUpdate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			applied++
			return Result{Success: true}, nil
		})

	engine, _ := newTestEngine(t, store, reg, true)
	engine.TriggerSync(context.Background())

	if len(store.dead) != 1 {
		t.Fatalf("dead-letter store has %d records, want 1", len(store.dead))
	}
	if store.dead[0].LastError != "duplicate job number" {
		t.Errorf("LastError = %q, want business message", store.dead[0].LastError)
	}
	if applied != 1 {
		t.Error("a terminal dead-letter must not block later items")
	}
	if len(store.pending()) != 0 {
		t.Error("both items should leave the live queue")
	}
}

func TestTriggerSync_businessRetryHaltsPass(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue,
		testMutation("m1", models.ResourceJob, models.MutationCreate, 10),
		testMutation("m2", models.ResourceJob, models.MutationUpdate, 20),
	)

	updates := 0
	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{Success: false, Message: "validation pending"}, nil
		})
	reg.Register(models.ResourceJob, models.MutationUpdate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			updates++
			return Result{Success: true}, nil
		})

	engine, _ := newTestEngine(t, store, reg, true)
	engine.TriggerSync(context.Background())

	if updates != 0 {
		t.Error("a retried head item must halt the pass")
	}
	if got := store.pending()[0].RetryCount; got != 1 {
		t.Errorf("head RetryCount = %d, want 1", got)
	}
}

func TestTriggerSync_unregisteredHandlerDropsMutation(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue,
		testMutation("m1", models.ResourceVehicle, models.MutationDelete, 10),
		testMutation("m2", models.ResourceJob, models.MutationCreate, 20),
	)

	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate, succeed)

	engine, _ := newTestEngine(t, store, reg, true)
	engine.TriggerSync(context.Background())

	if len(store.pending()) != 0 {
		t.Error("unroutable mutation should be dropped, not retried")
	}
	stats := engine.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Stats().Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Applied != 1 {
		t.Errorf("Stats().Applied = %d, want 1 (pass continues past drop)", stats.Applied)
	}
}

func TestTriggerSync_noRetryPolicyLeavesItemUntouched(t *testing.T) {
	store := &fakeStore{}
	store.queue = append(store.queue, testMutation("m1", models.ResourceJob, models.MutationCreate, 1))

	reg := NewRegistry()
	reg.Register(models.ResourceJob, models.MutationCreate,
		func(ctx context.Context, payload json.RawMessage) (Result, error) {
			return Result{}, errors.New("transient")
		})

	sleeps := &sleepRecorder{}
	engine := New(Config{
		Store:        store,
		Registry:     reg,
		Connectivity: onlineFlag{online: true},
		Policy:       NoRetry{},
		Sleep:        sleeps.sleep,
	})

	engine.TriggerSync(context.Background())

	pending := store.pending()
	if len(pending) != 1 {
		t.Fatal("item should stay in the queue")
	}
	if pending[0].RetryCount != 0 || pending[0].LastError != "" {
		t.Error("legacy mode must not touch retry bookkeeping")
	}
	if len(sleeps.delays) != 0 {
		t.Error("legacy mode must not back off")
	}
	if len(store.dead) != 0 {
		t.Error("legacy mode must not dead-letter")
	}
}

// =====================================================
// Subscriber Tests
// =====================================================

func TestSubscribe_pairedNotifications(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store, NewRegistry(), true)

	var events []bool
	engine.Subscribe(func(syncing bool) { events = append(events, syncing) })

	engine.TriggerSync(context.Background())

	if len(events) != 2 || !events[0] || events[1] {
		t.Errorf("events = %v, want [true false]", events)
	}
}

func TestSubscribe_unsubscribeRemovesCallback(t *testing.T) {
	store := &fakeStore{}
	engine, _ := newTestEngine(t, store, NewRegistry(), true)

	var first, second int
	unsub := engine.Subscribe(func(bool) { first++ })
	engine.Subscribe(func(bool) { second++ })

	engine.TriggerSync(context.Background())
	unsub()
	engine.TriggerSync(context.Background())

	if first != 2 {
		t.Errorf("first subscriber fired %d times, want 2", first)
	}
	if second != 4 {
		t.Errorf("second subscriber fired %d times, want 4", second)
	}
}

// =====================================================
// Photo Drain Tests
// =====================================================

type fakeUploader struct {
	mu       stdsync.Mutex
	uploaded []models.UUID
	failIDs  map[models.UUID]bool
}

func (u *fakeUploader) UploadPhoto(ctx context.Context, p *models.Photo) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failIDs[p.ID] {
		return fmt.Errorf("upload failed for %s", p.ID)
	}
	u.uploaded = append(u.uploaded, p.ID)
	return nil
}

func TestTriggerSync_photoFailureDoesNotBlockBacklog(t *testing.T) {
	store := &fakeStore{}
	store.photos = append(store.photos,
		&models.Photo{ID: "p1", InspectionID: "i1", CreatedAt: 10},
		&models.Photo{ID: "p2", InspectionID: "i1", CreatedAt: 20},
	)

	uploader := &fakeUploader{failIDs: map[models.UUID]bool{"p1": true}}
	engine := New(Config{
		Store:        store,
		Registry:     NewRegistry(),
		Connectivity: onlineFlag{online: true},
		Photos:       uploader,
		Sleep:        func(time.Duration) {},
	})

	engine.TriggerSync(context.Background())

	if len(uploader.uploaded) != 1 || uploader.uploaded[0] != "p2" {
		t.Errorf("uploaded = %v, want [p2]", uploader.uploaded)
	}

	// The failed photo carries no retry bookkeeping and stays in the
	// backlog verbatim.
	remaining, _ := store.ListUnsyncedPhotos()
	if len(remaining) != 1 || remaining[0].ID != "p1" {
		t.Errorf("unsynced = %v, want [p1]", remaining)
	}

	stats := engine.Stats()
	if stats.PhotosUploaded != 1 || stats.PhotosFailed != 1 {
		t.Errorf("photo stats = %d uploaded / %d failed, want 1/1",
			stats.PhotosUploaded, stats.PhotosFailed)
	}

	// Next pass retries the failed photo.
	uploader.failIDs = nil
	engine.TriggerSync(context.Background())
	remaining, _ = store.ListUnsyncedPhotos()
	if len(remaining) != 0 {
		t.Error("previously failed photo should upload on the next pass")
	}
}
