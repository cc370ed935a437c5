// Package scheduler provides background scheduling for the sync engine:
// periodic drain passes while online, on top of event-driven triggers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/brightpath-energy/fieldsync/internal/logging"
)

// Engine is the subset of the sync engine the scheduler drives.
type Engine interface {
	TriggerSync(ctx context.Context) bool
	IsSyncing() bool
}

// Scheduler periodically triggers sync passes. The engine itself enforces
// single-flight and connectivity, so the scheduler only has to tick.
type Scheduler struct {
	engine   Engine
	interval time.Duration
	log      *logging.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu           sync.RWMutex
	isRunning    bool
	lastSyncTime time.Time
}

// Config holds scheduler configuration.
type Config struct {
	SyncInterval time.Duration // how often to trigger a pass (default: 1 minute)
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{SyncInterval: time.Minute}
}

// New creates a Scheduler for the given engine.
func New(engine Engine, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:   engine,
		interval: config.SyncInterval,
		log:      logging.Get(),
	}
}

// Start launches the background tick loop. Calling Start on a running
// scheduler is a no-op; a stopped scheduler can be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	// Fresh channel per run so a restart doesn't inherit a closed one.
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx, stopCh)

	s.log.Info("Sync scheduler started",
		map[string]interface{}{"interval": s.interval.String()})
}

// Stop shuts the scheduler down and waits for the tick loop to exit.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	s.log.Info("Sync scheduler stopped", nil)
}

func (s *Scheduler) tickLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if s.engine.IsSyncing() {
				s.log.Debug("Sync already in progress, skipping tick", nil)
				continue
			}
			if s.engine.TriggerSync(ctx) {
				s.mu.Lock()
				s.lastSyncTime = time.Now()
				s.mu.Unlock()
			}
		}
	}
}

// Status is a snapshot of the scheduler state.
type Status struct {
	IsRunning    bool
	LastSyncTime *time.Time
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{IsRunning: s.isRunning}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	return status
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
