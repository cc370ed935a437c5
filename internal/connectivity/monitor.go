// Package connectivity tracks whether the remote backend is reachable and
// raises an event on the offline-to-online edge so queued work can drain.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/brightpath-energy/fieldsync/internal/logging"
)

// Prober answers a single reachability question. Probes should be cheap;
// the monitor calls them on every poll tick.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// NewHTTPProber probes reachability with a HEAD request against url. Any
// HTTP response counts as online; only transport failure counts as offline.
func NewHTTPProber(url string, timeout time.Duration) Prober {
	client := &http.Client{Timeout: timeout}
	return ProbeFunc(func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	})
}

// OnlineHandler runs when connectivity returns after an offline stretch.
type OnlineHandler func(ctx context.Context)

// Monitor polls a Prober and fires registered handlers on the
// offline-to-online transition. It satisfies the engine's connectivity
// check via IsOnline.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *logging.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu        sync.RWMutex
	online    bool
	isRunning bool
	handlers  []OnlineHandler
}

// Config holds monitor configuration.
type Config struct {
	PollInterval time.Duration // default: 10 seconds
	AssumeOnline bool          // initial state before the first probe
}

// NewMonitor creates a Monitor over the given prober.
func NewMonitor(prober Prober, config *Config) *Monitor {
	if config == nil {
		config = &Config{PollInterval: 10 * time.Second, AssumeOnline: true}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 10 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: config.PollInterval,
		log:      logging.Get(),
		online:   config.AssumeOnline,
	}
}

// IsOnline reports the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnOnline registers a handler for the offline-to-online edge. Handlers run
// on the polling goroutine in registration order; a handler that was
// registered while online fires only after the next offline stretch ends.
func (m *Monitor) OnOnline(fn OnlineHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Start launches the polling loop. Calling Start on a running monitor is a
// no-op; a stopped monitor can be started again. An immediate probe runs
// before the first tick so the state is accurate from the start.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	// Fresh channel per run so a restart doesn't inherit a closed one.
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(ctx, stopCh)

	m.log.Info("Connectivity monitor started",
		map[string]interface{}{"poll_interval": m.interval.String()})
}

// Stop shuts the monitor down and waits for the polling loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	m.wg.Wait()

	m.log.Info("Connectivity monitor stopped", nil)
}

func (m *Monitor) pollLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()

	m.observe(ctx, m.prober.Probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.observe(ctx, m.prober.Probe(ctx))
		}
	}
}

// observe records a probe result and fires handlers on the reconnect edge.
func (m *Monitor) observe(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var handlers []OnlineHandler
	if online && !wasOnline {
		handlers = make([]OnlineHandler, len(m.handlers))
		copy(handlers, m.handlers)
	}
	m.mu.Unlock()

	if wasOnline != online {
		m.log.Info("Connectivity changed",
			map[string]interface{}{"was_online": wasOnline, "is_online": online})
	}

	for _, fn := range handlers {
		fn(ctx)
	}
}

// SetOnline forces the connectivity state, firing reconnect handlers when
// the change is an offline-to-online edge. Intended for tests and for
// embedders with their own reachability signal.
func (m *Monitor) SetOnline(online bool) {
	m.observe(context.Background(), online)
}
