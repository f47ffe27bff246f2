// Package reload keeps the published forecaster current while
// the control loop runs. A background poller fingerprints the
// artifact files, waits for a difference to persist for the
// debounce window, rebuilds the forecaster outside any lock
// and then swaps it into the shared Holder.
package reload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/metrics"
	"go.uber.org/zap"
)

// ErrReload is returned when a forecaster rebuild fails. The
// previously published forecaster stays in place.
var ErrReload = errors.New("could not reload forecaster")

// State tracks the last loaded signature and when a
// difference from it was first seen
type State struct {
	LastLoaded   Signature
	PendingSince *time.Time
}

// Observe advances the state with the current signature and
// reports whether a reload should be triggered. The debounce
// window runs from the first poll that saw any difference from
// the last loaded signature. The signature is not required to
// be stable between consecutive polls.
func (state *State) Observe(cur Signature, now time.Time, debounce time.Duration) bool {
	if cur.Equal(state.LastLoaded) {
		state.PendingSince = nil

		return false
	}

	if state.PendingSince == nil {
		state.PendingSince = &now

		return false
	}

	return now.Sub(*state.PendingSince) >= debounce
}

// MarkLoaded records signature as loaded and clears any
// pending change
func (state *State) MarkLoaded(signature Signature) {
	state.LastLoaded = signature
	state.PendingSince = nil
}

// ManagerConfig contains configuration
// for a Manager
type ManagerConfig struct {
	Logger *zap.Logger
	Holder *Holder
	// Build constructs a fresh forecaster from the artifacts
	Build forecast.Builder
	// Fingerprint returns the current artifact signature
	Fingerprint func() Signature
	Interval    time.Duration
	Debounce    time.Duration
	// Now defaults to time.Now
	Now      func() time.Time
	Recorder metrics.Recorder
}

// Manager is the hot-reload poller
type Manager struct {
	logger      *zap.Logger
	holder      *Holder
	build       forecast.Builder
	fingerprint func() Signature
	interval    time.Duration
	debounce    time.Duration
	now         func() time.Time
	recorder    metrics.Recorder

	mu        sync.Mutex
	state     State
	baselined bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a manager. No baseline is taken until
// Start or the first Poll.
func NewManager(config ManagerConfig) *Manager {
	manager := &Manager{
		logger:      config.Logger,
		holder:      config.Holder,
		build:       config.Build,
		fingerprint: config.Fingerprint,
		interval:    config.Interval,
		debounce:    config.Debounce,
		now:         config.Now,
		recorder:    config.Recorder,
	}

	if manager.logger == nil {
		manager.logger = zap.L()
	}

	if manager.now == nil {
		manager.now = time.Now
	}

	if manager.recorder == nil {
		manager.recorder = metrics.NewNop()
	}

	manager.logger = manager.logger.With(zap.String("component", "reload"))

	return manager
}

// Start begins polling in the background. The artifacts as
// they are now are taken as loaded, since the holder's
// forecaster was built from them. It has no effect if the
// manager is already running.
func (manager *Manager) Start(ctx context.Context) {
	cur := manager.fingerprint()

	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.cancel != nil {
		return
	}

	manager.markLoaded(cur)

	ctx, manager.cancel = context.WithCancel(ctx)
	manager.wg.Add(1)

	go func() {
		defer manager.wg.Done()

		manager.run(ctx)
	}()

	manager.logger.Info("started", zap.Duration("interval", manager.interval), zap.Duration("debounce", manager.debounce))
}

// Stop cancels polling and waits for the poller to exit
func (manager *Manager) Stop() {
	manager.mu.Lock()
	cancel := manager.cancel
	manager.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	manager.wg.Wait()
}

func (manager *Manager) run(ctx context.Context) {
	ticker := time.NewTicker(manager.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			manager.Poll()
		case <-ctx.Done():
			manager.logger.Info("stopped")

			return
		}
	}
}

// Poll runs one poll and reports whether a new forecaster was
// published. A poll before any baseline takes the baseline and
// publishes nothing. A failed rebuild keeps the previous
// forecaster and leaves the change pending, so the next poll
// retries at once.
func (manager *Manager) Poll() bool {
	cur := manager.fingerprint()
	now := manager.now()

	manager.mu.Lock()

	if !manager.baselined {
		manager.markLoaded(cur)
		manager.mu.Unlock()

		return false
	}

	trigger := manager.state.Observe(cur, now, manager.debounce)
	manager.mu.Unlock()

	if !trigger {
		return false
	}

	manager.logger.Info("artifact change settled, rebuilding forecaster")

	forecaster, err := manager.build()

	if err == nil && forecaster == nil {
		err = errors.New("builder returned no forecaster")
	}

	if err != nil {
		manager.recorder.Reload(false)
		manager.logger.Warn("keeping previous forecaster", zap.Error(fmt.Errorf("%w: %s", ErrReload, err.Error())))

		return false
	}

	manager.holder.Set(forecaster)

	manager.mu.Lock()
	manager.markLoaded(cur)
	manager.mu.Unlock()

	manager.recorder.Reload(true)
	manager.logger.Info("published new forecaster")

	return true
}

// markLoaded requires manager.mu
func (manager *Manager) markLoaded(signature Signature) {
	manager.state.MarkLoaded(signature)
	manager.baselined = true
}
