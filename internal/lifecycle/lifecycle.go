// Package lifecycle implements the Plugin Lifecycle Manager (spec §4.I):
// the stopped/starting/running/crashed state machine, crash-backoff with
// a hard-disable circuit breaker, and the teardown that releases every
// resource a plugin was granted.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a plugin's place in the lifecycle state machine.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateCrashed  State = "crashed"
	StateDisabled State = "disabled"
)

const (
	// crashWindow is the sliding window crash counting is scoped to.
	crashWindow = 60 * time.Second
	// maxCrashesInWindow hard-disables a plugin once reached.
	maxCrashesInWindow = 3

	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Instance is the subset of runtime.Plugin the lifecycle manager drives.
type Instance interface {
	Start(ctx context.Context, configJSON string) error
	Stop(ctx context.Context) error
	Close(ctx context.Context) error
}

// Teardown releases every non-guest-memory resource a plugin was granted
// (sockets, delta subscriptions, provider registrations), called whenever
// a plugin leaves the running state.
type Teardown interface {
	ReleasePlugin(pluginID string)
}

// Record tracks one plugin's lifecycle state and crash history.
type Record struct {
	ID       string
	instance Instance

	mu         sync.Mutex
	state      State
	crashTimes []time.Time
	backoff    time.Duration
}

// Manager owns every loaded plugin's lifecycle record.
type Manager struct {
	mu       sync.Mutex
	plugins  map[string]*Record
	teardown Teardown
	logger   *zap.Logger
}

func NewManager(teardown Teardown, logger *zap.Logger) *Manager {
	return &Manager{plugins: make(map[string]*Record), teardown: teardown, logger: logger}
}

// Register adds a newly loaded plugin in the stopped state.
func (m *Manager) Register(pluginID string, instance Instance) *Record {
	r := &Record{ID: pluginID, instance: instance, state: StateStopped, backoff: minBackoff}
	m.mu.Lock()
	m.plugins[pluginID] = r
	m.mu.Unlock()
	return r
}

// Get returns a plugin's record, if registered.
func (m *Manager) Get(pluginID string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.plugins[pluginID]
	return r, ok
}

// Forget drops a plugin's record entirely (used after Unload).
func (m *Manager) Forget(pluginID string) {
	m.mu.Lock()
	delete(m.plugins, pluginID)
	m.mu.Unlock()
}

// State reports a record's current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start transitions stopped|crashed -> starting -> running.
func (r *Record) Start(ctx context.Context, configJSON string) error {
	r.mu.Lock()
	if r.state != StateStopped && r.state != StateCrashed {
		r.mu.Unlock()
		return fmt.Errorf("lifecycle: %s cannot start from state %s", r.ID, r.state)
	}
	r.state = StateStarting
	r.mu.Unlock()

	if err := r.instance.Start(ctx, configJSON); err != nil {
		r.mu.Lock()
		r.state = StateCrashed
		r.mu.Unlock()
		return fmt.Errorf("lifecycle: %s failed to start: %w", r.ID, err)
	}

	r.mu.Lock()
	r.state = StateRunning
	r.mu.Unlock()
	return nil
}

// Stop transitions any state -> stopped, tearing down owned resources.
func (r *Record) Stop(ctx context.Context, teardown Teardown) error {
	r.mu.Lock()
	prior := r.state
	r.mu.Unlock()
	if prior == StateStopped {
		return nil
	}

	err := r.instance.Stop(ctx)

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()

	if teardown != nil {
		teardown.ReleasePlugin(r.ID)
	}
	if err != nil {
		return fmt.Errorf("lifecycle: %s stop: %w", r.ID, err)
	}
	return nil
}

// Crash records a runtime fault, transitions to crashed, tears down owned
// resources, and computes the next restart backoff. If the plugin has
// crashed maxCrashesInWindow times within crashWindow, it is permanently
// disabled instead of scheduled for restart.
func (r *Record) Crash(teardown Teardown, logger *zap.Logger) (nextState State, backoff time.Duration) {
	now := time.Now()

	r.mu.Lock()
	r.state = StateCrashed
	r.crashTimes = append(r.crashTimes, now)
	cutoff := now.Add(-crashWindow)
	kept := r.crashTimes[:0]
	for _, t := range r.crashTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.crashTimes = kept

	if len(r.crashTimes) >= maxCrashesInWindow {
		r.state = StateDisabled
		nextState = StateDisabled
		backoff = 0
	} else {
		if r.backoff == 0 {
			r.backoff = minBackoff
		} else {
			r.backoff *= 2
			if r.backoff > maxBackoff {
				r.backoff = maxBackoff
			}
		}
		nextState = StateCrashed
		backoff = r.backoff
	}
	r.mu.Unlock()

	if teardown != nil {
		teardown.ReleasePlugin(r.ID)
	}
	if nextState == StateDisabled {
		logger.Warn("plugin hard-disabled after repeated crashes", zap.String("plugin_id", r.ID))
	}
	return nextState, backoff
}

// Enable clears a hard-disable, returning the plugin to stopped so it can
// be started again.
func (r *Record) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDisabled {
		r.state = StateStopped
		r.crashTimes = nil
		r.backoff = minBackoff
	}
}

// Disable forces a plugin out of service regardless of crash history.
func (r *Record) Disable(ctx context.Context, teardown Teardown) error {
	err := r.Stop(ctx, teardown)
	r.mu.Lock()
	r.state = StateDisabled
	r.mu.Unlock()
	return err
}

// Reload stops then restarts a plugin with new configuration, used after
// a config change or a VFS/code update.
func (r *Record) Reload(ctx context.Context, teardown Teardown, configJSON string) error {
	if err := r.Stop(ctx, teardown); err != nil {
		return err
	}
	return r.Start(ctx, configJSON)
}
