// Package router implements the Delta Subscription Router (spec §4.H): it
// tracks which plugins subscribed to which context/path globs, dispatches
// matching deltas to their "handle_delta" export, and replays a bounded
// backlog to a plugin that just reloaded so it doesn't miss updates that
// arrived while it was restarting.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/skwasm/pluginhost/internal/delta"
	"go.uber.org/zap"
)

// reloadReplayCap bounds each plugin's own reload-window buffer; the
// oldest delta is dropped to make room for a newer one once full (spec
// invariant: bounded memory, not guaranteed replay). It is per plugin, not
// shared system-wide, so unrelated traffic can never evict another
// plugin's backlog (spec §3, Delta subscription record).
const reloadReplayCap = 1000

// Handler is the subset of runtime.Plugin the router dispatches through.
type Handler interface {
	HandleDelta(ctx context.Context, deltaJSON string) (ok bool, err error)
}

type subscriberEntry struct {
	sub     delta.Subscription
	handler Handler
}

// reloadBuffer captures one plugin's subscriptions and a bounded backlog
// of deltas that arrived while it was mid-reload (its subscriber entries
// removed by Unsubscribe, guest not yet able to handle anything).
type reloadBuffer struct {
	subs    []delta.Subscription
	handler Handler
	buffer  []delta.Delta
}

// Router holds every plugin's delta subscriptions and, for any plugin
// currently inside a reload window, a buffer of deltas it would otherwise
// have missed.
type Router struct {
	mu          sync.Mutex
	subscribers []subscriberEntry
	reloading   map[string]*reloadBuffer
	logger      *zap.Logger
}

func New(logger *zap.Logger) *Router {
	return &Router{logger: logger, reloading: make(map[string]*reloadBuffer)}
}

// Subscribe registers a plugin's interest in deltas matching sub.
func (r *Router) Subscribe(sub delta.Subscription, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, subscriberEntry{sub: sub, handler: handler})
}

// Unsubscribe removes every subscription belonging to pluginID, called on
// plugin stop/crash/disable.
func (r *Router) Unsubscribe(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.subscribers[:0]
	for _, e := range r.subscribers {
		if e.sub.PluginID != pluginID {
			kept = append(kept, e)
		}
	}
	r.subscribers = kept
}

// Dispatch routes d to every matching subscriber and, for any plugin
// currently mid-reload, appends it to that plugin's own reload buffer.
// Handler errors are logged, not propagated: one plugin's failure must
// not block delivery to the others.
func (r *Router) Dispatch(ctx context.Context, d delta.Delta) {
	r.mu.Lock()
	matches := make([]subscriberEntry, 0, len(r.subscribers))
	for _, e := range r.subscribers {
		if e.sub.Matches(d) {
			matches = append(matches, e)
		}
	}
	for _, rb := range r.reloading {
		for _, sub := range rb.subs {
			if sub.Matches(d) {
				if len(rb.buffer) >= reloadReplayCap {
					rb.buffer = rb.buffer[1:]
				}
				rb.buffer = append(rb.buffer, d)
				break
			}
		}
	}
	r.mu.Unlock()

	payload, err := json.Marshal(d)
	if err != nil {
		r.logger.Error("failed encoding delta for dispatch", zap.Error(err))
		return
	}

	for _, e := range matches {
		if _, err := e.handler.HandleDelta(ctx, string(payload)); err != nil {
			r.logger.Warn("plugin delta handler error",
				zap.String("plugin_id", e.sub.PluginID), zap.Error(err))
		}
	}
}

// BeginReload opens a reload window for pluginID: its current
// subscriptions are snapshotted and any delta matching one of them is
// buffered (bounded, drop-oldest) until EndReload replays it. Called
// before the plugin is stopped, since Stop's teardown unsubscribes it
// entirely. A plugin with no active subscriptions has nothing to buffer.
func (r *Router) BeginReload(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rb := &reloadBuffer{}
	for _, e := range r.subscribers {
		if e.sub.PluginID == pluginID {
			rb.subs = append(rb.subs, e.sub)
			rb.handler = e.handler
		}
	}
	if len(rb.subs) == 0 {
		return
	}
	r.reloading[pluginID] = rb
}

// EndReload closes pluginID's reload window, restores the subscriptions
// snapshotted at BeginReload, and replays whatever was buffered during the
// window, in arrival order, directly into the handler captured at
// BeginReload (the same plugin instance, now restarted).
func (r *Router) EndReload(ctx context.Context, pluginID string) error {
	r.mu.Lock()
	rb, ok := r.reloading[pluginID]
	delete(r.reloading, pluginID)
	if ok {
		kept := r.subscribers[:0]
		for _, e := range r.subscribers {
			if e.sub.PluginID != pluginID {
				kept = append(kept, e)
			}
		}
		r.subscribers = kept
		for _, sub := range rb.subs {
			r.subscribers = append(r.subscribers, subscriberEntry{sub: sub, handler: rb.handler})
		}
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	for _, d := range rb.buffer {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("router: encode replay delta: %w", err)
		}
		if _, err := rb.handler.HandleDelta(ctx, string(payload)); err != nil {
			return fmt.Errorf("router: replay to %s: %w", pluginID, err)
		}
	}
	return nil
}
