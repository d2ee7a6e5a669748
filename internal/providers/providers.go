// Package providers implements the Provider Registries (spec §4.J): PUT
// action handlers, and the resource/weather/radar provider registries
// each with default-provider promotion when the current default
// unregisters.
package providers

import (
	"context"
	"sync"
)

// Caller is the subset of runtime.Plugin a registry needs to dispatch
// into a guest export.
type Caller interface {
	CallExport(ctx context.Context, exportName, payloadJSON string) (resultJSON string, ok bool, err error)
}

// PutHandler identifies one plugin's registration of a writable path.
type PutHandler struct {
	PluginID string
	Context  string
	Path     string
}

// PutRegistry maps (context, path) to the plugin that registered a PUT
// handler for it. Last registration for a given key wins, matching the
// guest-visible "most recently (re)started plugin owns the path" rule.
type PutRegistry struct {
	mu       sync.Mutex
	handlers map[string]PutHandler
}

func NewPutRegistry() *PutRegistry {
	return &PutRegistry{handlers: make(map[string]PutHandler)}
}

func putKey(context, path string) string { return context + "\x00" + path }

// Register records pluginID as the handler of context/path.
func (r *PutRegistry) Register(pluginID, context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[putKey(context, path)] = PutHandler{PluginID: pluginID, Context: context, Path: path}
}

// Lookup finds which plugin, if any, handles a PUT to context/path.
func (r *PutRegistry) Lookup(context, path string) (PutHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[putKey(context, path)]
	return h, ok
}

// Unregister removes every handler owned by pluginID (plugin stop/crash).
func (r *PutRegistry) Unregister(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.handlers {
		if h.PluginID == pluginID {
			delete(r.handlers, k)
		}
	}
}

// TypedRegistry tracks every plugin registered as a provider of some kind
// (resource type, weather, radar) and which one is currently the default.
// Unregistering the default promotes the next-registered provider, if any
// remain, to default (spec §4.J invariant).
type TypedRegistry struct {
	mu        sync.Mutex
	providers []string // plugin IDs, in registration order
	def       string
	names     map[string]string // plugin ID -> display name, for providers that register one (e.g. radar)
}

func NewTypedRegistry() *TypedRegistry {
	return &TypedRegistry{}
}

// Register adds pluginID as a provider. The first provider registered
// becomes the default automatically.
func (r *TypedRegistry) Register(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p == pluginID {
			return
		}
	}
	r.providers = append(r.providers, pluginID)
	if r.def == "" {
		r.def = pluginID
	}
}

// RegisterNamed is Register plus a display name carried alongside the
// plugin ID (spec §6: sk_register_radar_provider(name, len)). A plugin
// re-registering updates its stored name.
func (r *TypedRegistry) RegisterNamed(pluginID, name string) {
	r.Register(pluginID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = make(map[string]string)
	}
	r.names[pluginID] = name
}

// Name returns the display name a provider registered with RegisterNamed,
// if any.
func (r *TypedRegistry) Name(pluginID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[pluginID]
	return name, ok
}

// Unregister removes pluginID, promoting the next remaining provider (in
// registration order) to default if pluginID was the default.
func (r *TypedRegistry) Unregister(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.providers[:0]
	for _, p := range r.providers {
		if p != pluginID {
			kept = append(kept, p)
		}
	}
	r.providers = kept
	delete(r.names, pluginID)

	if r.def == pluginID {
		if len(r.providers) > 0 {
			r.def = r.providers[0]
		} else {
			r.def = ""
		}
	}
}

// SetDefault explicitly promotes pluginID to default, if registered.
func (r *TypedRegistry) SetDefault(pluginID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.providers {
		if p == pluginID {
			r.def = pluginID
			return true
		}
	}
	return false
}

// Default returns the current default provider, if any.
func (r *TypedRegistry) Default() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def == "" {
		return "", false
	}
	return r.def, true
}

// Providers lists every registered provider in registration order.
func (r *TypedRegistry) Providers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.providers))
	copy(out, r.providers)
	return out
}
