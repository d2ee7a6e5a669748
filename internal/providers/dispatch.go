package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoProvider means no plugin is registered (or selectable as default)
// for the requested export; callers typically map this to 404.
var ErrNoProvider = errors.New("providers: no provider available")

// ErrNotImplemented means the target plugin is loaded but does not export
// the requested function; callers typically map this to 501.
var ErrNotImplemented = errors.New("providers: provider does not implement export")

// PluginLookup resolves a plugin ID to its callable instance; the Host
// wiring layer supplies this (it owns the plugin registry, not this
// package).
type PluginLookup func(pluginID string) (Caller, bool)

// Dispatcher routes a request against a TypedRegistry to its default
// provider's guest export, falling back to a named provider when the
// caller specifies one explicitly (spec §4.J: callers may target a
// non-default provider by ID).
type Dispatcher struct {
	registry   *TypedRegistry
	lookup     PluginLookup
	exportName string
}

func NewDispatcher(registry *TypedRegistry, lookup PluginLookup, exportName string) *Dispatcher {
	return &Dispatcher{registry: registry, lookup: lookup, exportName: exportName}
}

// Dispatch calls the requested provider (or the registry's current
// default if pluginID is empty) with payloadJSON.
func (d *Dispatcher) Dispatch(ctx context.Context, pluginID, payloadJSON string) (string, error) {
	target := pluginID
	if target == "" {
		def, ok := d.registry.Default()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNoProvider, d.exportName)
		}
		target = def
	}

	caller, ok := d.lookup(target)
	if !ok {
		return "", fmt.Errorf("%w: %s not loaded", ErrNoProvider, target)
	}

	result, handled, err := caller.CallExport(ctx, d.exportName, payloadJSON)
	if err != nil {
		return "", fmt.Errorf("providers: %s %s: %w", target, d.exportName, err)
	}
	if !handled {
		return "", fmt.Errorf("%w: %s %s", ErrNotImplemented, target, d.exportName)
	}
	return result, nil
}

// SynthesizePutHandlerName builds the guest export name the host calls to
// complete a PUT action (spec §4.J / §6): dots in both the context and
// path are replaced with underscores and joined as
// handle_put_<context>_<path>.
func SynthesizePutHandlerName(pathContext, path string) string {
	ctxPart := strings.ReplaceAll(pathContext, ".", "_")
	pathPart := strings.ReplaceAll(path, ".", "_")
	return "handle_put_" + ctxPart + "_" + pathPart
}
