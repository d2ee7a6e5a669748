package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Plugin is the normalized handle the rest of the host drives a loaded
// guest module through, regardless of which ABI dialect it implements.
type Plugin struct {
	id       string
	dialect  Dialect
	compiled wazero.CompiledModule
	pool     *instancePool
	caps     Capabilities
	cb       Callbacks
	logger   *zap.Logger

	started atomic.Bool
	closed  atomic.Bool
}

// ID returns the plugin identifier Load was given.
func (p *Plugin) ID() string { return p.id }

// Dialect reports which guest ABI convention this plugin implements.
func (p *Plugin) Dialect() Dialect { return p.dialect }

// Metadata returns the guest's self-reported id/name/schema JSON export
// values, whichever of the three the module implements. A missing export
// yields the empty string rather than an error: metadata is advisory.
func (p *Plugin) Metadata(ctx context.Context) (id, name, schema string, err error) {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return "", "", "", err
	}
	defer p.pool.giveBack(in)

	id, _, err = in.callJSON(ctx, "id", "")
	if err != nil {
		return "", "", "", fmt.Errorf("runtime: %s id(): %w", p.id, err)
	}
	name, _, err = in.callJSON(ctx, "name", "")
	if err != nil {
		return "", "", "", fmt.Errorf("runtime: %s name(): %w", p.id, err)
	}
	schema, _, err = in.callJSON(ctx, "schema", "")
	if err != nil {
		return "", "", "", fmt.Errorf("runtime: %s schema(): %w", p.id, err)
	}
	return id, name, schema, nil
}

// Start brings the guest up: for dialect C it first runs the deferred
// _start command entrypoint, then (for any dialect) invokes the optional
// "start" export with the plugin's merged configuration JSON.
func (p *Plugin) Start(ctx context.Context, configJSON string) error {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return err
	}
	defer p.pool.giveBack(in)

	if p.dialect == DialectC && p.started.CompareAndSwap(false, true) {
		if start := in.mod.ExportedFunction("_start"); start != nil {
			if _, err := start.Call(ctx); err != nil {
				return fmt.Errorf("runtime: %s _start: %w", p.id, err)
			}
		}
	}
	p.started.Store(true)

	startFn := in.mod.ExportedFunction("start")
	if startFn == nil {
		p.logger.Debug("plugin has no start export")
		return nil
	}
	if _, err := in.callJSONFn(ctx, startFn, configJSON); err != nil {
		return fmt.Errorf("runtime: %s start(): %w", p.id, err)
	}
	if _, err := in.awaitAsyncifyRewind(ctx, startFn, configJSON); err != nil {
		return fmt.Errorf("runtime: %s start() asyncify rewind: %w", p.id, err)
	}
	return nil
}

// Stop invokes the guest's optional "stop" export.
func (p *Plugin) Stop(ctx context.Context) error {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return err
	}
	defer p.pool.giveBack(in)

	if _, _, err := in.callJSON(ctx, "stop", ""); err != nil {
		return fmt.Errorf("runtime: %s stop(): %w", p.id, err)
	}
	return nil
}

// Poll invokes the guest's optional "poll" export, used to let plugins do
// periodic housekeeping (draining a UDP socket, checking a timer) outside
// of any delta or HTTP dispatch.
func (p *Plugin) Poll(ctx context.Context) error {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return err
	}
	defer p.pool.giveBack(in)

	_, _, err = in.callJSON(ctx, "poll", "")
	return err
}

// HandleDelta forwards a matched delta to the guest's "handle_delta"
// export. ok reports whether the guest implements that export at all.
func (p *Plugin) HandleDelta(ctx context.Context, deltaJSON string) (ok bool, err error) {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return false, err
	}
	defer p.pool.giveBack(in)

	_, ok, err = in.callJSON(ctx, "handle_delta", deltaJSON)
	if err != nil {
		return true, fmt.Errorf("runtime: %s handle_delta(): %w", p.id, err)
	}
	return ok, nil
}

// HTTPEndpoints returns the guest's declared HTTP endpoint manifest, if
// the "http_endpoints" export exists.
func (p *Plugin) HTTPEndpoints(ctx context.Context) (manifestJSON string, ok bool, err error) {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return "", false, err
	}
	defer p.pool.giveBack(in)

	manifestJSON, ok, err = in.callJSON(ctx, "http_endpoints", "")
	if err != nil {
		return "", true, fmt.Errorf("runtime: %s http_endpoints(): %w", p.id, err)
	}
	return manifestJSON, ok, nil
}

// CallExport is the generic entry point used by the HTTP bridge and the
// provider registries to invoke an arbitrary JSON-in/JSON-out guest
// export by name (spec §4.F, §4.J).
func (p *Plugin) CallExport(ctx context.Context, exportName, payloadJSON string) (resultJSON string, ok bool, err error) {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return "", false, err
	}
	defer p.pool.giveBack(in)

	resultJSON, ok, err = in.callJSON(ctx, exportName, payloadJSON)
	if err != nil {
		return "", true, fmt.Errorf("runtime: %s %s(): %w", p.id, exportName, err)
	}
	return resultJSON, ok, nil
}

// HasExport reports whether the guest module exports the given function,
// without invoking it.
func (p *Plugin) HasExport(ctx context.Context, exportName string) bool {
	in, err := p.pool.borrow(ctx)
	if err != nil {
		return false
	}
	defer p.pool.giveBack(in)
	return in.hasExport(exportName)
}

// Close tears down the instance and the compiled module. Idempotent.
func (p *Plugin) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	in := p.pool.drain()
	if err := in.close(ctx); err != nil {
		p.compiled.Close(ctx)
		return fmt.Errorf("runtime: %s close instance: %w", p.id, err)
	}
	return p.compiled.Close(ctx)
}
