package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// Runtime owns the shared wazero engine and host import module every
// plugin instance is linked against.
type Runtime struct {
	engine wazero.Runtime
	env    wazero.CompiledModule
	cb     Callbacks
	logger *zap.Logger
}

// New constructs a Runtime, compiling the shared "env" host module once.
func New(ctx context.Context, cb Callbacks, logger *zap.Logger) (*Runtime, error) {
	engine := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, engine); err != nil {
		engine.Close(ctx)
		return nil, fmt.Errorf("runtime: instantiate wasi: %w", err)
	}

	env, err := registerHostFunctions(ctx, engine)
	if err != nil {
		engine.Close(ctx)
		return nil, fmt.Errorf("runtime: compile host imports: %w", err)
	}

	return &Runtime{engine: engine, env: env, cb: cb, logger: logger}, nil
}

// LoadSpec describes everything Load needs to bring a plugin's compiled
// module up as a running instance.
type LoadSpec struct {
	PluginID       string
	WASMBytes      []byte
	Capabilities   Capabilities
	VFSRoot        string
	MaxMemoryPages uint32
}

// Load compiles the module, classifies its
// dialect, instantiates it with the plugin's VFS mounted at "/", and
// returns a Plugin ready to drive.
func (rt *Runtime) Load(ctx context.Context, spec LoadSpec) (*Plugin, error) {
	compiled, err := rt.engine.CompileModule(ctx, spec.WASMBytes)
	if err != nil {
		return nil, fmt.Errorf("runtime: compile module: %w", err)
	}

	dialect, err := Classify(compiled)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	modConfig := wazero.NewModuleConfig().
		WithName(spec.PluginID).
		WithStartFunctions(). // defer invoking _start (dialect C) until Start()
		WithFSConfig(wazero.NewFSConfig().WithDirMount(spec.VFSRoot, "/"))

	hs := &hostState{pluginID: spec.PluginID, caps: spec.Capabilities, cb: rt.cb}
	instCtx := contextWithHostState(ctx, hs)

	mod, err := rt.engine.InstantiateModule(instCtx, compiled, modConfig)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("runtime: instantiate module: %w", err)
	}

	in := &instance{mod: mod, dialect: dialect}
	return &Plugin{
		id:       spec.PluginID,
		dialect:  dialect,
		compiled: compiled,
		pool:     newInstancePool(in),
		caps:     spec.Capabilities,
		cb:       rt.cb,
		logger:   rt.logger.With(zap.String("plugin_id", spec.PluginID)),
	}, nil
}

// Close releases the shared engine and every module still compiled against
// it. Callers must close every Plugin first.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.engine.Close(ctx)
}
