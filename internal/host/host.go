package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skwasm/pluginhost/internal/capability"
	hostconfig "github.com/skwasm/pluginhost/internal/config"
	"github.com/skwasm/pluginhost/internal/delta"
	"github.com/skwasm/pluginhost/internal/httpbridge"
	"github.com/skwasm/pluginhost/internal/interceptors"
	"github.com/skwasm/pluginhost/internal/lifecycle"
	"github.com/skwasm/pluginhost/internal/providers"
	"github.com/skwasm/pluginhost/internal/router"
	"github.com/skwasm/pluginhost/internal/runtime"
	"github.com/skwasm/pluginhost/internal/socket"
	"github.com/skwasm/pluginhost/internal/stream"
	"github.com/skwasm/pluginhost/internal/vfs"
	"go.uber.org/zap"
)

// DataSource resolves a marine-data path read on behalf of a plugin. The
// embedding server supplies this; the plugin host has no data store of
// its own (spec §1 external collaborator: read_path).
type DataSource interface {
	ReadPath(pathContext, path string) (string, bool)
}

// noopDataSource is used when the host is constructed without a real
// data source wired in (e.g. standalone tests of the plugin machinery).
type noopDataSource struct{}

func (noopDataSource) ReadPath(string, string) (string, bool) { return "", false }

// loadedPlugin bundles everything the Host tracks per plugin.
type loadedPlugin struct {
	plugin  *runtime.Plugin
	record  *lifecycle.Record
	caps    capability.Set
	sockets *socket.Manager
	bridge  *httpbridge.Bridge
	charts  *interceptors.ChartTileHandler
}

// Host is the single value all plugin-host state hangs off of.
type Host struct {
	mu      sync.Mutex
	plugins map[string]*loadedPlugin

	rt         *runtime.Runtime
	lifecycle  *lifecycle.Manager
	router     *router.Router
	puts       *providers.PutRegistry
	resources  map[string]*providers.TypedRegistry
	weather    *providers.TypedRegistry
	radar      *providers.TypedRegistry
	streams    *stream.Manager
	dataSource DataSource
	commands   map[string]func(args []string) ([]byte, error)

	configRoot string
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New constructs a Host. dataSource may be nil, in which case path reads
// always report not-found.
func New(ctx context.Context, configRoot string, dataSource DataSource, logger *zap.Logger) (*Host, error) {
	if dataSource == nil {
		dataSource = noopDataSource{}
	}
	h := &Host{
		plugins:    make(map[string]*loadedPlugin),
		router:     router.New(logger),
		puts:       providers.NewPutRegistry(),
		resources:  make(map[string]*providers.TypedRegistry),
		weather:    providers.NewTypedRegistry(),
		radar:      providers.NewTypedRegistry(),
		streams:    stream.NewManager(),
		dataSource: dataSource,
		commands:   make(map[string]func(args []string) ([]byte, error)),
		configRoot: configRoot,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	h.lifecycle = lifecycle.NewManager(h, logger)
	h.registerHostRoutes()

	rt, err := runtime.New(ctx, h, logger)
	if err != nil {
		return nil, fmt.Errorf("host: construct runtime: %w", err)
	}
	h.rt = rt
	return h, nil
}

// Mux returns the HTTP handler every plugin's endpoints (and admin
// surface) is registered under.
func (h *Host) Mux() *http.ServeMux { return h.mux }

// RegisterCommand allowlists a host command a plugin may invoke via
// sk_exec_command. Unregistered names are always denied.
func (h *Host) RegisterCommand(name string, fn func(args []string) ([]byte, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = fn
}

// RegisterLogRoute wires the Hybrid Interceptors' subprocess-backed log
// retrieval (spec §4.G item 1) onto GET /api/logs. Not called from New
// since a meaningful LogRetrievalCommand depends on process-level
// deployment details (where the log file lives, what tool reads it) the
// Host itself has no opinion on.
func (h *Host) RegisterLogRoute(cmd interceptors.LogRetrievalCommand) {
	h.mux.Handle("GET /api/logs", interceptors.LogStreamHandler(cmd))
}

// LoadPlugin compiles and registers a plugin from its manifest directory,
// wiring its VFS, HTTP endpoints, and lifecycle record, but does not
// start it (spec §4.I: load and start are distinct operations).
func (h *Host) LoadPlugin(ctx context.Context, pluginID, manifestDir string) error {
	manifest, err := LoadManifest(filepath.Join(manifestDir, "package.json"))
	if err != nil {
		return err
	}

	wasmBytes, err := os.ReadFile(manifest.WASMPath(manifestDir))
	if err != nil {
		return fmt.Errorf("host: read wasm for %s: %w", pluginID, err)
	}

	if err := vfs.MigrateLegacy(h.configRoot, pluginID); err != nil {
		return fmt.Errorf("host: migrate legacy vfs for %s: %w", pluginID, err)
	}
	pluginVFS, err := vfs.Ensure(h.configRoot, pluginID)
	if err != nil {
		return fmt.Errorf("host: ensure vfs for %s: %w", pluginID, err)
	}

	caps := capability.ParseSet(manifest.WasmCapabilities)
	maxPages := manifest.MaxMemoryPages
	if maxPages == 0 {
		maxPages = 256
	}

	plugin, err := h.rt.Load(ctx, runtime.LoadSpec{
		PluginID:       pluginID,
		WASMBytes:      wasmBytes,
		Capabilities:   caps,
		VFSRoot:        pluginVFS.Root,
		MaxMemoryPages: maxPages,
	})
	if err != nil {
		return fmt.Errorf("host: load plugin %s: %w", pluginID, err)
	}

	lp := &loadedPlugin{
		plugin:  plugin,
		caps:    caps,
		sockets: socket.NewManager(),
		bridge:  httpbridge.New(pluginID, plugin, h.logger),
		charts: interceptors.NewChartTileHandler(
			filepath.Join(pluginVFS.Root, "data", "charts"),
			filepath.Join(pluginVFS.Root, "tmp"),
			plugin,
		),
	}
	lp.record = h.lifecycle.Register(pluginID, plugin)

	h.mu.Lock()
	h.plugins[pluginID] = lp
	h.mu.Unlock()

	h.registerPluginRoutes(ctx, pluginID, lp)
	return nil
}

// StartPlugin transitions a loaded plugin to running with the given
// stored configuration.
func (h *Host) StartPlugin(ctx context.Context, pluginID string, configJSON string) error {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return fmt.Errorf("host: plugin %s not loaded", pluginID)
	}
	if err := lp.record.Start(ctx, configJSON); err != nil {
		return err
	}
	h.refreshBridgeRoutes(ctx, pluginID, lp)
	return nil
}

// StopPlugin stops a running plugin and releases its resources.
func (h *Host) StopPlugin(ctx context.Context, pluginID string) error {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return fmt.Errorf("host: plugin %s not loaded", pluginID)
	}
	return lp.record.Stop(ctx, h)
}

// ReloadPlugin stops and restarts a running plugin with fresh
// configuration, preserving delta subscriptions across the gap: the
// router buffers any matching delta that arrives mid-reload and replays
// it once the guest is back up (spec §4.H / §4.I), and the HTTP bridge's
// route table is rebuilt from whatever endpoint manifest the restarted
// guest now declares.
func (h *Host) ReloadPlugin(ctx context.Context, pluginID, configJSON string) error {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return fmt.Errorf("host: plugin %s not loaded", pluginID)
	}

	h.router.BeginReload(pluginID)
	if err := lp.record.Reload(ctx, h, configJSON); err != nil {
		return err
	}
	if err := h.router.EndReload(ctx, pluginID); err != nil {
		h.logger.Error("failed replaying buffered deltas after reload",
			zap.String("plugin_id", pluginID), zap.Error(err))
	}
	h.refreshBridgeRoutes(ctx, pluginID, lp)
	return nil
}

// refreshBridgeRoutes re-fetches a plugin's http_endpoints() manifest and
// rebuilds its HTTP bridge route table to match, done after every start
// and reload since the manifest may change between restarts.
func (h *Host) refreshBridgeRoutes(ctx context.Context, pluginID string, lp *loadedPlugin) {
	eps, err := lp.bridge.Endpoints(ctx)
	if err != nil {
		h.logger.Warn("failed fetching plugin http endpoint manifest",
			zap.String("plugin_id", pluginID), zap.Error(err))
		return
	}
	lp.bridge.SetEndpoints(eps)
}

// UnloadPlugin stops (if running) and fully removes a plugin, closing its
// guest module.
func (h *Host) UnloadPlugin(ctx context.Context, pluginID string) error {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return nil
	}
	lp.record.Stop(ctx, h)
	h.lifecycle.Forget(pluginID)

	h.mu.Lock()
	delete(h.plugins, pluginID)
	h.mu.Unlock()

	return lp.plugin.Close(ctx)
}

func (h *Host) lookupLoaded(pluginID string) (*loadedPlugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lp, ok := h.plugins[pluginID]
	return lp, ok
}

// pluginCaller adapts the Host's plugin registry to providers.PluginLookup.
func (h *Host) pluginCaller(pluginID string) (providers.Caller, bool) {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return nil, false
	}
	return lp.plugin, true
}

// ReleasePlugin implements lifecycle.Teardown: it closes the plugin's
// sockets, drops its delta subscriptions and provider registrations, and
// empties its VFS tmp/ directory, without unloading the guest module
// itself, so the same record can be restarted later. WebSocket stream
// clients and the plugin's HTTP routes are left in place.
func (h *Host) ReleasePlugin(pluginID string) {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return
	}
	lp.sockets.CloseAll()
	h.router.Unsubscribe(pluginID)
	h.puts.Unregister(pluginID)
	h.weather.Unregister(pluginID)
	h.radar.Unregister(pluginID)
	h.mu.Lock()
	for _, reg := range h.resources {
		reg.Unregister(pluginID)
	}
	h.mu.Unlock()
	pluginVFS := &vfs.VFS{Root: vfs.Root(h.configRoot, pluginID)}
	if err := pluginVFS.CleanTemp(); err != nil {
		h.logger.Warn("failed cleaning plugin tmp directory",
			zap.String("plugin_id", pluginID), zap.Error(err))
	}
}

// registerPluginRoutes mounts a single plugin's own HTTP surface: its
// declared endpoints, admin info/config, and (for a charts-capable
// plugin) its chart tile and upload routes.
func (h *Host) registerPluginRoutes(ctx context.Context, pluginID string, lp *loadedPlugin) {
	prefix := "/plugins/" + pluginID
	h.mux.Handle(prefix+"/", http.StripPrefix(prefix, lp.bridge))
	h.mux.Handle(prefix, httpbridge.ServeInfo(httpbridge.PluginInfo{
		ID:      pluginID,
		Dialect: lp.plugin.Dialect().String(),
	}))
	h.mux.Handle(prefix+"/config", httpbridge.NewConfigEndpoint(pluginID, h.configRoot, func(oldCfg, newCfg *hostconfig.PluginConfig) {
		h.onConfigUpdated(ctx, pluginID, lp, oldCfg, newCfg)
	}))

	if lp.caps.ResourceProvider {
		h.mux.HandleFunc("GET "+prefix+"/tiles/{chartId}/{z}/{x}/{y}", func(w http.ResponseWriter, r *http.Request) {
			z, x, y, ok := parseTileCoords(r)
			if !ok {
				http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
				return
			}
			lp.charts.ServeTile(w, r, r.PathValue("chartId"), z, x, y)
		})
		h.mux.HandleFunc("POST "+prefix+"/api/charts/upload", lp.charts.UploadChart)
		h.mux.HandleFunc("DELETE "+prefix+"/api/charts/file/{id}", func(w http.ResponseWriter, r *http.Request) {
			lp.charts.DeleteChart(w, r, r.PathValue("id"))
		})
	}
}

func parseTileCoords(r *http.Request) (z, x, y int, ok bool) {
	var err error
	if z, err = atoiPathValue(r, "z"); err != nil {
		return 0, 0, 0, false
	}
	if x, err = atoiPathValue(r, "x"); err != nil {
		return 0, 0, 0, false
	}
	if y, err = atoiPathValue(r, "y"); err != nil {
		return 0, 0, 0, false
	}
	return z, x, y, true
}

func atoiPathValue(r *http.Request, name string) (int, error) {
	var n int
	_, err := fmt.Sscanf(r.PathValue(name), "%d", &n)
	return n, err
}

// onConfigUpdated applies the config-POST rules (spec §4.I): an
// enable/disable transition always drives Start or Stop directly, never a
// reload; a configuration change while the plugin is already running
// triggers a reload; a configuration change while stopped or disabled is
// simply persisted, with no forced start.
func (h *Host) onConfigUpdated(ctx context.Context, pluginID string, lp *loadedPlugin, oldCfg, newCfg *hostconfig.PluginConfig) {
	switch {
	case newCfg.Enabled && !oldCfg.Enabled:
		configJSON, err := hostconfig.MergedStartJSON(newCfg)
		if err != nil {
			h.logger.Error("failed encoding plugin start config", zap.String("plugin_id", pluginID), zap.Error(err))
			return
		}
		if err := h.StartPlugin(ctx, pluginID, configJSON); err != nil {
			h.logger.Error("plugin start-on-enable failed", zap.String("plugin_id", pluginID), zap.Error(err))
		}
	case !newCfg.Enabled && oldCfg.Enabled:
		if err := h.StopPlugin(ctx, pluginID); err != nil {
			h.logger.Error("plugin stop-on-disable failed", zap.String("plugin_id", pluginID), zap.Error(err))
		}
	case newCfg.Enabled && lp.record.State() == lifecycle.StateRunning:
		configJSON, err := hostconfig.MergedStartJSON(newCfg)
		if err != nil {
			h.logger.Error("failed encoding plugin reload config", zap.String("plugin_id", pluginID), zap.Error(err))
			return
		}
		if err := h.ReloadPlugin(ctx, pluginID, configJSON); err != nil {
			h.logger.Error("plugin reload-on-config-change failed", zap.String("plugin_id", pluginID), zap.Error(err))
		}
	default:
		// Still disabled, or enabled but not currently running: the new
		// config is already persisted; nothing to start.
	}
}

// DispatchDelta routes a marine-data delta to every subscribed plugin.
func (h *Host) DispatchDelta(ctx context.Context, d delta.Delta) {
	h.router.Dispatch(ctx, d)
}

// Subscribe registers pluginID's interest in deltas matching the given
// globs, using its loaded plugin as the dispatch target.
func (h *Host) Subscribe(pluginID, contextGlob, pathGlob string) error {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return fmt.Errorf("host: plugin %s not loaded", pluginID)
	}
	h.router.Subscribe(delta.Subscription{PluginID: pluginID, ContextGlob: contextGlob, PathGlob: pathGlob}, lp.plugin)
	return nil
}

// ResourceRegistry returns (creating if necessary) the provider registry
// for a given resource type.
func (h *Host) ResourceRegistry(resourceType string) *providers.TypedRegistry {
	h.mu.Lock()
	defer h.mu.Unlock()
	reg, ok := h.resources[resourceType]
	if !ok {
		reg = providers.NewTypedRegistry()
		h.resources[resourceType] = reg
	}
	return reg
}

// PutResult is the outcome of completing a registered PUT action,
// returned to whichever external REST router collaborator drives PUT
// requests into the plugin host (spec §1 external collaborator:
// register_put_action).
type PutResult struct {
	State      string `json:"state"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

// DispatchPut completes a PUT action previously registered by a plugin
// via sk_register_put_handler (spec §4.J, scenario S1): it looks up which
// plugin owns (pathContext, path), synthesizes that plugin's handler
// export name, calls it with valueJSON, and interprets the guest's
// {state, statusCode, message} response. A path with no registered
// handler, or whose plugin no longer implements the export, reports 501.
func (h *Host) DispatchPut(ctx context.Context, pathContext, path, valueJSON string) (PutResult, error) {
	handler, ok := h.puts.Lookup(pathContext, path)
	if !ok {
		return PutResult{State: "NOT_SUPPORTED", StatusCode: http.StatusNotImplemented}, nil
	}

	caller, ok := h.pluginCaller(handler.PluginID)
	if !ok {
		return PutResult{State: "NOT_SUPPORTED", StatusCode: http.StatusNotImplemented}, nil
	}

	exportName := providers.SynthesizePutHandlerName(pathContext, path)
	raw, handled, err := caller.CallExport(ctx, exportName, valueJSON)
	if err != nil {
		return PutResult{}, fmt.Errorf("host: put %s %s: %w", pathContext, path, err)
	}
	if !handled {
		return PutResult{State: "NOT_SUPPORTED", StatusCode: http.StatusNotImplemented}, nil
	}

	var result PutResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return PutResult{}, fmt.Errorf("host: put %s %s: malformed handler response: %w", pathContext, path, err)
	}
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	return result, nil
}

// registerHostRoutes mounts the plugin-host-owned HTTP surface that isn't
// specific to any one plugin: resource/weather/radar provider dispatch
// and the stream WebSocket endpoints (spec §6).
func (h *Host) registerHostRoutes() {
	h.mux.HandleFunc("GET /signalk/v2/api/resources/{type}", h.handleResourceList)
	h.mux.HandleFunc("GET /signalk/v2/api/resources/{type}/{id}", h.handleResourceGet)
	h.mux.HandleFunc("PUT /signalk/v2/api/resources/{type}/{id}", h.handleResourceSet)
	h.mux.HandleFunc("POST /signalk/v2/api/resources/{type}/{id}", h.handleResourceSet)
	h.mux.HandleFunc("DELETE /signalk/v2/api/resources/{type}/{id}", h.handleResourceDelete)

	h.mux.HandleFunc("GET /signalk/v2/api/weather/observations", h.weatherHandler("weather_get_observations", ""))
	h.mux.HandleFunc("GET /signalk/v2/api/weather/forecasts/daily", h.weatherHandler("weather_get_forecasts", "daily"))
	h.mux.HandleFunc("GET /signalk/v2/api/weather/forecasts/point", h.weatherHandler("weather_get_forecasts", "point"))
	h.mux.HandleFunc("GET /signalk/v2/api/weather/warnings", h.weatherHandler("weather_get_warnings", ""))
	h.mux.HandleFunc("GET /signalk/v2/api/weather/_providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, h.weather.Providers())
	})

	h.mux.HandleFunc("GET /signalk/v2/api/vessels/self/radars", h.handleRadarList)
	h.mux.HandleFunc("GET /signalk/v2/api/vessels/self/radars/{id}", h.handleRadarInfo)
	for _, control := range []string{"power", "range", "gain", "sea", "rain"} {
		control := control
		h.mux.HandleFunc("PUT /signalk/v2/api/vessels/self/radars/{id}/"+control, func(w http.ResponseWriter, r *http.Request) {
			h.handleRadarControl(w, r, control)
		})
	}
	h.mux.HandleFunc("GET /signalk/v2/api/vessels/self/radars/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		h.streams.ServeWS(w, r, stream.RadarStreamID(r.PathValue("id")))
	})

	h.mux.HandleFunc("GET /signalk/v2/api/streams/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.streams.ServeWS(w, r, r.PathValue("id"))
	})
}

// resourceEnvelope is the payload every resource_{list,get,set,delete}
// export receives.
type resourceEnvelope struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Query string          `json:"query,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (h *Host) handleResourceList(w http.ResponseWriter, r *http.Request) {
	h.dispatchResource(w, r, "resource_list", resourceEnvelope{Type: r.PathValue("type"), Query: r.URL.RawQuery})
}

func (h *Host) handleResourceGet(w http.ResponseWriter, r *http.Request) {
	h.dispatchResource(w, r, "resource_get", resourceEnvelope{Type: r.PathValue("type"), ID: r.PathValue("id"), Query: r.URL.RawQuery})
}

func (h *Host) handleResourceSet(w http.ResponseWriter, r *http.Request) {
	value := readRequestValue(r)
	h.dispatchResource(w, r, "resource_set", resourceEnvelope{Type: r.PathValue("type"), ID: r.PathValue("id"), Value: value})
}

func (h *Host) handleResourceDelete(w http.ResponseWriter, r *http.Request) {
	h.dispatchResource(w, r, "resource_delete", resourceEnvelope{Type: r.PathValue("type"), ID: r.PathValue("id")})
}

func (h *Host) dispatchResource(w http.ResponseWriter, r *http.Request, exportName string, env resourceEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		http.Error(w, "failed encoding request", http.StatusInternalServerError)
		return
	}
	reg := h.ResourceRegistry(env.Type)
	result, err := providers.NewDispatcher(reg, h.pluginCaller, exportName).Dispatch(r.Context(), "", string(payload))
	h.writeProviderResult(w, result, err)
}

func (h *Host) weatherHandler(exportName, forecastType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(map[string]string{"type": forecastType, "query": r.URL.RawQuery})
		if err != nil {
			http.Error(w, "failed encoding request", http.StatusInternalServerError)
			return
		}
		result, err := providers.NewDispatcher(h.weather, h.pluginCaller, exportName).Dispatch(r.Context(), "", string(payload))
		h.writeProviderResult(w, result, err)
	}
}

func (h *Host) handleRadarList(w http.ResponseWriter, r *http.Request) {
	result, err := providers.NewDispatcher(h.radar, h.pluginCaller, "radar_get_radars").Dispatch(r.Context(), "", "{}")
	h.writeProviderResult(w, result, err)
}

func (h *Host) handleRadarInfo(w http.ResponseWriter, r *http.Request) {
	payload, _ := json.Marshal(map[string]string{"id": r.PathValue("id")})
	result, err := providers.NewDispatcher(h.radar, h.pluginCaller, "radar_get_info").Dispatch(r.Context(), "", string(payload))
	h.writeProviderResult(w, result, err)
}

var radarControlExports = map[string]string{
	"power": "setPower",
	"range": "setRange",
	"gain":  "setGain",
	"sea":   "setSea",
	"rain":  "setRain",
}

// handleRadarControl dispatches a single-control PUT straight to its own
// named mutator export (setPower, setRange, ...) rather than falling back
// to a generic setControls: a provider that implements setGain but not
// setControls must still be able to serve a gain PUT (spec §4.J open
// question, decided yes).
func (h *Host) handleRadarControl(w http.ResponseWriter, r *http.Request, control string) {
	exportName, ok := radarControlExports[control]
	if !ok {
		http.NotFound(w, r)
		return
	}
	value := readRequestValue(r)
	payload, err := json.Marshal(map[string]interface{}{"id": r.PathValue("id"), "value": value})
	if err != nil {
		http.Error(w, "failed encoding request", http.StatusInternalServerError)
		return
	}
	result, err := providers.NewDispatcher(h.radar, h.pluginCaller, exportName).Dispatch(r.Context(), "", string(payload))
	h.writeProviderResult(w, result, err)
}

func (h *Host) writeProviderResult(w http.ResponseWriter, result string, err error) {
	if err != nil {
		switch {
		case errors.Is(err, providers.ErrNoProvider):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, providers.ErrNotImplemented):
			http.Error(w, err.Error(), http.StatusNotImplemented)
		default:
			h.logger.Error("provider dispatch failed", zap.Error(err))
			http.Error(w, "provider request failed", http.StatusBadGateway)
		}
		return
	}
	if result == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(result))
}

// readRequestValue reads a request body, embedding it directly as raw
// JSON when it already is valid JSON and quoting it as a string
// otherwise, matching the httpbridge request envelope's double-encoding
// avoidance rule (spec §4.F) for host-owned routes too.
func readRequestValue(r *http.Request) json.RawMessage {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return nil
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
