package httpbridge

import (
	"encoding/json"
	"net/http"

	"github.com/skwasm/pluginhost/internal/config"
)

// PluginInfo is what GET /plugins/<id> reports about a loaded plugin,
// independent of anything the guest itself exposes.
type PluginInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Dialect string `json:"dialect"`
}

// ConfigEndpoint serves a single plugin's admin config surface:
// GET returns the current stored configuration, POST replaces it. The
// caller's onUpdate hook receives both the config as it was before this
// POST and the newly-saved one, since the enable/disable transition and a
// running-config change are distinct rules the caller must tell apart
// (spec §4.I) rather than always forcing a stop-then-start.
type ConfigEndpoint struct {
	pluginID   string
	configRoot string
	onUpdate   func(oldCfg, newCfg *config.PluginConfig)
}

func NewConfigEndpoint(pluginID, configRoot string, onUpdate func(oldCfg, newCfg *config.PluginConfig)) *ConfigEndpoint {
	return &ConfigEndpoint{pluginID: pluginID, configRoot: configRoot, onUpdate: onUpdate}
}

func (e *ConfigEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := config.LoadPluginConfig(e.configRoot, e.pluginID)
		if err != nil {
			http.Error(w, "failed loading plugin config", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	case http.MethodPost:
		oldCfg, err := config.LoadPluginConfig(e.configRoot, e.pluginID)
		if err != nil {
			http.Error(w, "failed loading plugin config", http.StatusInternalServerError)
			return
		}
		var newCfg config.PluginConfig
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			http.Error(w, "invalid config body", http.StatusBadRequest)
			return
		}
		if err := config.SavePluginConfig(e.configRoot, e.pluginID, &newCfg); err != nil {
			http.Error(w, "failed saving plugin config", http.StatusInternalServerError)
			return
		}
		if e.onUpdate != nil {
			e.onUpdate(oldCfg, &newCfg)
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ServeInfo handles GET /plugins/<id>.
func ServeInfo(info PluginInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}
}
