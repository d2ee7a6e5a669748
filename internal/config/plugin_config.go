package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PluginConfig is the host-side sidecar persisted at
// <config_root>/plugin-config-data/<plugin_id>.json (spec §3, §6). It lives
// outside the plugin's VFS.
type PluginConfig struct {
	Enabled       bool                   `json:"enabled"`
	EnableDebug   bool                   `json:"enableDebug"`
	Configuration map[string]interface{} `json:"configuration"`
}

// PluginConfigPath returns the path to a plugin's sidecar file.
func PluginConfigPath(configRoot, pluginID string) string {
	return filepath.Join(configRoot, "plugin-config-data", pluginID+".json")
}

// LoadPluginConfig reads a plugin's sidecar, creating defaults (disabled,
// empty configuration) if the file does not yet exist.
func LoadPluginConfig(configRoot, pluginID string) (*PluginConfig, error) {
	path := PluginConfigPath(configRoot, pluginID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &PluginConfig{Configuration: map[string]interface{}{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var pc PluginConfig
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, err
	}
	if pc.Configuration == nil {
		pc.Configuration = map[string]interface{}{}
	}
	return &pc, nil
}

// SavePluginConfig persists a plugin's sidecar atomically (write to a temp
// file in the same directory, then rename) so a crash mid-write never
// leaves a truncated config behind.
func SavePluginConfig(configRoot, pluginID string, pc *PluginConfig) error {
	path := PluginConfigPath(configRoot, pluginID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MergedStartJSON builds the JSON object passed to a guest's "start"
// export: the persisted configuration plus the enableDebug flag merged in
// at the top level (spec §4.I), e.g. {"enableDebug":false,"updateRate":1000}.
func MergedStartJSON(pc *PluginConfig) (string, error) {
	merged := make(map[string]interface{}, len(pc.Configuration)+1)
	for k, v := range pc.Configuration {
		merged[k] = v
	}
	merged["enableDebug"] = pc.EnableDebug
	data, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
