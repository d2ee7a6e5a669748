// Package host wires every component package into the single runnable
// plugin host: it implements runtime.Callbacks, owns the lifecycle
// manager, delta router, provider registries, socket/stream managers, and
// the top-level HTTP mux plugins are served under (spec §9 redesign flag:
// a single Host value rather than package-level singletons).
package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest is the subset of a plugin package's metadata the host reads to
// decide how to load it (spec §4.A capability declaration, §6 naming).
type Manifest struct {
	Name              string                 `json:"name"`
	Main              string                 `json:"main"`
	WasmCapabilities  map[string]interface{} `json:"wasmCapabilities"`
	MaxMemoryPages    uint32                 `json:"maxMemoryPages"`
}

// LoadManifest reads and decodes a plugin's package metadata file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("host: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("host: decode manifest %s: %w", path, err)
	}
	if m.Main == "" {
		return Manifest{}, fmt.Errorf("host: manifest %s missing \"main\"", path)
	}
	return m, nil
}

// WASMPath resolves the manifest's declared entry point relative to the
// directory the manifest itself lives in.
func (m Manifest) WASMPath(manifestDir string) string {
	return filepath.Join(manifestDir, m.Main)
}
