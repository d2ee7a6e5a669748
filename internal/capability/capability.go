// Package capability implements the typed permission set attached to every
// plugin (spec §4.A). Every privileged FFI call consults it as its first
// action and denial is always a sentinel return, never a panic across the
// ABI boundary.
package capability

// Storage is the enum-valued capability slot controlling what kind of
// filesystem access, if any, a plugin's VFS grants beyond its own sandbox.
type Storage string

const (
	StorageNone    Storage = "none"
	StorageVFSOnly Storage = "vfs-only"
)

// Set is a fixed, extensible record of plugin permissions. Unknown keys in
// the source `wasmCapabilities` object are ignored; missing keys default to
// the most restrictive value (the zero value here, which is always "off").
type Set struct {
	DataRead         bool
	DataWrite        bool
	Network          bool
	PutHandlers      bool
	ResourceProvider bool
	WeatherProvider  bool
	RadarProvider    bool
	RawSockets       bool
	HTTPEndpoints    bool
	StaticFiles      bool
	Storage          Storage
}

// ParseSet builds a Set from the decoded `wasmCapabilities` JSON object in
// a plugin's package metadata. Unknown keys are ignored; absent keys stay
// at their restrictive zero value.
func ParseSet(raw map[string]interface{}) Set {
	var s Set
	s.DataRead = boolField(raw, "data_read")
	s.DataWrite = boolField(raw, "data_write")
	s.Network = boolField(raw, "network")
	s.PutHandlers = boolField(raw, "put_handlers")
	s.ResourceProvider = boolField(raw, "resource_provider")
	s.WeatherProvider = boolField(raw, "weather_provider")
	s.RadarProvider = boolField(raw, "radar_provider")
	s.RawSockets = boolField(raw, "raw_sockets")
	s.HTTPEndpoints = boolField(raw, "http_endpoints")
	s.StaticFiles = boolField(raw, "static_files")

	s.Storage = StorageNone
	if v, ok := raw["storage"].(string); ok && v == string(StorageVFSOnly) {
		s.Storage = StorageVFSOnly
	}
	return s
}

func boolField(raw map[string]interface{}, key string) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
