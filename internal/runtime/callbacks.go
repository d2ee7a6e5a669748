package runtime

import "github.com/skwasm/pluginhost/internal/capability"

// Capabilities is the capability set a plugin instance was granted,
// consulted by every host import before it touches shared state.
type Capabilities = capability.Set

// Callbacks is the set of host-side collaborators a plugin instance calls
// into through its sk_* imports. The top-level Host implements this; the
// runtime package never reaches into lifecycle/delta/stream/providers
// directly so those packages can depend on runtime instead of the reverse.
type Callbacks interface {
	// LogDebug forwards a guest log line at the given level (sk_debug).
	LogDebug(pluginID string, level int32, message string)
	// SetStatus records a plugin-reported lifecycle status (sk_set_status).
	SetStatus(pluginID string, status int32)
	// SetError records a plugin-reported fatal error (sk_set_error).
	SetError(pluginID string, message string)
	// ReadPath resolves a data path for a plugin (sk_get_path / sk_get_self_path).
	ReadPath(pluginID, pathContext, path string) (string, bool)
	// RegisterPutHandler wires a PUT action export (sk_register_put_handler).
	RegisterPutHandler(pluginID, pathContext, path string)
	// RegisterResourceProvider registers a resource-type provider (sk_register_resource_provider).
	RegisterResourceProvider(pluginID, resourceType string)
	// RegisterWeatherProvider registers a weather provider (sk_register_weather_provider).
	RegisterWeatherProvider(pluginID string)
	// RegisterRadarProvider registers a radar provider under its display
	// name (sk_register_radar_provider).
	RegisterRadarProvider(pluginID, name string)
	// EmitRadarSpokes fans out a binary radar spoke frame (sk_radar_emit_spokes).
	EmitRadarSpokes(pluginID string, streamID string, frame []byte)

	// SocketCreate opens a UDP socket owned by the plugin (sk_socket_create).
	SocketCreate(pluginID string) (handle int32, ok bool)
	// SocketBind binds a socket to a local address (sk_socket_bind).
	SocketBind(pluginID string, handle int32, host string, port int32) bool
	// SocketSend sends a datagram (sk_socket_send).
	SocketSend(pluginID string, handle int32, host string, port int32, data []byte) int32
	// SocketRecv pops the oldest buffered datagram, if any (sk_socket_recv).
	SocketRecv(pluginID string, handle int32) (data []byte, fromHost string, fromPort int32, ok bool)
	// SocketSetOption queues or applies a socket option (sk_socket_set_option).
	SocketSetOption(pluginID string, handle int32, name string, value string) bool
	// SocketClose releases a socket (sk_socket_close).
	SocketClose(pluginID string, handle int32)

	// ExecCommand runs an allowlisted host command
	// (sk_exec_command) and returns its captured stdout.
	ExecCommand(pluginID string, name string, args []string) (stdout []byte, ok bool)
}
