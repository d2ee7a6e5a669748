package runtime

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// registerHostFunctions compiles the "env" host module every plugin
// instance imports from. One compiled host module is shared across all
// plugins; per-call state travels through the context (hostState).
func registerHostFunctions(ctx context.Context, rt wazero.Runtime) (wazero.CompiledModule, error) {
	env := rt.NewHostModuleBuilder("env")

	env.NewFunctionBuilder().WithFunc(skDebug).WithParameterNames("level", "msg_ptr", "msg_len").Export("sk_debug")
	env.NewFunctionBuilder().WithFunc(skSetStatus).WithParameterNames("status").Export("sk_set_status")
	env.NewFunctionBuilder().WithFunc(skSetError).WithParameterNames("msg_ptr", "msg_len").Export("sk_set_error")
	env.NewFunctionBuilder().WithFunc(skGetSelfPath).WithParameterNames("path_ptr", "path_len", "out_ptr", "out_cap").Export("sk_get_self_path")
	env.NewFunctionBuilder().WithFunc(skGetPath).WithParameterNames("ctx_ptr", "ctx_len", "path_ptr", "path_len", "out_ptr", "out_cap").Export("sk_get_path")
	env.NewFunctionBuilder().WithFunc(skHasCapability).WithParameterNames("name_ptr", "name_len").Export("sk_has_capability")

	env.NewFunctionBuilder().WithFunc(skRegisterPutHandler).WithParameterNames("ctx_ptr", "ctx_len", "path_ptr", "path_len").Export("sk_register_put_handler")
	env.NewFunctionBuilder().WithFunc(skRegisterResourceProvider).WithParameterNames("type_ptr", "type_len").Export("sk_register_resource_provider")
	env.NewFunctionBuilder().WithFunc(skRegisterWeatherProvider).WithParameterNames().Export("sk_register_weather_provider")
	env.NewFunctionBuilder().WithFunc(skRegisterRadarProvider).WithParameterNames("name_ptr", "name_len").Export("sk_register_radar_provider")
	env.NewFunctionBuilder().WithFunc(skRadarEmitSpokes).WithParameterNames("stream_ptr", "stream_len", "data_ptr", "data_len").Export("sk_radar_emit_spokes")

	env.NewFunctionBuilder().WithFunc(skSocketCreate).WithParameterNames().Export("sk_socket_create")
	env.NewFunctionBuilder().WithFunc(skSocketBind).WithParameterNames("handle", "host_ptr", "host_len", "port").Export("sk_socket_bind")
	env.NewFunctionBuilder().WithFunc(skSocketSend).WithParameterNames("handle", "host_ptr", "host_len", "port", "data_ptr", "data_len").Export("sk_socket_send")
	env.NewFunctionBuilder().WithFunc(skSocketRecv).WithParameterNames("handle", "buf_ptr", "buf_cap", "from_host_ptr", "from_host_cap", "from_port_ptr").Export("sk_socket_recv")
	env.NewFunctionBuilder().WithFunc(skSocketSetOption).WithParameterNames("handle", "name_ptr", "name_len", "val_ptr", "val_len").Export("sk_socket_set_option")
	env.NewFunctionBuilder().WithFunc(skSocketClose).WithParameterNames("handle").Export("sk_socket_close")

	env.NewFunctionBuilder().WithFunc(skExecCommand).WithParameterNames("name_ptr", "name_len", "args_ptr", "args_len", "out_ptr", "out_cap").Export("sk_exec_command")

	return env.Compile(ctx)
}

func skDebug(ctx context.Context, mod api.Module, level, msgPtr, msgLen uint32) {
	hs := hostStateFromContext(ctx)
	if hs == nil {
		return
	}
	msg, ok := readGuestString(mod, msgPtr, msgLen)
	if !ok {
		return
	}
	hs.cb.LogDebug(hs.pluginID, int32(level), msg)
}

func skSetStatus(ctx context.Context, status uint32) {
	hs := hostStateFromContext(ctx)
	if hs == nil {
		return
	}
	hs.cb.SetStatus(hs.pluginID, int32(status))
}

func skSetError(ctx context.Context, mod api.Module, msgPtr, msgLen uint32) {
	hs := hostStateFromContext(ctx)
	if hs == nil {
		return
	}
	msg, ok := readGuestString(mod, msgPtr, msgLen)
	if !ok {
		return
	}
	hs.cb.SetError(hs.pluginID, msg)
}

func skGetSelfPath(ctx context.Context, mod api.Module, pathPtr, pathLen, outPtr, outCap uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.DataRead {
		return ResultDenied
	}
	path, ok := readGuestString(mod, pathPtr, pathLen)
	if !ok {
		return ResultDenied
	}
	val, found := hs.cb.ReadPath(hs.pluginID, "self", path)
	if !found {
		return ResultNotFound
	}
	return writeGuestMemory(mod, outPtr, outCap, []byte(val))
}

func skGetPath(ctx context.Context, mod api.Module, ctxPtr, ctxLen, pathPtr, pathLen, outPtr, outCap uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.DataRead {
		return ResultDenied
	}
	pathContext, ok := readGuestString(mod, ctxPtr, ctxLen)
	if !ok {
		return ResultDenied
	}
	path, ok := readGuestString(mod, pathPtr, pathLen)
	if !ok {
		return ResultDenied
	}
	val, found := hs.cb.ReadPath(hs.pluginID, pathContext, path)
	if !found {
		return ResultNotFound
	}
	return writeGuestMemory(mod, outPtr, outCap, []byte(val))
}

func skHasCapability(ctx context.Context, mod api.Module, namePtr, nameLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil {
		return 0
	}
	name, ok := readGuestString(mod, namePtr, nameLen)
	if !ok {
		return 0
	}
	if capabilityNamed(hs.caps, name) {
		return 1
	}
	return 0
}

func skRegisterPutHandler(ctx context.Context, mod api.Module, ctxPtr, ctxLen, pathPtr, pathLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.PutHandlers {
		return ResultDenied
	}
	pathContext, ok := readGuestString(mod, ctxPtr, ctxLen)
	if !ok {
		return ResultDenied
	}
	path, ok := readGuestString(mod, pathPtr, pathLen)
	if !ok {
		return ResultDenied
	}
	hs.cb.RegisterPutHandler(hs.pluginID, pathContext, path)
	return ResultOK
}

func skRegisterResourceProvider(ctx context.Context, mod api.Module, typePtr, typeLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.ResourceProvider {
		return ResultDenied
	}
	resType, ok := readGuestString(mod, typePtr, typeLen)
	if !ok {
		return ResultDenied
	}
	hs.cb.RegisterResourceProvider(hs.pluginID, resType)
	return ResultOK
}

func skRegisterWeatherProvider(ctx context.Context) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.WeatherProvider {
		return ResultDenied
	}
	hs.cb.RegisterWeatherProvider(hs.pluginID)
	return ResultOK
}

func skRegisterRadarProvider(ctx context.Context, mod api.Module, namePtr, nameLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RadarProvider {
		return ResultDenied
	}
	name, ok := readGuestString(mod, namePtr, nameLen)
	if !ok {
		return ResultDenied
	}
	hs.cb.RegisterRadarProvider(hs.pluginID, name)
	return ResultOK
}

func skRadarEmitSpokes(ctx context.Context, mod api.Module, streamPtr, streamLen, dataPtr, dataLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RadarProvider {
		return ResultDenied
	}
	streamID, ok := readGuestString(mod, streamPtr, streamLen)
	if !ok {
		return ResultDenied
	}
	frame, ok := readGuestBytes(mod, dataPtr, dataLen)
	if !ok {
		return ResultDenied
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	hs.cb.EmitRadarSpokes(hs.pluginID, streamID, cp)
	return ResultOK
}

func skSocketCreate(ctx context.Context) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets {
		return ResultDenied
	}
	handle, ok := hs.cb.SocketCreate(hs.pluginID)
	if !ok {
		return ResultDenied
	}
	return handle
}

func skSocketBind(ctx context.Context, mod api.Module, handle, hostPtr, hostLen, port uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets {
		return ResultDenied
	}
	host, ok := readGuestString(mod, hostPtr, hostLen)
	if !ok {
		return ResultDenied
	}
	if !hs.cb.SocketBind(hs.pluginID, int32(handle), host, int32(port)) {
		return ResultDenied
	}
	return ResultOK
}

func skSocketSend(ctx context.Context, mod api.Module, handle, hostPtr, hostLen, port, dataPtr, dataLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets || !hs.caps.Network {
		return ResultDenied
	}
	host, ok := readGuestString(mod, hostPtr, hostLen)
	if !ok {
		return ResultDenied
	}
	data, ok := readGuestBytes(mod, dataPtr, dataLen)
	if !ok {
		return ResultDenied
	}
	return hs.cb.SocketSend(hs.pluginID, int32(handle), host, int32(port), data)
}

func skSocketRecv(ctx context.Context, mod api.Module, handle, bufPtr, bufCap, fromHostPtr, fromHostCap, fromPortPtr uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets {
		return ResultDenied
	}
	data, fromHost, fromPort, ok := hs.cb.SocketRecv(hs.pluginID, int32(handle))
	if !ok {
		return 0
	}
	n := writeGuestMemory(mod, bufPtr, bufCap, data)
	if n < 0 {
		return ResultDenied
	}
	writeGuestMemory(mod, fromHostPtr, fromHostCap, []byte(fromHost))
	portBytes := []byte{byte(fromPort), byte(fromPort >> 8), byte(fromPort >> 16), byte(fromPort >> 24)}
	mod.Memory().Write(fromPortPtr, portBytes)
	return n
}

func skSocketSetOption(ctx context.Context, mod api.Module, handle, namePtr, nameLen, valPtr, valLen uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets {
		return ResultDenied
	}
	name, ok := readGuestString(mod, namePtr, nameLen)
	if !ok {
		return ResultDenied
	}
	val, ok := readGuestString(mod, valPtr, valLen)
	if !ok {
		return ResultDenied
	}
	if !hs.cb.SocketSetOption(hs.pluginID, int32(handle), name, val) {
		return ResultDenied
	}
	return ResultOK
}

func skSocketClose(ctx context.Context, handle uint32) {
	hs := hostStateFromContext(ctx)
	if hs == nil || !hs.caps.RawSockets {
		return
	}
	hs.cb.SocketClose(hs.pluginID, int32(handle))
}

func skExecCommand(ctx context.Context, mod api.Module, namePtr, nameLen, argsPtr, argsLen, outPtr, outCap uint32) int32 {
	hs := hostStateFromContext(ctx)
	if hs == nil {
		return ResultDenied
	}
	name, ok := readGuestString(mod, namePtr, nameLen)
	if !ok {
		return ResultDenied
	}
	var args []string
	if argsLen > 0 {
		raw, ok := readGuestBytes(mod, argsPtr, argsLen)
		if !ok {
			return ResultDenied
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return ResultDenied
		}
	}
	stdout, ok := hs.cb.ExecCommand(hs.pluginID, name, args)
	if !ok {
		return ResultDenied
	}
	return writeGuestMemory(mod, outPtr, outCap, stdout)
}

// capabilityNamed maps a guest-supplied capability name string to the
// corresponding field of the parsed capability set (spec §4.A).
func capabilityNamed(caps Capabilities, name string) bool {
	switch name {
	case "dataRead":
		return caps.DataRead
	case "dataWrite":
		return caps.DataWrite
	case "network":
		return caps.Network
	case "putHandlers":
		return caps.PutHandlers
	case "resourceProvider":
		return caps.ResourceProvider
	case "weatherProvider":
		return caps.WeatherProvider
	case "radarProvider":
		return caps.RadarProvider
	case "rawSockets":
		return caps.RawSockets
	case "httpEndpoints":
		return caps.HTTPEndpoints
	case "staticFiles":
		return caps.StaticFiles
	default:
		return false
	}
}
