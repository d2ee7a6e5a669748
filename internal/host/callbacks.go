package host

import (
	"context"
	"encoding/json"

	"github.com/skwasm/pluginhost/internal/delta"
	"github.com/skwasm/pluginhost/internal/lifecycle"
	"go.uber.org/zap"
)

// The methods in this file implement runtime.Callbacks, the interface
// every loaded plugin's host imports call back into.

func (h *Host) LogDebug(pluginID string, level int32, message string) {
	logger := h.logger.With(zap.String("plugin_id", pluginID))
	switch level {
	case 0:
		logger.Debug(message)
	case 2:
		logger.Warn(message)
	case 3:
		logger.Error(message)
	default:
		logger.Info(message)
	}
}

func (h *Host) SetStatus(pluginID string, status int32) {
	h.logger.Debug("plugin status update", zap.String("plugin_id", pluginID), zap.Int32("status", status))
}

func (h *Host) SetError(pluginID string, message string) {
	h.logger.Error("plugin reported error", zap.String("plugin_id", pluginID), zap.String("message", message))
	if lp, ok := h.lookupLoaded(pluginID); ok {
		state, backoff := lp.record.Crash(h, h.logger)
		h.logger.Info("plugin crash recorded", zap.String("plugin_id", pluginID),
			zap.String("state", string(state)), zap.Duration("backoff", backoff))
	}
}

func (h *Host) ReadPath(pluginID, pathContext, path string) (string, bool) {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok || !lp.caps.DataRead {
		return "", false
	}
	return h.dataSource.ReadPath(pathContext, path)
}

func (h *Host) RegisterPutHandler(pluginID, pathContext, path string) {
	h.puts.Register(pluginID, pathContext, path)

	supportsPut, err := json.Marshal(map[string]bool{"supportsPut": true})
	if err != nil {
		return
	}
	h.router.Dispatch(context.Background(), delta.Delta{
		Context: pathContext,
		Updates: []delta.Update{{
			Source: pluginID,
			Meta:   []delta.PathValue{{Path: path, Value: supportsPut}},
		}},
	})
}

func (h *Host) RegisterResourceProvider(pluginID, resourceType string) {
	h.ResourceRegistry(resourceType).Register(pluginID)
}

func (h *Host) RegisterWeatherProvider(pluginID string) {
	h.weather.Register(pluginID)
}

func (h *Host) RegisterRadarProvider(pluginID, name string) {
	h.radar.RegisterNamed(pluginID, name)
}

func (h *Host) EmitRadarSpokes(pluginID string, streamID string, frame []byte) {
	h.streams.Emit(streamID, frame)
}

func (h *Host) SocketCreate(pluginID string) (int32, bool) {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return 0, false
	}
	return lp.sockets.Create(), true
}

func (h *Host) SocketBind(pluginID string, handle int32, bindHost string, port int32) bool {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return false
	}
	return lp.sockets.Bind(handle, bindHost, int(port))
}

func (h *Host) SocketSend(pluginID string, handle int32, destHost string, port int32, data []byte) int32 {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return -1
	}
	return lp.sockets.Send(handle, destHost, int(port), data)
}

func (h *Host) SocketRecv(pluginID string, handle int32) ([]byte, string, int32, bool) {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return nil, "", 0, false
	}
	return lp.sockets.Recv(handle)
}

func (h *Host) SocketSetOption(pluginID string, handle int32, name string, value string) bool {
	lp, ok := h.lookupLoaded(pluginID)
	if !ok {
		return false
	}
	return lp.sockets.SetOption(handle, name, value)
}

func (h *Host) SocketClose(pluginID string, handle int32) {
	if lp, ok := h.lookupLoaded(pluginID); ok {
		lp.sockets.Close(handle)
	}
}

func (h *Host) ExecCommand(pluginID string, name string, args []string) ([]byte, bool) {
	h.mu.Lock()
	fn, ok := h.commands[name]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	out, err := fn(args)
	if err != nil {
		h.logger.Warn("host command failed", zap.String("plugin_id", pluginID), zap.String("command", name), zap.Error(err))
		return nil, false
	}
	return out, true
}

var _ lifecycle.Teardown = (*Host)(nil)
