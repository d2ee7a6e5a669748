package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Guest-visible status codes written via sk_set_status.
const (
	StatusStarting = 0
	StatusRunning  = 1
	StatusError    = 2
)

// Log levels accepted by sk_debug.
const (
	LogLevelDebug = 0
	LogLevelInfo  = 1
	LogLevelWarn  = 2
	LogLevelError = 3
)

// Sentinel return values host import functions use to signal a denied or
// failed call without raising a guest trap (spec invariant: capability
// denial is always a no-op/sentinel, never a trap).
const (
	ResultOK       int32 = 0
	ResultDenied   int32 = -1
	ResultNotFound int32 = -2
)

type ctxKey struct{}

// hostState is the per-call context threaded through every sk_* host import
// while a single guest export is executing.
type hostState struct {
	pluginID string
	caps     Capabilities
	cb       Callbacks
}

func contextWithHostState(ctx context.Context, hs *hostState) context.Context {
	return context.WithValue(ctx, ctxKey{}, hs)
}

func hostStateFromContext(ctx context.Context) *hostState {
	if v := ctx.Value(ctxKey{}); v != nil {
		return v.(*hostState)
	}
	return nil
}

// readGuestString reads a UTF-8 string from guest linear memory.
func readGuestString(mod api.Module, ptr, length uint32) (string, bool) {
	if length == 0 {
		return "", true
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(data), true
}

// readGuestBytes reads raw bytes from guest linear memory.
func readGuestBytes(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	return mod.Memory().Read(ptr, length)
}

// writeGuestMemory writes data into a guest-provided buffer, returning the
// number of bytes written or -1 if the buffer is too small.
func writeGuestMemory(mod api.Module, ptr, capacity uint32, data []byte) int32 {
	if uint32(len(data)) > capacity {
		return -1
	}
	if len(data) == 0 {
		return 0
	}
	if !mod.Memory().Write(ptr, data) {
		return -1
	}
	return int32(len(data))
}
