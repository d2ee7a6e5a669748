package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Asyncify state codes, per the Binaryen Asyncify convention: 0 is normal
// execution, 1 means the last call unwound (suspended) partway through,
// 2 means a rewind (resume) call is in flight.
const (
	asyncifyStateNormal = 0
	asyncifyStateUnwind = 1
)

// asyncifyDataRegionSize is the scratch buffer handed to
// asyncify_start_rewind as its unwind/rewind data region. The guest's own
// Asyncify instrumentation manages the layout within it.
const asyncifyDataRegionSize = 4096

// maxAsyncifyRewinds bounds how many times the host will re-invoke a
// suspended export before giving up, so a guest that never settles can't
// hang plugin start forever.
const maxAsyncifyRewinds = 8

// awaitAsyncifyRewind implements spec §4.C's Asyncify contract: if the
// guest exports asyncify_get_state, a call to fn may return having only
// unwound the stack rather than completed. The host repeatedly re-invokes
// fn with a fresh data region via asyncify_start_rewind/asyncify_stop_rewind
// until asyncify_get_state reports the guest has settled back to normal
// execution. A guest without the Asyncify exports is unaffected: this is
// a no-op in that case.
func (in *instance) awaitAsyncifyRewind(ctx context.Context, fn api.Function, payload string) (string, error) {
	getState := in.mod.ExportedFunction("asyncify_get_state")
	if getState == nil {
		return "", nil
	}
	startRewind := in.mod.ExportedFunction("asyncify_start_rewind")
	stopRewind := in.mod.ExportedFunction("asyncify_stop_rewind")
	if startRewind == nil || stopRewind == nil {
		return "", nil
	}

	var result string
	for attempt := 0; attempt < maxAsyncifyRewinds; attempt++ {
		states, err := getState.Call(ctx)
		if err != nil {
			return result, fmt.Errorf("asyncify_get_state: %w", err)
		}
		if len(states) == 0 || states[0] != asyncifyStateUnwind {
			return result, nil
		}

		dataPtr, ok := in.growScratch(make([]byte, asyncifyDataRegionSize))
		if !ok {
			return "", fmt.Errorf("failed to grow guest memory for asyncify data region")
		}
		if _, err := startRewind.Call(ctx, uint64(dataPtr)); err != nil {
			return "", fmt.Errorf("asyncify_start_rewind: %w", err)
		}

		result, err = in.callJSONFn(ctx, fn, payload)
		if err != nil {
			return "", err
		}

		if _, err := stopRewind.Call(ctx); err != nil {
			return "", fmt.Errorf("asyncify_stop_rewind: %w", err)
		}
	}
	return result, fmt.Errorf("exceeded %d asyncify rewind attempts", maxAsyncifyRewinds)
}
