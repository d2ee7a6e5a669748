package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

const wasmPageSize = 65536

// instance wraps one instantiated guest module together with the dialect-
// specific marshalling it needs, presenting the same calling convention to
// the rest of the runtime package regardless of which ABI the guest
// toolchain emitted.
type instance struct {
	mod     api.Module
	dialect Dialect
}

// callJSON invokes a zero-or-one-argument guest export that takes a JSON
// payload and returns a JSON result, normalizing marshalling across the
// three dialects. A nil fn (export absent) is reported via ok=false.
func (in *instance) callJSON(ctx context.Context, name string, payload string) (result string, ok bool, err error) {
	fn := in.mod.ExportedFunction(name)
	if fn == nil {
		return "", false, nil
	}
	result, err = in.callJSONFn(ctx, fn, payload)
	if err != nil {
		return "", true, err
	}
	return result, true, nil
}

// callJSONFn is callJSON with the export already resolved, so callers
// that need to re-invoke the same export (Asyncify rewind) don't have to
// look it up by name twice.
func (in *instance) callJSONFn(ctx context.Context, fn api.Function, payload string) (string, error) {
	switch in.dialect {
	case DialectA:
		return in.callDialectA(ctx, fn, payload)
	case DialectB, DialectC:
		return in.callDialectBC(ctx, fn, payload)
	default:
		return "", fmt.Errorf("runtime: instance has no recognized dialect")
	}
}

// callDialectBC marshals via the explicit allocate/deallocate exports
// (dialect B) or, for command-style modules that also happen to export
// them (dialect C), the same contract. Guest exports are expected to
// return two i32 results: (resultPtr, resultLen).
func (in *instance) callDialectBC(ctx context.Context, fn api.Function, payload string) (string, error) {
	var ptr uint64
	data := []byte(payload)

	allocate := in.mod.ExportedFunction("allocate")
	deallocate := in.mod.ExportedFunction("deallocate")

	if allocate != nil && len(data) > 0 {
		results, err := allocate.Call(ctx, uint64(len(data)))
		if err != nil {
			return "", err
		}
		if len(results) == 0 || results[0] == 0 {
			return "", fmt.Errorf("runtime: guest allocate failed")
		}
		ptr = results[0]
		if !in.mod.Memory().Write(uint32(ptr), data) {
			return "", fmt.Errorf("runtime: failed writing guest memory")
		}
	}

	results, err := fn.Call(ctx, ptr, uint64(len(data)))

	if deallocate != nil && ptr != 0 {
		deallocate.Call(ctx, ptr, uint64(len(data)))
	}
	if err != nil {
		return "", err
	}

	switch len(results) {
	case 0:
		return "", nil
	case 1:
		// Single-result convention: a packed (ptr<<32 | len) return.
		packed := results[0]
		outPtr := uint32(packed >> 32)
		outLen := uint32(packed)
		return in.readAndFree(outPtr, outLen, deallocate, ctx)
	default:
		outPtr := uint32(results[0])
		outLen := uint32(results[1])
		return in.readAndFree(outPtr, outLen, deallocate, ctx)
	}
}

func (in *instance) readAndFree(ptr, length uint32, deallocate api.Function, ctx context.Context) (string, error) {
	if length == 0 {
		return "", nil
	}
	str, ok := readGuestString(in.mod, ptr, length)
	if !ok {
		return "", fmt.Errorf("runtime: failed reading guest result")
	}
	if deallocate != nil {
		deallocate.Call(ctx, uint64(ptr), uint64(length))
	}
	return str, nil
}

// callDialectA marshals through the loader's managed-string exports
// (__newString/__getString), growing guest memory for scratch space since
// dialect A modules don't expose an allocator of their own.
func (in *instance) callDialectA(ctx context.Context, fn api.Function, payload string) (string, error) {
	newString := in.mod.ExportedFunction("__newString")
	getString := in.mod.ExportedFunction("__getString")
	if newString == nil || getString == nil {
		return "", fmt.Errorf("runtime: dialect A module missing managed-string exports")
	}

	var strPtr uint64
	if len(payload) > 0 {
		scratch, ok := in.growScratch([]byte(payload))
		if !ok {
			return "", fmt.Errorf("runtime: failed to grow guest memory for scratch string")
		}
		results, err := newString.Call(ctx, uint64(scratch), uint64(len(payload)))
		if err != nil {
			return "", err
		}
		if len(results) == 0 {
			return "", fmt.Errorf("runtime: __newString returned no result")
		}
		strPtr = results[0]
	}

	results, err := fn.Call(ctx, strPtr)
	if err != nil {
		return "", err
	}
	if len(results) == 0 || results[0] == 0 {
		return "", nil
	}

	outInfo, err := getString.Call(ctx, results[0])
	if err != nil {
		return "", err
	}
	if len(outInfo) < 2 {
		return "", fmt.Errorf("runtime: __getString returned unexpected arity")
	}
	outPtr, outLen := uint32(outInfo[0]), uint32(outInfo[1])
	str, ok := readGuestString(in.mod, outPtr, outLen)
	if !ok {
		return "", fmt.Errorf("runtime: failed reading managed string result")
	}
	return str, nil
}

// growScratch grows the guest's linear memory by enough pages to fit data
// and writes it at the start of the newly added region. This memory is
// never reclaimed; dialect A modules are expected to manage their own
// string lifetimes once handed the pointer.
func (in *instance) growScratch(data []byte) (uint32, bool) {
	mem := in.mod.Memory()
	currentPages := mem.Size() / wasmPageSize
	neededPages := uint32((len(data) + wasmPageSize - 1) / wasmPageSize)
	if neededPages == 0 {
		neededPages = 1
	}
	prevPages, ok := mem.Grow(neededPages)
	if !ok {
		return 0, false
	}
	offset := prevPages * wasmPageSize
	_ = currentPages
	if !mem.Write(offset, data) {
		return 0, false
	}
	return offset, true
}

func (in *instance) hasExport(name string) bool {
	return in.mod.ExportedFunction(name) != nil
}

func (in *instance) close(ctx context.Context) error {
	return in.mod.Close(ctx)
}
