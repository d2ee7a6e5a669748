// Package runtime loads and drives compiled WASM plugin modules, normalizing
// the three guest ABI dialects behind a single Plugin type (spec §4.C).
package runtime

import (
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Dialect identifies which of the three guest calling conventions a
// compiled module uses.
type Dialect int

const (
	// DialectUnknown means classification could not find a recognized
	// export surface.
	DialectUnknown Dialect = iota
	// DialectA is the managed-string convention (__newString/__getString),
	// typically emitted by AssemblyScript-style toolchains.
	DialectA
	// DialectB is the explicit-allocator convention (allocate/deallocate/
	// _initialize), typically emitted by Rust/TinyGo toolchains targeting
	// wasm32-unknown-unknown.
	DialectB
	// DialectC is the command-style convention (_start), typically emitted
	// by toolchains targeting WASI as a standalone binary.
	DialectC
)

func (d Dialect) String() string {
	switch d {
	case DialectA:
		return "A(managed-string)"
	case DialectB:
		return "B(explicit-allocator)"
	case DialectC:
		return "C(command-style)"
	default:
		return "unknown"
	}
}

// Classify inspects a compiled module's export surface and determines
// which guest ABI dialect it implements. Dialects are checked in the order
// A, B, C; the first whose required exports are all present is returned.
func Classify(compiled wazero.CompiledModule) (Dialect, error) {
	names := exportNames(compiled)

	switch {
	case names["__newString"] && names["__getString"]:
		return DialectA, nil
	case names["allocate"] && names["deallocate"] && names["_initialize"]:
		return DialectB, nil
	case names["_start"]:
		return DialectC, nil
	default:
		return DialectUnknown, fmt.Errorf("runtime: module exports neither managed-string, explicit-allocator, nor command-style surface")
	}
}

func exportNames(compiled wazero.CompiledModule) map[string]bool {
	out := make(map[string]bool)
	for _, exp := range compiled.ExportedFunctions() {
		for _, n := range exp.ExportNames() {
			out[n] = true
		}
	}
	return out
}

func hasExport(compiled wazero.CompiledModule, name string) bool {
	for _, exp := range compiled.ExportedFunctions() {
		for _, n := range exp.ExportNames() {
			if n == name {
				return true
			}
		}
	}
	return false
}
