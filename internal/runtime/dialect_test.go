package runtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

// buildModuleWithExports constructs a minimal valid WASM binary exporting
// the given function names, each as a type ()->() no-op. Classify only
// inspects export names, so the function bodies and signatures don't need
// to reflect the real ABI.
func buildModuleWithExports(names []string) []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	b.Write(encodeSection(1, encodeVector([][]byte{{0x60, 0, 0}})))

	funcSec := []byte{byte(len(names))}
	for range names {
		funcSec = append(funcSec, 0)
	}
	b.Write(encodeSection(3, funcSec))

	b.Write(encodeSection(5, []byte{1, 0x00, 1}))

	var exportEntries [][]byte
	for i, name := range names {
		exportEntries = append(exportEntries, encodeExport(name, 0x00, byte(i)))
	}
	b.Write(encodeSection(7, encodeVector(exportEntries)))

	var codeBodies [][]byte
	for range names {
		codeBodies = append(codeBodies, encodeCode([]byte{0x0b}))
	}
	b.Write(encodeSection(10, encodeVector(codeBodies)))

	return b.Bytes()
}

func encodeSection(id byte, content []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(id)
	buf.Write(encodeLEB128(uint32(len(content))))
	buf.Write(content)
	return buf.Bytes()
}

func encodeVector(items [][]byte) []byte {
	var buf bytes.Buffer
	buf.Write(encodeLEB128(uint32(len(items))))
	for _, item := range items {
		buf.Write(item)
	}
	return buf.Bytes()
}

func encodeExport(name string, kind, idx byte) []byte {
	var buf bytes.Buffer
	buf.Write(encodeLEB128(uint32(len(name))))
	buf.WriteString(name)
	buf.WriteByte(kind)
	buf.WriteByte(idx)
	return buf.Bytes()
}

func encodeCode(body []byte) []byte {
	locals := []byte{0}
	full := append(locals, body...)
	var buf bytes.Buffer
	buf.Write(encodeLEB128(uint32(len(full))))
	buf.Write(full)
	return buf.Bytes()
}

func encodeLEB128(value uint32) []byte {
	var buf []byte
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if value == 0 {
			break
		}
	}
	return buf
}

func TestClassifyDialectA(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, buildModuleWithExports([]string{"__newString", "__getString", "id"}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	d, err := Classify(compiled)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d != DialectA {
		t.Errorf("got %v, want DialectA", d)
	}
}

func TestClassifyDialectB(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, buildModuleWithExports([]string{"allocate", "deallocate", "_initialize", "start"}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	d, err := Classify(compiled)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d != DialectB {
		t.Errorf("got %v, want DialectB", d)
	}
}

func TestClassifyDialectC(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, buildModuleWithExports([]string{"_start"}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	d, err := Classify(compiled)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d != DialectC {
		t.Errorf("got %v, want DialectC", d)
	}
}

func TestClassifyUnrecognized(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, buildModuleWithExports([]string{"whatever"}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := Classify(compiled); err == nil {
		t.Errorf("expected classification error for unrecognized export surface")
	}
}

func TestHasExport(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, buildModuleWithExports([]string{"_start", "poll"}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !hasExport(compiled, "poll") {
		t.Errorf("expected poll export to be found")
	}
	if hasExport(compiled, "missing") {
		t.Errorf("expected missing export not to be found")
	}
}
