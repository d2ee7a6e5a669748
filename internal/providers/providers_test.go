package providers

import (
	"context"
	"testing"
)

func TestTypedRegistryFirstRegisteredIsDefault(t *testing.T) {
	r := NewTypedRegistry()
	r.Register("plugin-a")
	r.Register("plugin-b")

	def, ok := r.Default()
	if !ok || def != "plugin-a" {
		t.Fatalf("got default %q, ok=%v, want plugin-a", def, ok)
	}
}

func TestTypedRegistryPromotesNextOnDefaultUnregister(t *testing.T) {
	r := NewTypedRegistry()
	r.Register("plugin-a")
	r.Register("plugin-b")
	r.Unregister("plugin-a")

	def, ok := r.Default()
	if !ok || def != "plugin-b" {
		t.Fatalf("got default %q, ok=%v, want plugin-b", def, ok)
	}
}

func TestTypedRegistryEmptyAfterLastUnregister(t *testing.T) {
	r := NewTypedRegistry()
	r.Register("only")
	r.Unregister("only")

	if _, ok := r.Default(); ok {
		t.Fatalf("expected no default provider left")
	}
}

func TestPutRegistryLookup(t *testing.T) {
	r := NewPutRegistry()
	r.Register("anchor-plugin", "vessels.self", "navigation.anchor.position")

	h, ok := r.Lookup("vessels.self", "navigation.anchor.position")
	if !ok || h.PluginID != "anchor-plugin" {
		t.Fatalf("got %+v, ok=%v", h, ok)
	}

	r.Unregister("anchor-plugin")
	if _, ok := r.Lookup("vessels.self", "navigation.anchor.position"); ok {
		t.Fatalf("expected handler removed after unregister")
	}
}

type stubCaller struct {
	result string
	ok     bool
	err    error
}

func (s *stubCaller) CallExport(ctx context.Context, exportName, payloadJSON string) (string, bool, error) {
	return s.result, s.ok, s.err
}

func TestDispatcherUsesDefaultWhenNoPluginSpecified(t *testing.T) {
	registry := NewTypedRegistry()
	registry.Register("weather-plugin")

	caller := &stubCaller{result: `{"temp":20}`, ok: true}
	lookup := func(id string) (Caller, bool) {
		if id == "weather-plugin" {
			return caller, true
		}
		return nil, false
	}

	d := NewDispatcher(registry, lookup, "provide_weather")
	result, err := d.Dispatch(context.Background(), "", "{}")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != `{"temp":20}` {
		t.Errorf("got %q", result)
	}
}

func TestDispatcherErrorsWithNoDefault(t *testing.T) {
	registry := NewTypedRegistry()
	d := NewDispatcher(registry, func(string) (Caller, bool) { return nil, false }, "provide_weather")
	if _, err := d.Dispatch(context.Background(), "", "{}"); err == nil {
		t.Fatalf("expected error when no default provider registered")
	}
}

func TestTypedRegistryRegisterNamedTracksDisplayName(t *testing.T) {
	r := NewTypedRegistry()
	r.RegisterNamed("radar-plugin", "Furuno")

	name, ok := r.Name("radar-plugin")
	if !ok || name != "Furuno" {
		t.Fatalf("got name %q, ok=%v, want Furuno", name, ok)
	}

	r.Unregister("radar-plugin")
	if _, ok := r.Name("radar-plugin"); ok {
		t.Fatalf("expected display name removed after unregister")
	}
}

func TestTypedRegistryRegisterNamedUpdatesNameOnReregister(t *testing.T) {
	r := NewTypedRegistry()
	r.RegisterNamed("radar-plugin", "Furuno")
	r.RegisterNamed("radar-plugin", "Furuno DRS4D")

	name, ok := r.Name("radar-plugin")
	if !ok || name != "Furuno DRS4D" {
		t.Fatalf("got name %q, ok=%v, want updated name", name, ok)
	}
}

func TestSynthesizePutHandlerName(t *testing.T) {
	got := SynthesizePutHandlerName("vessels.self", "navigation.anchor.position")
	want := "handle_put_vessels_self_navigation_anchor_position"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
