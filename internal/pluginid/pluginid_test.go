package pluginid

import "testing"

func TestFromPackageName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"signalk-wasm-anchor", "signalk-wasm-anchor"},
		{"@signalk/wasm-anchor", "signalk-wasm-anchor"},
		{"@myorg/radar-plugin", "myorg-radar-plugin"},
		{"@scope-only", "scope-only"},
	}
	for _, c := range cases {
		if got := FromPackageName(c.in); got != c.want {
			t.Errorf("FromPackageName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFromPackageNameStableAndDistinct(t *testing.T) {
	a := FromPackageName("@org/name")
	b := FromPackageName("@org2/name")
	if a == b {
		t.Fatalf("distinct package names must not collide: %q vs %q", a, b)
	}
	if FromPackageName("@org/name") != a {
		t.Fatalf("derivation must be stable across calls")
	}
}
