package capability

import "testing"

func TestParseSetDefaultsRestrictive(t *testing.T) {
	s := ParseSet(map[string]interface{}{})
	if s.DataRead || s.DataWrite || s.Network || s.RawSockets {
		t.Fatalf("expected all capabilities false by default, got %+v", s)
	}
	if s.Storage != StorageNone {
		t.Fatalf("expected default storage %q, got %q", StorageNone, s.Storage)
	}
}

func TestParseSetUnknownKeysIgnored(t *testing.T) {
	s := ParseSet(map[string]interface{}{
		"data_read":        true,
		"made_up_future_v2": true,
		"storage":          "vfs-only",
	})
	if !s.DataRead {
		t.Fatalf("expected data_read true")
	}
	if s.Network {
		t.Fatalf("expected network to default false")
	}
	if s.Storage != StorageVFSOnly {
		t.Fatalf("expected storage vfs-only, got %q", s.Storage)
	}
}

func TestParseSetNonBoolValueIgnored(t *testing.T) {
	s := ParseSet(map[string]interface{}{"data_write": "yes"})
	if s.DataWrite {
		t.Fatalf("non-bool value for data_write must not enable the capability")
	}
}
