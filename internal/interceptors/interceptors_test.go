package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type fakeChartCaller struct {
	gotExport  string
	gotPayload string
}

func (f *fakeChartCaller) CallExport(ctx context.Context, exportName, payloadJSON string) (string, bool, error) {
	f.gotExport = exportName
	f.gotPayload = payloadJSON
	return "", true, nil
}

func TestTmsFlipYIsSelfInverse(t *testing.T) {
	for z := 0; z < 6; z++ {
		for y := 0; y < (1 << uint(z)); y++ {
			flipped := tmsFlipY(z, y)
			back := tmsFlipY(z, flipped)
			if back != y {
				t.Errorf("z=%d y=%d: round trip got %d", z, y, back)
			}
		}
	}
}

func TestTmsFlipYKnownValue(t *testing.T) {
	// z=3 has 8 rows (0..7); XYZ row 0 is TMS row 7.
	if got := tmsFlipY(3, 0); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestSniffImageContentType(t *testing.T) {
	cases := []struct {
		data []byte
		want string
	}{
		{[]byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{[]byte{0xff, 0xd8, 0xff, 0x00}, "image/jpeg"},
		{[]byte("GIF89axxxx"), "image/gif"},
		{[]byte("not an image"), "application/octet-stream"},
	}
	for _, c := range cases {
		if got := sniffImageContentType(c.data); got != c.want {
			t.Errorf("sniffImageContentType(%q) = %q, want %q", c.data, got, c.want)
		}
	}
}

func TestChartTileHandlerServeTileMissingChartYields204(t *testing.T) {
	root := t.TempDir()
	h := NewChartTileHandler(filepath.Join(root, "charts"), filepath.Join(root, "tmp"), nil)

	r := httptest.NewRequest("GET", "/tiles/nochart/3/1/0", nil)
	w := httptest.NewRecorder()
	h.ServeTile(w, r, "nochart", 3, 1, 0)
	if w.Code != 204 {
		t.Fatalf("got %d, want 204 for a chart that doesn't exist", w.Code)
	}
}

func TestChartTileHandlerServeTileMissingTileYields204(t *testing.T) {
	root := t.TempDir()
	chartsRoot := filepath.Join(root, "charts")
	if err := os.MkdirAll(chartsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := writeTileToContainer(filepath.Join(chartsRoot, "demo.bin"), 3, 1, 7, []byte("tile-bytes")); err != nil {
		t.Fatal(err)
	}
	h := NewChartTileHandler(chartsRoot, filepath.Join(root, "tmp"), nil)

	r := httptest.NewRequest("GET", "/tiles/demo/3/1/5", nil)
	w := httptest.NewRecorder()
	h.ServeTile(w, r, "demo", 3, 1, 5)
	if w.Code != 204 {
		t.Fatalf("got %d, want 204 for a tile not present in the container", w.Code)
	}
}

func TestChartTileHandlerServeTileFound(t *testing.T) {
	root := t.TempDir()
	chartsRoot := filepath.Join(root, "charts")
	if err := os.MkdirAll(chartsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	png := []byte("\x89PNG\r\n\x1a\nfakepixels")
	// z=3 has 8 rows; XYZ row 0 is TMS row 7.
	if err := writeTileToContainer(filepath.Join(chartsRoot, "demo.png"), 3, 1, 7, png); err != nil {
		t.Fatal(err)
	}
	h := NewChartTileHandler(chartsRoot, filepath.Join(root, "tmp"), nil)

	r := httptest.NewRequest("GET", "/tiles/demo/3/1/0", nil)
	w := httptest.NewRecorder()
	h.ServeTile(w, r, "demo", 3, 1, 0)
	if w.Code != 200 {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("got content type %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != string(png) {
		t.Errorf("got body %q", w.Body.String())
	}
}

func TestChartTileHandlerUploadThenServe(t *testing.T) {
	root := t.TempDir()
	caller := &fakeChartCaller{}
	h := NewChartTileHandler(filepath.Join(root, "charts"), filepath.Join(root, "tmp"), caller)

	png := []byte("\x89PNG\r\n\x1a\nfakepixels")
	// The first record in the container at (3,1,7) exercises both upload
	// and the read path together, since the invented container format has
	// no separate "build a container" tool outside the host itself.
	tmp := filepath.Join(root, "staged.bin")
	if err := writeTileToContainer(tmp, 3, 1, 7, png); err != nil {
		t.Fatal(err)
	}
	body, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("POST", "/api/charts/upload?chartId=demo", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.UploadChart(w, r)
	if w.Code != 204 {
		t.Fatalf("upload got %d", w.Code)
	}
	if caller.gotExport != "resource_set" {
		t.Errorf("expected resource_set notification, got %q", caller.gotExport)
	}

	matches, _ := filepath.Glob(filepath.Join(root, "charts", "demo.*"))
	if len(matches) != 1 {
		t.Fatalf("expected exactly one stored chart container, got %v", matches)
	}

	// XYZ y=0 at z=3 flips to TMS y=7, the record written above.
	r2 := httptest.NewRequest("GET", "/tiles/demo/3/1/0", nil)
	w2 := httptest.NewRecorder()
	h.ServeTile(w2, r2, "demo", 3, 1, 0)
	if w2.Code != 200 {
		t.Fatalf("serve after upload got %d", w2.Code)
	}
	if w2.Body.String() != string(png) {
		t.Errorf("served tile body mismatch: %q", w2.Body.String())
	}
}

func TestChartTileHandlerDeleteChart(t *testing.T) {
	root := t.TempDir()
	chartsRoot := filepath.Join(root, "charts")
	if err := os.MkdirAll(chartsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := writeTileToContainer(filepath.Join(chartsRoot, "demo.bin"), 3, 1, 7, []byte("x")); err != nil {
		t.Fatal(err)
	}
	caller := &fakeChartCaller{}
	h := NewChartTileHandler(chartsRoot, filepath.Join(root, "tmp"), caller)

	r := httptest.NewRequest("DELETE", "/api/charts/file/demo", nil)
	w := httptest.NewRecorder()
	h.DeleteChart(w, r, "demo")
	if w.Code != 204 {
		t.Fatalf("delete got %d", w.Code)
	}
	if caller.gotPayload == "" || caller.gotExport != "resource_set" {
		t.Errorf("expected resource_set delete notification, got export=%q payload=%q", caller.gotExport, caller.gotPayload)
	}
	matches, _ := filepath.Glob(filepath.Join(chartsRoot, "demo.*"))
	if len(matches) != 0 {
		t.Errorf("expected chart container removed, found %v", matches)
	}
}

func TestLogStreamHandlerUsesSubprocess(t *testing.T) {
	h := LogStreamHandler(LogRetrievalCommand{Name: "echo", Args: []string{"hello from subprocess"}})
	r := httptest.NewRequest("GET", "/api/logs", nil)
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != 200 {
		t.Fatalf("got %d", w.Code)
	}
	var resp logResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Lines[0] != "hello from subprocess" || resp.Source != "echo" {
		t.Errorf("got %+v", resp)
	}
}

func TestLogStreamHandlerFallsBackOnSubprocessFailure(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "system.log")
	if err := os.WriteFile(fallback, []byte("line-a\nline-b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := LogStreamHandler(LogRetrievalCommand{Name: "false", FallbackLogPath: fallback})
	r := httptest.NewRequest("GET", "/api/logs", nil)
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != 200 {
		t.Fatalf("got %d", w.Code)
	}
	var resp logResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Source != fallback || resp.Count != 2 {
		t.Errorf("got source=%q count=%d, want fallback file with 2 lines", resp.Source, resp.Count)
	}
}
