package httpbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type fakeCaller struct {
	resultJSON string
	ok         bool
	err        error
}

func (f *fakeCaller) CallExport(ctx context.Context, exportName, payloadJSON string) (string, bool, error) {
	return f.resultJSON, f.ok, f.err
}

func TestServeHTTPWritesGuestResponse(t *testing.T) {
	caller := &fakeCaller{resultJSON: `{"statusCode":201,"headers":{"X-Plugin":"yes"},"body":"created"}`, ok: true}
	b := New("demo", caller, zap.NewNop())
	b.SetEndpoints([]Endpoint{{Method: "POST", Path: "/widgets", Handler: "create_widget"}})

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, req)

	if rec.Code != 201 {
		t.Fatalf("got status %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Plugin") != "yes" {
		t.Errorf("expected guest-set header to propagate")
	}
	if rec.Body.String() != "created" {
		t.Errorf("got body %q", rec.Body.String())
	}
}

func TestServeHTTPMissingExportYieldsNotFound(t *testing.T) {
	caller := &fakeCaller{ok: false}
	b := New("demo", caller, zap.NewNop())
	b.SetEndpoints([]Endpoint{{Method: "GET", Path: "/anything", Handler: "handle_anything"}})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestServeHTTPUndeclaredRouteYieldsNotFound(t *testing.T) {
	caller := &fakeCaller{ok: true, resultJSON: `{"statusCode":200}`}
	b := New("demo", caller, zap.NewNop())
	b.SetEndpoints([]Endpoint{{Method: "GET", Path: "/status", Handler: "handle_status"}})

	req := httptest.NewRequest(http.MethodGet, "/unregistered", nil)
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404 for a path the manifest never declared", rec.Code)
	}
}

func TestSetEndpointsIgnoresUnsupportedMethod(t *testing.T) {
	caller := &fakeCaller{ok: true, resultJSON: `{"statusCode":200}`}
	b := New("demo", caller, zap.NewNop())
	b.SetEndpoints([]Endpoint{{Method: "PATCH", Path: "/status", Handler: "handle_status"}})

	req := httptest.NewRequest(http.MethodPatch, "/status", nil)
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404 for an unsupported method", rec.Code)
	}
}

func TestSetEndpointsReplacesPriorRoutesOnRestart(t *testing.T) {
	caller := &fakeCaller{ok: true, resultJSON: `{"statusCode":200}`}
	b := New("demo", caller, zap.NewNop())
	b.SetEndpoints([]Endpoint{{Method: "GET", Path: "/v1", Handler: "handle_v1"}})
	b.SetEndpoints([]Endpoint{{Method: "GET", Path: "/v2", Handler: "handle_v2"}})

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected stale route /v1 to be gone, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected new route /v2 to be served, got %d", rec.Code)
	}
}

func TestEndpointsEmptyWhenExportAbsent(t *testing.T) {
	caller := &fakeCaller{ok: false}
	b := New("demo", caller, zap.NewNop())

	eps, err := b.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints: %v", err)
	}
	if len(eps) != 0 {
		t.Errorf("expected no endpoints, got %v", eps)
	}
}

func TestEndpointsDecodesManifest(t *testing.T) {
	caller := &fakeCaller{resultJSON: `[{"method":"GET","path":"/status","handler":"handle_status"}]`, ok: true}
	b := New("demo", caller, zap.NewNop())

	eps, err := b.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints: %v", err)
	}
	if len(eps) != 1 || eps[0].Path != "/status" || eps[0].Handler != "handle_status" {
		t.Errorf("got %v", eps)
	}
}

func TestEncodeRequestBodyAvoidsDoubleEncodingJSON(t *testing.T) {
	raw := encodeRequestBody("application/json", []byte(`{"a":1}`))
	if string(raw) != `{"a":1}` {
		t.Errorf("expected raw JSON passthrough, got %s", raw)
	}
}

func TestEncodeRequestBodyQuotesNonJSON(t *testing.T) {
	raw := encodeRequestBody("text/plain", []byte(`hello`))
	if string(raw) != `"hello"` {
		t.Errorf("expected quoted string, got %s", raw)
	}
}
