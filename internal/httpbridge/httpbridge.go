// Package httpbridge exposes a plugin's declared HTTP endpoints to the
// outside world, translating between net/http and the guest's JSON
// request/response envelopes (spec §4.F).
package httpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// watchdogTimeout bounds how long a single guest HTTP export call may run.
// There is no true guest cancellation once a call is in flight (wazero
// doesn't preempt running guest code); the watchdog only bounds how long
// the host waits before answering with 504, per the spec's explicit
// redesign-flag acceptance of best-effort cancellation.
const watchdogTimeout = 10 * time.Second

// Caller is the subset of runtime.Plugin the bridge depends on, kept
// narrow so this package doesn't import runtime directly (broken only by
// the Host wiring layer).
type Caller interface {
	CallExport(ctx context.Context, exportName, payloadJSON string) (resultJSON string, ok bool, err error)
}

// Endpoint is one entry in a plugin's declared http_endpoints() manifest:
// {method, path, handler} (spec §4.F). Path segments of the form {name}
// are extracted into RequestEnvelope.Params.
type Endpoint struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

var validMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// RequestEnvelope is marshaled to JSON and handed to the guest's declared
// handler export.
type RequestEnvelope struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body carries the raw JSON request body directly when the request is
	// application/json, avoiding a guest-side double-parse; otherwise it's
	// a JSON-encoded string of the raw bytes.
	Body json.RawMessage `json:"body,omitempty"`
}

// ResponseEnvelope is the guest's JSON reply, unmarshaled back into an
// actual HTTP response (spec §4.F: {statusCode, headers, body}).
type ResponseEnvelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Bridge serves one plugin's declared HTTP endpoints under
// /plugins/<plugin_id>/... Its route table is rebuilt each time the
// plugin (re)starts and its http_endpoints() manifest is re-fetched, so
// ServeHTTP always dispatches against the guest's current declarations.
type Bridge struct {
	pluginID string
	caller   Caller
	logger   *zap.Logger

	routes atomic.Pointer[http.ServeMux]
}

// New constructs a Bridge for a single plugin with no routes registered
// until SetEndpoints is called.
func New(pluginID string, caller Caller, logger *zap.Logger) *Bridge {
	b := &Bridge{pluginID: pluginID, caller: caller, logger: logger.With(zap.String("plugin_id", pluginID))}
	b.routes.Store(http.NewServeMux())
	return b
}

// Endpoints fetches and decodes the guest's declared endpoint manifest via
// its optional "http_endpoints" export. An absent export yields an empty
// manifest, not an error: HTTP endpoints are opt-in.
func (b *Bridge) Endpoints(ctx context.Context) ([]Endpoint, error) {
	raw, ok, err := b.caller.CallExport(ctx, "http_endpoints", "")
	if err != nil {
		return nil, fmt.Errorf("httpbridge: %s http_endpoints(): %w", b.pluginID, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var eps []Endpoint
	if err := json.Unmarshal([]byte(raw), &eps); err != nil {
		return nil, fmt.Errorf("httpbridge: %s decode endpoint manifest: %w", b.pluginID, err)
	}
	return eps, nil
}

var paramSegment = regexp.MustCompile(`\{([^{}]+)\}`)

// SetEndpoints rebuilds the bridge's route table from a freshly-fetched
// endpoint manifest, installing one route per declared handler export.
// Entries with a method outside GET/POST/PUT/DELETE are skipped with a
// warning (spec §4.F). Safe to call repeatedly (each call builds a fresh
// *http.ServeMux and atomically swaps it in), so a plugin restart with a
// changed manifest never hits net/http's "pattern already registered"
// panic.
func (b *Bridge) SetEndpoints(eps []Endpoint) {
	mux := http.NewServeMux()
	for _, ep := range eps {
		method := strings.ToUpper(ep.Method)
		if !validMethods[method] {
			b.logger.Warn("ignoring http endpoint with unsupported method",
				zap.String("method", ep.Method), zap.String("path", ep.Path))
			continue
		}
		if !strings.HasPrefix(ep.Path, "/") || ep.Handler == "" {
			b.logger.Warn("ignoring malformed http endpoint",
				zap.String("method", ep.Method), zap.String("path", ep.Path))
			continue
		}
		handler := ep.Handler
		path := ep.Path
		paramNames := paramNamesOf(path)
		mux.HandleFunc(method+" "+path, func(w http.ResponseWriter, r *http.Request) {
			b.serveExport(w, r, handler, paramNames)
		})
	}
	b.routes.Store(mux)
}

func paramNamesOf(pattern string) []string {
	matches := paramSegment.FindAllStringSubmatch(pattern, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// ServeHTTP dispatches to whichever guest export SetEndpoints last
// matched this request's method and path to, per the manifest's
// {method,path,handler} declarations.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.routes.Load().ServeHTTP(w, r)
}

func (b *Bridge) serveExport(w http.ResponseWriter, r *http.Request, handlerExport string, paramNames []string) {
	ctx, cancel := context.WithTimeout(r.Context(), watchdogTimeout)
	defer cancel()

	var bodyBytes []byte
	if r.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed reading request body", http.StatusBadGateway)
			return
		}
	}

	params := make(map[string]string, len(paramNames))
	for _, name := range paramNames {
		params[name] = r.PathValue(name)
	}

	req := RequestEnvelope{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Params:  params,
		Headers: flattenHeaders(r.Header),
		Body:    encodeRequestBody(r.Header.Get("Content-Type"), bodyBytes),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		http.Error(w, "failed encoding request", http.StatusInternalServerError)
		return
	}

	type result struct {
		raw string
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, ok, err := b.caller.CallExport(ctx, handlerExport, string(payload))
		done <- result{raw, ok, err}
	}()

	select {
	case <-ctx.Done():
		b.logger.Warn("guest http handler watchdog fired", zap.String("path", r.URL.Path))
		http.Error(w, "plugin request timed out", http.StatusGatewayTimeout)
		return
	case res := <-done:
		if res.err != nil {
			b.logger.Error("guest http handler error", zap.Error(res.err))
			http.Error(w, "plugin request failed", http.StatusBadGateway)
			return
		}
		if !res.ok {
			http.NotFound(w, r)
			return
		}
		writeResponse(w, res.raw, b.logger)
	}
}

// encodeRequestBody embeds a JSON request body directly as a raw message
// rather than as an escaped string, so a spec-conformant guest doesn't
// have to parse a string-within-a-string (spec §4.F). Anything else
// (missing Content-Type, non-JSON body, or invalid JSON) is carried as a
// quoted JSON string of the raw bytes.
func encodeRequestBody(contentType string, body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return json.RawMessage(quoted)
}

func writeResponse(w http.ResponseWriter, raw string, logger *zap.Logger) {
	var resp ResponseEnvelope
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		logger.Error("guest returned malformed response envelope", zap.Error(err))
		http.Error(w, "plugin returned malformed response", http.StatusBadGateway)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write([]byte(resp.Body))
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
