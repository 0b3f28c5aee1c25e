package sheetrpc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mnehpets/sheetrpc/automation/memory"
	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/middleware"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.WorkbookDir = t.TempDir()
	srv, err := NewServer(cfg, WithBackend(memory.New(memory.Options{Dir: cfg.WorkbookDir})))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpc.Error  `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func postRPC(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultRPCPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultHealthPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestRPCOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Handler()

	rec := postRPC(t, h, `{"jsonrpc":"2.0","method":"app.create","params":{},"id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("app.create status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(middleware.CorrelationHeader) == "" {
		t.Error("no correlation id on response")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	rec = postRPC(t, h, `[
		{"jsonrpc":"2.0","method":"range.set_value","params":{"book":"Book1","sheet":"Sheet1","address":"A1:B1","value":[[1,"two"]]},"id":"w"},
		{"jsonrpc":"2.0","method":"range.get_value","params":{"book":"Book1","sheet":"Sheet1","address":"A1:B1"},"id":"r"},
		{"jsonrpc":"2.0","method":"sheet.get","params":{"book":"Missing","sheet":"Sheet1"},"id":"m"}
	]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d", rec.Code)
	}
	var batch []rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatalf("decode batch %s: %v", rec.Body, err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch = %s", rec.Body)
	}
	if string(batch[0].ID) != `"w"` || batch[0].Error != nil {
		t.Fatalf("write = %+v", batch[0])
	}
	var values []any
	if err := json.Unmarshal(batch[1].Result, &values); err != nil || len(values) != 2 || values[1] != "two" {
		t.Fatalf("read = %s (%v)", batch[1].Result, err)
	}
	if batch[2].Error == nil || batch[2].Error.Code != -32001 {
		t.Fatalf("missing workbook = %+v", batch[2])
	}
}

func TestNotificationOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := postRPC(t, srv.Handler(), `{"jsonrpc":"2.0","method":"app.list"}`)
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestParseErrorOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := postRPC(t, srv.Handler(), `{"jsonrpc":`)
	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || resp.Error == nil || resp.Error.Code != jsonrpc.CodeParseError || string(resp.ID) != "null" {
		t.Fatalf("status = %d resp = %s", rec.Code, rec.Body)
	}
}

func TestBodyLimitOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{MaxBodyBytes: 64})
	body := `{"jsonrpc":"2.0","method":"app.list","params":{"pad":"` + strings.Repeat("x", 128) + `"},"id":1}`
	rec := postRPC(t, srv.Handler(), body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRPCRequiresPOST(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultRPCPath, nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{CORSOrigins: []string{"https://sheets.example"}})
	req := httptest.NewRequest(http.MethodOptions, DefaultRPCPath, nil)
	req.Header.Set("Origin", "https://sheets.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://sheets.example" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimitOverHTTP(t *testing.T) {
	srv := newTestServer(t, Config{RateLimit: 1, RateBurst: 1})
	h := srv.Handler()
	if rec := postRPC(t, h, `{"jsonrpc":"2.0","method":"app.list","id":1}`); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := postRPC(t, h, `{"jsonrpc":"2.0","method":"app.list","id":2}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second request = %d", rec.Code)
	}
}

func TestMethodsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMethodsPath+"?namespace=chart", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []jsonrpc.Method
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 6 {
		t.Fatalf("chart methods = %d", len(list))
	}
	for _, m := range list {
		if !strings.HasPrefix(m.Name, "chart.") {
			t.Fatalf("unexpected method %q", m.Name)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMethodsPath, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != len(srv.Registry().Methods()) {
		t.Fatalf("all methods = %d", len(list))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMethodsPath+"?namespace=pivot", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown namespace = %d", rec.Code)
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := newTestServer(t, Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.WaitUntilReady(ctx); err != nil {
		t.Fatal(err)
	}
	addr := srv.ListenerAddr()
	if addr == nil {
		t.Fatal("no listener address")
	}
	resp, err := http.Get("http://" + addr.String() + DefaultHealthPath)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}

	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{MetricsListen: "127.0.0.1:0"})
	addr := srv.MetricsAddr()
	if addr == nil {
		t.Fatal("metrics listener not started")
	}
	postRPC(t, srv.Handler(), `{"jsonrpc":"2.0","method":"app.list","id":1}`)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "target_info") {
		t.Fatalf("metrics = %d %s", resp.StatusCode, body)
	}
}

func TestMetricsAddrDuringShutdown(t *testing.T) {
	srv := newTestServer(t, Config{MetricsListen: "127.0.0.1:0"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = srv.MetricsAddr()
		}
	}()
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
	<-done
	if srv.MetricsAddr() != nil {
		t.Fatal("metrics address reported after shutdown")
	}
}
