package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/mnehpets/sheetrpc/endpoint"
)

type testMethods struct{}

type echoParams struct {
	Msg string `json:"msg" rpc:"required" alias:"message"`
}

func (testMethods) Echo(ctx context.Context, p echoParams) (string, error) {
	return p.Msg, nil
}

type addParams struct {
	A int `json:"a" rpc:"required"`
	B int `json:"b" default:"10"`
}

func (testMethods) Add(ctx context.Context, p addParams) (int, error) {
	return p.A + p.B, nil
}

type putParams struct {
	Value any `json:"value" rpc:"required"`
}

func (testMethods) Put(ctx context.Context, p putParams) (bool, error) {
	return p.Value == nil, nil
}

type sleepParams struct {
	Ms int `json:"ms"`
}

func (testMethods) Sleep(ctx context.Context, p sleepParams) (int, error) {
	time.Sleep(time.Duration(p.Ms) * time.Millisecond)
	return p.Ms, nil
}

type failParams struct {
	_    struct{} `jsonrpc:"fail"`
	Kind string   `json:"kind"`
}

var errDomain = errors.New("domain failure")

func (testMethods) Fail(ctx context.Context, p failParams) (any, error) {
	switch p.Kind {
	case "rpc":
		return nil, NewError(-32001, "Workbook not found").WithDetail("Missing.xlsx")
	case "domain":
		return nil, errDomain
	case "panic":
		panic("boom")
	}
	return nil, errors.New("oops")
}

// NotExposed has the wrong signature and is skipped by Register.
func (testMethods) NotExposed(a, b int) int { return a + b }

func translate(err error) *Error {
	if errors.Is(err, errDomain) {
		return NewError(-32050, "Domain error").WithDetail(err.Error())
	}
	return nil
}

func newTestDispatcher(opts ...Option) *Dispatcher {
	reg := NewRegistry()
	reg.Register("test", testMethods{})
	return NewDispatcher(reg, append([]Option{WithTranslator(translate)}, opts...)...)
}

func serveRPC(d *Dispatcher, processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(d.Endpoint, processors...)
}

func post(t *testing.T, h http.Handler, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error: %v", resp)
	}
	if _, ok := resp["result"]; ok {
		t.Fatalf("response has both result and error: %v", resp)
	}
	return int(e["code"].(float64))
}

func TestPOSTOnlyEnforcement(t *testing.T) {
	d := newTestDispatcher()
	tests := []struct {
		method   string
		wantCode int
	}{
		{http.MethodGet, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
		{http.MethodPost, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			serveRPC(d).ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	rec := post(t, serveRPC(newTestDispatcher()), `{"jsonrpc":"2.0","method":"test.Echo","params":["x"],"id":1}`, "text/plain")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got status %d, want 415", rec.Code)
	}
}

func TestSingleRequestEchoesID(t *testing.T) {
	h := serveRPC(newTestDispatcher())
	for _, id := range []string{`1`, `"abc"`, `-3.5`} {
		rec := post(t, h, `{"jsonrpc":"2.0","method":"test.Add","params":{"a":2,"b":3},"id":`+id+`}`, "application/json")
		resp := decodeObject(t, rec)
		wantID := any(nil)
		_ = json.Unmarshal([]byte(id), &wantID)
		if resp["id"] != wantID {
			t.Errorf("id = %v, want %v", resp["id"], wantID)
		}
		if resp["jsonrpc"] != "2.0" || resp["result"] != float64(5) {
			t.Errorf("response = %v", resp)
		}
		if got := rec.Header().Get("Content-Type"); got != MediaTypeJSON {
			t.Errorf("Content-Type = %q", got)
		}
	}
}

func TestVersionKeyAlias(t *testing.T) {
	rec := post(t, serveRPC(newTestDispatcher()), `{"protocol_version":"2.0","method":"test.Echo","params":{"msg":"hi"},"id":1}`, "")
	resp := decodeObject(t, rec)
	if resp["protocol_version"] != "2.0" {
		t.Fatalf("response did not echo the version key: %v", resp)
	}
	if _, ok := resp["jsonrpc"]; ok {
		t.Fatalf("response carries both version keys: %v", resp)
	}
	if !strings.HasPrefix(rec.Body.String(), `{"protocol_version":"2.0","result":"hi","id":1}`) {
		t.Errorf("member order = %s", rec.Body.String())
	}
}

func TestNotificationIsSuppressed(t *testing.T) {
	rec := post(t, serveRPC(newTestDispatcher()), `{"jsonrpc":"2.0","method":"test.Echo","params":["hi"]}`, "application/json")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("notification produced a body: %q", rec.Body.String())
	}
}

func TestNullIDIsARequest(t *testing.T) {
	resp := decodeObject(t, post(t, serveRPC(newTestDispatcher()), `{"jsonrpc":"2.0","method":"test.Echo","params":["hi"],"id":null}`, "application/json"))
	if v, ok := resp["id"]; !ok || v != nil {
		t.Fatalf("id = %v (present %v), want null", v, ok)
	}
	if resp["result"] != "hi" {
		t.Fatalf("result = %v", resp["result"])
	}
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"jsonrpc":"2.0",`, CodeParseError},
		{"scalar payload", `42`, CodeParseError},
		{"empty body", ``, CodeParseError},
		{"empty batch", `[]`, CodeInvalidRequest},
		{"missing version", `{"method":"test.Echo","id":1}`, CodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","method":"test.Echo","id":1}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"method not a string", `{"jsonrpc":"2.0","method":5,"id":1}`, CodeInvalidRequest},
		{"scalar params", `{"jsonrpc":"2.0","method":"test.Echo","params":"x","id":1}`, CodeInvalidRequest},
		{"object id", `{"jsonrpc":"2.0","method":"test.Echo","id":{}}`, CodeInvalidRequest},
	}
	h := serveRPC(newTestDispatcher())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeObject(t, post(t, h, tt.body, "application/json"))
			if got := errorCode(t, resp); got != tt.code {
				t.Errorf("code = %d, want %d", got, tt.code)
			}
		})
	}
}

func TestMethodNotFoundIgnoresParams(t *testing.T) {
	h := serveRPC(newTestDispatcher())
	for _, params := range []string{``, `,"params":[]`, `,"params":{"x":1}`, `,"params":[1,2,3]`} {
		resp := decodeObject(t, post(t, h, `{"jsonrpc":"2.0","method":"nonexistent"`+params+`,"id":9}`, "application/json"))
		if got := errorCode(t, resp); got != CodeMethodNotFound {
			t.Errorf("params %q: code = %d, want %d", params, got, CodeMethodNotFound)
		}
	}
}

func TestParamsValidation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params string
		result any
		code   int
	}{
		{"named", "test.Add", `{"a":1,"b":2}`, float64(3), 0},
		{"default applied", "test.Add", `{"a":1}`, float64(11), 0},
		{"positional", "test.Add", `[4,5]`, float64(9), 0},
		{"positional default", "test.Add", `[4]`, float64(14), 0},
		{"alias", "test.Echo", `{"message":"hey"}`, "hey", 0},
		{"missing required", "test.Add", `{"b":2}`, nil, CodeInvalidParams},
		{"missing params", "test.Echo", ``, nil, CodeInvalidParams},
		{"wrong type", "test.Add", `{"a":"one"}`, nil, CodeInvalidParams},
		{"too many positional", "test.Add", `[1,2,3]`, nil, CodeInvalidParams},
		{"null required", "test.Add", `{"a":null}`, nil, CodeInvalidParams},
		{"null positional required", "test.Add", `[null,1]`, nil, CodeInvalidParams},
		{"null takes default", "test.Add", `{"a":1,"b":null}`, float64(11), 0},
		{"null is a value for any", "test.Put", `{"value":null}`, true, 0},
		{"missing any", "test.Put", `{}`, nil, CodeInvalidParams},
	}
	h := serveRPC(newTestDispatcher())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := ""
			if tt.params != "" {
				params = `,"params":` + tt.params
			}
			resp := decodeObject(t, post(t, h, `{"jsonrpc":"2.0","method":"`+tt.method+`"`+params+`,"id":1}`, "application/json"))
			if tt.code != 0 {
				if got := errorCode(t, resp); got != tt.code {
					t.Errorf("code = %d, want %d", got, tt.code)
				}
				return
			}
			if resp["result"] != tt.result {
				t.Errorf("result = %v, want %v (response %v)", resp["result"], tt.result, resp)
			}
		})
	}
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		kind    string
		code    int
		message string
		detail  string
	}{
		{"rpc", -32001, "Workbook not found", "Missing.xlsx"},
		{"domain", -32050, "Domain error", "domain failure"},
		{"other", CodeInternalError, "Internal error", "oops"},
		{"panic", CodeInternalError, "Internal error", "boom"},
	}
	h := serveRPC(newTestDispatcher())
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			resp := decodeObject(t, post(t, h, `{"jsonrpc":"2.0","method":"test.fail","params":{"kind":"`+tt.kind+`"},"id":7}`, "application/json"))
			if got := errorCode(t, resp); got != tt.code {
				t.Fatalf("code = %d, want %d", got, tt.code)
			}
			e := resp["error"].(map[string]any)
			if e["message"] != tt.message {
				t.Errorf("message = %v, want %q", e["message"], tt.message)
			}
			data, _ := e["data"].(map[string]any)
			if data["detail"] != tt.detail {
				t.Errorf("data.detail = %v, want %q", data["detail"], tt.detail)
			}
			if tt.kind == "panic" {
				if tb, _ := data["traceback"].(string); !strings.Contains(tb, "goroutine") {
					t.Errorf("panic response lacks a traceback: %v", data)
				}
			}
			if resp["id"] != float64(7) {
				t.Errorf("id = %v", resp["id"])
			}
		})
	}
}

func TestBatchOrderAndIsolation(t *testing.T) {
	body := `[
		{"jsonrpc":"2.0","method":"test.Sleep","params":{"ms":40},"id":1},
		{"jsonrpc":"2.0","method":"test.Sleep","params":{"ms":0},"id":2},
		{"jsonrpc":"2.0","method":"nonexistent","id":3},
		{"jsonrpc":"2.0","method":"test.Echo","params":["note"]},
		5,
		{"jsonrpc":"2.0","method":"test.Sleep","params":{"ms":10},"id":1}
	]`
	rec := post(t, serveRPC(newTestDispatcher(WithBatchConcurrency(4))), body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resps []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resps); err != nil {
		t.Fatalf("batch reply is not an array: %v (%s)", err, rec.Body.String())
	}
	if len(resps) != 5 {
		t.Fatalf("got %d responses, want 5: %s", len(resps), rec.Body.String())
	}
	if resps[0]["result"] != float64(40) || resps[1]["result"] != float64(0) {
		t.Errorf("first responses out of order: %v, %v", resps[0], resps[1])
	}
	if errorCode(t, resps[2]) != CodeMethodNotFound || resps[2]["id"] != float64(3) {
		t.Errorf("third response = %v", resps[2])
	}
	if errorCode(t, resps[3]) != CodeInvalidRequest || resps[3]["id"] != nil {
		t.Errorf("malformed item response = %v", resps[3])
	}
	if resps[4]["result"] != float64(10) || resps[4]["id"] != float64(1) {
		t.Errorf("repeated id response = %v", resps[4])
	}
}

func TestBatchOfNotifications(t *testing.T) {
	rec := post(t, serveRPC(newTestDispatcher()), `[{"jsonrpc":"2.0","method":"test.Echo","params":["a"]},{"jsonrpc":"2.0","method":"nonexistent"}]`, "application/json")
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("got status %d body %q, want 204 and no body", rec.Code, rec.Body.String())
	}
}

func TestCBOREnvelope(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "test.Add",
		"params":  map[string]any{"a": 20, "b": 22},
		"id":      3,
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(payload))
	req.Header.Set("Content-Type", MediaTypeCBOR)
	rec := httptest.NewRecorder()
	serveRPC(newTestDispatcher()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d (%s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != MediaTypeCBOR {
		t.Fatalf("Content-Type = %q", got)
	}
	var resp struct {
		Version string `cbor:"jsonrpc"`
		Result  int    `cbor:"result"`
		ID      int    `cbor:"id"`
	}
	if err := cbor.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode cbor reply: %v", err)
	}
	if resp.Version != "2.0" || resp.Result != 42 || resp.ID != 3 {
		t.Fatalf("reply = %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte{0xff, 0x00}))
	req.Header.Set("Content-Type", MediaTypeCBOR)
	rec = httptest.NewRecorder()
	serveRPC(newTestDispatcher()).ServeHTTP(rec, req)
	var bad struct {
		Error *Error `cbor:"error"`
	}
	if err := cbor.Unmarshal(rec.Body.Bytes(), &bad); err != nil || bad.Error == nil || bad.Error.Code != CodeParseError {
		t.Fatalf("undecodable cbor reply = %+v, %v", bad, err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("test", testMethods{})

	var names []string
	for _, m := range reg.Methods() {
		names = append(names, m.Name)
	}
	want := []string{"test.Add", "test.Echo", "test.Put", "test.Sleep", "test.fail"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", names, want)
	}

	add, ok := reg.Lookup("test.Add")
	if !ok {
		t.Fatal("test.Add not registered")
	}
	if len(add.Params) != 2 || !add.Params[0].Required || string(add.Params[1].Default) != "10" || add.Params[1].Type != "integer" {
		t.Fatalf("schema = %+v", add.Params)
	}
	if _, ok := reg.Lookup("test.add"); ok {
		t.Fatal("lookup is case-insensitive")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("registering a duplicate namespace did not panic")
		}
	}()
	reg.Register("test", testMethods{})
}

type label string

func (label) RPCType() string { return "label" }

type labelParams struct {
	Name   label  `json:"name"`
	Before *label `json:"before"`
	Count  *int   `json:"count"`
}

type labelMethods struct{}

func (labelMethods) Tag(ctx context.Context, p labelParams) (string, error) {
	if p.Before != nil {
		return string(*p.Before), nil
	}
	return string(p.Name), nil
}

func TestRegistryPointerFields(t *testing.T) {
	reg := NewRegistry()
	reg.Register("label", labelMethods{})

	m, ok := reg.Lookup("label.Tag")
	if !ok {
		t.Fatal("label.Tag not registered")
	}
	var types []string
	for _, p := range m.Params {
		types = append(types, p.Type)
	}
	if got := strings.Join(types, ","); got != "label,label,integer" {
		t.Fatalf("param types = %s", got)
	}
}
