// Package endpoint provides typed HTTP handlers.
//
// A request passes through three phases:
//
//  1. Unmarshal: the EndpointHandler decodes the query, headers and body into
//     a typed params struct using struct tags.
//  2. Endpoint: the EndpointFunc receives the decoded params, runs the
//     business logic and returns a Renderer. It does not write the response.
//  3. Render: the Renderer writes status, headers and body.
//
// Processors run before the EndpointFunc and may short-circuit the request
// by returning an error, including an *EndpointError carrying an HTTP status.
// Errors are written as {"error":{"status":N,"message":"..."}}. Only an
// EndpointError's message reaches the client; any other error, or a panic,
// becomes a bare 500. Server errors are logged through the request's pslog
// logger.
//
// Renderers:
//   - JSONRenderer: serializes a value as JSON.
//   - NoContentRenderer: writes a status code with no body.
package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"pkt.systems/pslog"
)

// EndpointError is a client-visible error that maps to an HTTP status code.
// Message is written to the response; Cause is only logged and unwrapped.
type EndpointError struct {
	Status  int
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	msg := e.Message
	if msg == "" {
		if msg = http.StatusText(e.Status); msg == "" {
			msg = fmt.Sprintf("status %d", e.Status)
		}
	}
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *EndpointError) Unwrap() error { return e.Cause }

// Error returns an *EndpointError, or err unchanged when it already wraps
// one.
func Error(status int, message string, err error) error {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// Renderer writes a response. Render MUST call w.WriteHeader and may set
// Content-Type before doing so. A returned error means the response could not
// be written; the caller handles it.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Processor is middleware that runs before the EndpointFunc.
//
// Processors call next unless they short-circuit. They may set response
// headers but MUST NOT call w.WriteHeader or write the body.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc receives the decoded params and returns the Renderer for the
// response, or an error.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is the http.Handler wrapper for an EndpointFunc.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler constructs an EndpointHandler. It exists to infer P.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

// HandleFunc adapts an EndpointFunc into an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.step(0, w, r); err != nil {
		writeError(w, r, err)
	}
}

// step runs processor i, or the endpoint once every processor has called
// next. Each processor sees the writer and request its predecessor passed on.
func (h *EndpointHandler[P]) step(i int, w http.ResponseWriter, r *http.Request) (err error) {
	if i < len(h.Processors) {
		p := h.Processors[i]
		if p == nil {
			return errors.New("endpoint: nil processor")
		}
		return p.Process(w, r, func(w http.ResponseWriter, r *http.Request) error {
			return h.step(i+1, w, r)
		})
	}
	if h.Endpoint == nil {
		return errors.New("endpoint: nil EndpointFunc")
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()

	// P must be a struct or pointer to struct; Unmarshal enforces it.
	var params P
	if err := Unmarshal(r, &params); err != nil {
		return err
	}
	renderer, err := h.Endpoint(w, r, params)
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := renderer.(io.Closer); ok {
		defer c.Close()
	}
	return renderer.Render(w, r)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("endpoint: panic: %v", e.value) }

type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := ""
	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil {
		if ee.Status >= 100 {
			status = ee.Status
		}
		message = ee.Message
	}
	if status >= http.StatusInternalServerError {
		logEndpointError(r, err)
	}
	if message == "" {
		message = http.StatusText(status)
	}

	// Preflight and not-modified answers carry no body.
	if status == http.StatusNoContent || status == http.StatusNotModified || status < 200 {
		w.WriteHeader(status)
		return
	}
	var body errorBody
	body.Error.Status = status
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func logEndpointError(r *http.Request, err error) {
	logger := pslog.LoggerFromContext(r.Context())
	if logger == nil {
		return
	}
	var pe *panicError
	if errors.As(err, &pe) {
		logger.Error("http.endpoint.panic", "error", err, "stack", string(pe.stack))
		return
	}
	logger.Error("http.endpoint.error", "error", err)
}
