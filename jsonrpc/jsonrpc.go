package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc/internal/svcfields"
)

// DefaultBatchConcurrency bounds how many batch items run at once when no
// WithBatchConcurrency option is given.
const DefaultBatchConcurrency = 8

// Dispatcher runs requests against a Registry. It holds no per-call state and
// is safe for concurrent use.
type Dispatcher struct {
	registry    *Registry
	translate   Translator
	logger      pslog.Logger
	metrics     *rpcMetrics
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTranslator installs the mapping from handler failures to error objects.
func WithTranslator(t Translator) Option {
	return func(d *Dispatcher) { d.translate = t }
}

// WithLogger sets the fallback logger, used when the request context carries
// none.
func WithLogger(logger pslog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBatchConcurrency bounds how many items of one batch are in flight at
// once. Values below 1 run items sequentially.
func WithBatchConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

// NewDispatcher returns a Dispatcher serving the methods of registry.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		logger:      pslog.NoopLogger(),
		concurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = svcfields.WithSubsystem(d.logger, "rpc.dispatch")
	d.metrics = newRPCMetrics(d.logger)
	return d
}

// Registry returns the registry requests are dispatched against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Handle processes one payload: a single request or a batch. The Reply is
// empty when nothing may be sent back.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) Reply {
	items, batch, rpcErr := Decode(body)
	if rpcErr != nil {
		d.metrics.recordRequest(ctx, "", rpcErr.Code, 0)
		d.loggerFor(ctx).Debug("rpc.payload.rejected", "code", rpcErr.Code, "error", rpcErr)
		return Reply{Responses: []*Response{{ID: nullID, Error: rpcErr}}}
	}
	if batch {
		return Reply{Batch: true, Responses: d.HandleBatch(ctx, items)}
	}
	resp := d.HandleItem(ctx, items[0])
	if resp == nil {
		return Reply{}
	}
	return Reply{Responses: []*Response{resp}}
}

// HandleItem processes one request item. It returns nil for notifications.
func (d *Dispatcher) HandleItem(ctx context.Context, item json.RawMessage) *Response {
	start := time.Now()
	req, rpcErr := ParseRequest(item)
	if rpcErr != nil {
		d.metrics.recordRequest(ctx, "", rpcErr.Code, time.Since(start))
		return errorResponse(req, rpcErr)
	}

	logger := d.loggerFor(ctx).With("method", req.Method, "id", idString(req.ID))
	result, rpcErr := d.invoke(ctx, req)
	elapsed := time.Since(start)

	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		switch {
		case rpcErr.Code == CodeInternalError:
			logger.Error("rpc.request.error", "code", code, "error", rpcErr, "elapsed", elapsed)
		case rpcErr.Code == CodeMethodNotFound, rpcErr.Code == CodeInvalidParams:
			logger.Debug("rpc.request.rejected", "code", code, "error", rpcErr)
		default:
			logger.Warn("rpc.request.error", "code", code, "error", rpcErr, "elapsed", elapsed)
		}
	} else {
		logger.Debug("rpc.request.done", "elapsed", elapsed, "notification", req.Notification())
	}
	d.metrics.recordRequest(ctx, d.metricMethod(req.Method), code, elapsed)

	if req.Notification() {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req, rpcErr)
	}
	return &Response{ID: req.ID, Result: result, versionKey: req.versionKey}
}

// encodeResult marshals a handler result. A value that cannot be encoded is
// an Internal error.
func encodeResult(result any) (json.RawMessage, *Error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, StandardError(CodeInternalError).WithDetail("encode result: " + err.Error())
	}
	return raw, nil
}

// invoke resolves and runs the handler for req. It never panics.
func (d *Dispatcher) invoke(ctx context.Context, req *Request) (result json.RawMessage, rpcErr *Error) {
	m, ok := d.registry.Lookup(req.Method)
	if !ok {
		return nil, StandardError(CodeMethodNotFound).WithDetail(req.Method)
	}
	params, rpcErr := m.decode(req.Params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			rpcErr = StandardError(CodeInternalError).
				WithDetail(fmt.Sprint(r)).
				WithData("traceback", string(debug.Stack()))
		}
	}()
	out, err := m.call(ctx, params)
	if err != nil {
		return nil, toError(err, d.translate)
	}
	return encodeResult(out)
}

func (d *Dispatcher) loggerFor(ctx context.Context) pslog.Logger {
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return svcfields.WithSubsystem(logger, "rpc.dispatch")
	}
	return d.logger
}

// metricMethod keeps metric cardinality bounded to registered names.
func (d *Dispatcher) metricMethod(name string) string {
	if _, ok := d.registry.Lookup(name); ok {
		return name
	}
	return "unknown"
}

func idString(id json.RawMessage) string {
	if id == nil {
		return ""
	}
	return string(id)
}
