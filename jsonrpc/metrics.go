package jsonrpc

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

type rpcMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Int64Histogram
	batchSize metric.Int64Histogram
}

func newRPCMetrics(logger pslog.Logger) *rpcMetrics {
	meter := otel.Meter("github.com/mnehpets/sheetrpc/jsonrpc")
	m := &rpcMetrics{}
	var err error

	m.requests, err = meter.Int64Counter(
		"sheetrpc.rpc.requests",
		metric.WithDescription("JSON-RPC request items processed"),
	)
	logMetricInitError(logger, "sheetrpc.rpc.requests", err)

	m.duration, err = meter.Int64Histogram(
		"sheetrpc.rpc.duration_ms",
		metric.WithDescription("JSON-RPC request item duration"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "sheetrpc.rpc.duration_ms", err)

	m.batchSize, err = meter.Int64Histogram(
		"sheetrpc.rpc.batch.size",
		metric.WithDescription("Items per JSON-RPC batch"),
	)
	logMetricInitError(logger, "sheetrpc.rpc.batch.size", err)

	return m
}

func (m *rpcMetrics) recordRequest(ctx context.Context, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := metric.WithAttributes(
		attribute.String("sheetrpc.rpc.method", methodLabel(method)),
		attribute.String("sheetrpc.rpc.code", strconv.Itoa(code)),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Milliseconds(), attrs)
	}
}

func (m *rpcMetrics) recordBatch(ctx context.Context, size int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Record(metricContext(ctx), int64(size))
}

func methodLabel(method string) string {
	if method == "" {
		return "none"
	}
	return method
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
