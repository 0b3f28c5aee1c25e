package sheetrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc/internal/version"
)

// telemetryBundle owns the meter provider and the /metrics listener.
type telemetryBundle struct {
	meterProvider *sdkmetric.MeterProvider
	metricsServer *http.Server
	metricsLn     net.Listener
	logger        pslog.Logger
}

type otelErrorHandler struct {
	logger pslog.Logger
}

func (h otelErrorHandler) Handle(err error) {
	if err != nil {
		h.logger.Warn("telemetry.exporter.error", "error", err)
	}
}

// setupTelemetry installs a Prometheus-backed meter provider and serves it
// on metricsListen. It returns nil when metricsListen is empty; the global
// no-op provider then stays in effect.
func setupTelemetry(ctx context.Context, metricsListen string, logger pslog.Logger) (*telemetryBundle, error) {
	if metricsListen == "" {
		return nil, nil
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName("sheetrpc"),
			semconv.ServiceVersion(version.Current()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("telemetry: start prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	srv, ln, err := startMetricsServer(metricsListen, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(meterProvider)
	otel.SetErrorHandler(otelErrorHandler{logger: logger})
	logger.Info("telemetry.metrics.enabled", "listen", ln.Addr().String())

	return &telemetryBundle{
		meterProvider: meterProvider,
		metricsServer: srv,
		metricsLn:     ln,
		logger:        logger,
	}, nil
}

// Addr reports the metrics listener address.
func (t *telemetryBundle) Addr() net.Addr {
	if t == nil || t.metricsLn == nil {
		return nil
	}
	return t.metricsLn.Addr()
}

func (t *telemetryBundle) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.logger.Warn("telemetry.shutdown.failure", "error", err)
		return err
	}
	t.logger.Info("telemetry.shutdown.complete")
	return nil
}

func startMetricsServer(addr string, handler http.Handler, logger pslog.Logger) (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("telemetry.metrics.serve_error", "error", err)
		}
	}()
	return srv, ln, nil
}
