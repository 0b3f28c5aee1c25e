// Package sheetrpc serves spreadsheet automation over JSON-RPC 2.0.
package sheetrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc/automation"
	"github.com/mnehpets/sheetrpc/automation/memory"
	"github.com/mnehpets/sheetrpc/endpoint"
	"github.com/mnehpets/sheetrpc/internal/svcfields"
	"github.com/mnehpets/sheetrpc/internal/version"
	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/methods"
	"github.com/mnehpets/sheetrpc/middleware"
	"github.com/mnehpets/sheetrpc/resolve"
)

// Server wires the automation backend, the method registry and the HTTP
// transport together.
type Server struct {
	cfg        Config
	logger     pslog.Logger
	backend    automation.Backend
	guard      *automation.Guard
	registry   *jsonrpc.Registry
	dispatcher *jsonrpc.Dispatcher
	httpSrv    *http.Server
	telemetry  *telemetryBundle

	mu        sync.Mutex
	listener  net.Listener
	shutdown  bool
	readyOnce sync.Once
	readyCh   chan struct{}
}

// Option configures server instances.
type Option func(*options)

type options struct {
	Logger  pslog.Logger
	Backend automation.Backend
}

// WithLogger supplies the base logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithBackend injects an automation backend in place of the in-memory one.
func WithBackend(b automation.Backend) Option {
	return func(o *options) {
		o.Backend = b
	}
}

// NewServer constructs a server according to cfg. Call Start to serve, or
// mount Handler on an existing mux.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	logger = svcfields.WithSubsystem(logger, "server")

	// The meter provider must be in place before the dispatcher creates its
	// instruments.
	telemetry, err := setupTelemetry(context.Background(), cfg.MetricsListen, svcfields.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}

	backend := o.Backend
	if backend == nil {
		backend = memory.New(memory.Options{Dir: cfg.WorkbookDir})
	}
	guard := automation.NewGuard(cfg.guardTimeout())
	resolver := resolve.New(backend, cfg.BookPolicy,
		resolve.WithGuard(guard),
		resolve.WithMaxCells(cfg.MaxCells),
	)
	svc := methods.NewService(resolver)

	registry := jsonrpc.NewRegistry()
	methods.Register(registry, svc)
	dispatcher := jsonrpc.NewDispatcher(registry,
		jsonrpc.WithTranslator(methods.TranslateError),
		jsonrpc.WithLogger(svcfields.WithSubsystem(logger, "rpc")),
		jsonrpc.WithBatchConcurrency(cfg.BatchConcurrency),
	)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		backend:    backend,
		guard:      guard,
		registry:   registry,
		dispatcher: dispatcher,
		telemetry:  telemetry,
		readyCh:    make(chan struct{}),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           otelhttp.NewHandler(s.routes(), "sheetrpc"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("server.configured",
		"version", version.Current(),
		"rpc_path", cfg.RPCPath,
		"book_policy", string(cfg.BookPolicy),
		"call_timeout", cfg.CallTimeout.String(),
		"max_cells", cfg.MaxCells,
		"methods", len(registry.Methods()),
	)
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	headerOpts := []middleware.HeadersOption{}
	if len(s.cfg.CORSOrigins) > 0 {
		headerOpts = append(headerOpts, middleware.WithCORS(s.cfg.CORSOrigins...))
	}
	if s.cfg.HSTSMaxAge > 0 {
		headerOpts = append(headerOpts, middleware.WithHSTS(s.cfg.HSTSMaxAge))
	}
	correlation := middleware.NewCorrelation(s.logger)
	headers := middleware.NewHeadersProcessor(headerOpts...)

	rpcChain := []endpoint.Processor{correlation, headers}
	if limiter := middleware.NewRateLimit(s.cfg.RateLimit, s.cfg.RateBurst); limiter != nil {
		rpcChain = append(rpcChain, limiter)
	}
	rpcChain = append(rpcChain, middleware.BodyLimit{Max: s.cfg.MaxBodyBytes})

	mux := http.NewServeMux()
	mux.Handle(s.cfg.RPCPath, endpoint.Handler(s.dispatcher.Endpoint, rpcChain...))
	mux.Handle("GET "+s.cfg.HealthPath, endpoint.HandleFunc(s.healthEndpoint, headers))
	mux.Handle("GET "+s.cfg.MethodsPath, endpoint.HandleFunc(s.methodsEndpoint, correlation, headers))
	return mux
}

func (s *Server) healthEndpoint(_ http.ResponseWriter, _ *http.Request, _ struct{}) (endpoint.Renderer, error) {
	return &endpoint.JSONRenderer{Value: map[string]string{
		"status":  "ok",
		"version": version.Current(),
	}}, nil
}

type methodsParams struct {
	Namespace string `query:"namespace"`
}

// methodsEndpoint lists the registered methods and their parameter schemas,
// optionally restricted to one namespace.
func (s *Server) methodsEndpoint(_ http.ResponseWriter, _ *http.Request, p methodsParams) (endpoint.Renderer, error) {
	ns := strings.TrimSuffix(strings.TrimSpace(p.Namespace), ".")
	list := make([]*jsonrpc.Method, 0, len(s.registry.Methods()))
	for _, m := range s.registry.Methods() {
		if ns != "" && !strings.HasPrefix(m.Name, ns+".") {
			continue
		}
		list = append(list, m)
	}
	if ns != "" && len(list) == 0 {
		return nil, endpoint.Error(http.StatusNotFound, fmt.Sprintf("no methods in namespace %q", ns), nil)
	}
	return &endpoint.JSONRenderer{Value: list, Indent: "  "}, nil
}

// Handler exposes the instrumented HTTP handler so callers can mount it on
// their own server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Registry returns the method registry.
func (s *Server) Registry() *jsonrpc.Registry { return s.registry }

// Dispatcher returns the JSON-RPC dispatcher.
func (s *Server) Dispatcher() *jsonrpc.Dispatcher { return s.dispatcher }

// Start begins serving requests and blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen (%s): %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = ln.Close()
		return http.ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()
	s.signalReady()
	s.logger.Info("server.listen", "address", ln.Addr().String())

	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server. Repeated calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	telemetry := s.telemetry
	s.telemetry = nil
	s.mu.Unlock()

	var errs []error
	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if telemetry != nil {
		telemetryCtx := ctx
		if telemetryCtx.Err() != nil {
			var cancel context.CancelFunc
			telemetryCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := telemetry.Shutdown(telemetryCtx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("server.shutdown.failure", "error", err)
	} else {
		s.logger.Info("server.shutdown.complete")
	}
	return err
}

// Close shuts the server down using a background context.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// WaitUntilReady blocks until the listener is bound or ctx ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound listener address once available.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// MetricsAddr returns the metrics listener address, or nil when metrics are
// disabled.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry.Addr()
}
