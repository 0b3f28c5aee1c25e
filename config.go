package sheetrpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnehpets/sheetrpc/jsonrpc"
	"github.com/mnehpets/sheetrpc/resolve"
)

const (
	// DefaultListen is the HTTP listen address.
	DefaultListen = "127.0.0.1:8000"
	// DefaultRPCPath serves JSON-RPC.
	DefaultRPCPath = "/rpc"
	// DefaultHealthPath serves the health check.
	DefaultHealthPath = "/health"
	// DefaultMethodsPath serves the method catalogue.
	DefaultMethodsPath = "/methods"
	// DefaultCallTimeout bounds each automation call.
	DefaultCallTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultMaxCells caps the cells one range request may cover.
	DefaultMaxCells = resolve.DefaultMaxCells
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultBookPolicy breaks ties between same-named workbooks.
	DefaultBookPolicy = resolve.PreferActive
)

// Config configures a Server. Zero values take the defaults above when
// Validate runs.
type Config struct {
	Listen      string
	RPCPath     string
	HealthPath  string
	MethodsPath string

	// CallTimeout bounds each automation call. Zero takes the default; a
	// negative value disables the bound.
	CallTimeout time.Duration
	// MaxBodyBytes caps request bodies; larger bodies get 413.
	MaxBodyBytes int64
	// MaxCells caps the cells a single range or used range may cover;
	// larger ranges fail with a range error.
	MaxCells int
	// BatchConcurrency bounds the batch items dispatched at once.
	BatchConcurrency int
	// BookPolicy is prefer-active, first or strict.
	BookPolicy resolve.Policy
	// WorkbookDir receives never-saved workbooks saved without a path.
	WorkbookDir string

	// MetricsListen serves Prometheus /metrics when set.
	MetricsListen string

	// CORSOrigins lists the origins allowed to call the RPC endpoint. nil
	// takes the default "*"; an empty non-nil slice disables CORS.
	CORSOrigins []string
	// RateLimit is the requests per second allowed per client; 0 disables
	// limiting.
	RateLimit float64
	// RateBurst is the bucket size for RateLimit. Zero uses the rate,
	// rounded up.
	RateBurst int
	// HSTSMaxAge, in seconds, enables Strict-Transport-Security.
	HSTSMaxAge int

	ShutdownTimeout time.Duration
}

// Validate applies defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	var err error
	if c.RPCPath, err = normalizePath("rpc path", c.RPCPath, DefaultRPCPath); err != nil {
		return err
	}
	if c.HealthPath, err = normalizePath("health path", c.HealthPath, DefaultHealthPath); err != nil {
		return err
	}
	if c.MethodsPath, err = normalizePath("methods path", c.MethodsPath, DefaultMethodsPath); err != nil {
		return err
	}
	if c.RPCPath == c.HealthPath || c.RPCPath == c.MethodsPath || c.HealthPath == c.MethodsPath {
		return fmt.Errorf("config: rpc, health and methods paths must differ")
	}

	if c.CallTimeout == 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	} else if c.MaxBodyBytes < 0 {
		return fmt.Errorf("config: max body must be >= 0")
	}
	if c.MaxCells == 0 {
		c.MaxCells = DefaultMaxCells
	} else if c.MaxCells < 0 {
		return fmt.Errorf("config: max cells must be >= 0")
	}
	if c.BatchConcurrency == 0 {
		c.BatchConcurrency = jsonrpc.DefaultBatchConcurrency
	} else if c.BatchConcurrency < 0 {
		return fmt.Errorf("config: batch concurrency must be >= 0")
	}

	if c.BookPolicy == "" {
		c.BookPolicy = DefaultBookPolicy
	}
	if c.BookPolicy, err = resolve.ParsePolicy(string(c.BookPolicy)); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"*"}
	}
	for i, o := range c.CORSOrigins {
		c.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must be >= 0")
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("config: rate burst must be >= 0")
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = int(c.RateLimit + 0.999)
	}
	if c.HSTSMaxAge < 0 {
		return fmt.Errorf("config: hsts max age must be >= 0")
	}

	c.MetricsListen = strings.TrimSpace(c.MetricsListen)
	if c.MetricsListen != "" && c.MetricsListen == c.Listen {
		return fmt.Errorf("config: metrics listen must differ from listen")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// guardTimeout is the per-call deadline handed to the automation guard.
func (c *Config) guardTimeout() time.Duration {
	if c.CallTimeout < 0 {
		return 0
	}
	return c.CallTimeout
}

func normalizePath(what, p, def string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return def, nil
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("config: %s %q must start with /", what, p)
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p, nil
}
