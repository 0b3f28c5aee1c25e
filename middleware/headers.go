// Package middleware holds the endpoint.Processor implementations wrapped
// around the RPC endpoint: response headers and CORS, request correlation,
// body limits and rate limiting.
package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/sheetrpc/endpoint"
)

// HeadersProcessor sets security headers suited to a JSON API and answers
// CORS requests.
//
// Defaults from NewHeadersProcessor:
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cache-Control: no-store
//
// CORS preflight requests (OPTIONS with Origin and
// Access-Control-Request-Method) are short-circuited with 204.
type HeadersProcessor struct {
	// HSTSMaxAge, in seconds, enables Strict-Transport-Security when positive.
	HSTSMaxAge int

	ReferrerPolicy        string
	FrameOptions          string
	ContentTypeOptions    bool
	ContentSecurityPolicy string
	CacheControl          string

	// CORS is nil to send no CORS headers.
	CORS *CORSConfig
}

// CORSConfig configures Cross-Origin Resource Sharing.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, or "*" for any origin.
	AllowedOrigins []string
	// AllowedMethods defaults to POST, OPTIONS.
	AllowedMethods []string
	// AllowedHeaders defaults to Accept, Content-Type, X-Correlation-Id.
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge, in seconds, lets clients cache preflight results.
	MaxAge int
}

// HeadersOption configures a HeadersProcessor.
type HeadersOption func(*HeadersProcessor)

// NewHeadersProcessor returns a HeadersProcessor with API defaults.
func NewHeadersProcessor(opts ...HeadersOption) *HeadersProcessor {
	p := &HeadersProcessor{
		ReferrerPolicy:        "no-referrer",
		FrameOptions:          "DENY",
		ContentTypeOptions:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTS enables Strict-Transport-Security with includeSubDomains.
func WithHSTS(maxAge int) HeadersOption {
	return func(p *HeadersProcessor) {
		p.HSTSMaxAge = maxAge
	}
}

// WithCORS allows cross-origin calls from origins. An empty list disables
// CORS.
func WithCORS(origins ...string) HeadersOption {
	return func(p *HeadersProcessor) {
		if len(origins) == 0 {
			p.CORS = nil
			return
		}
		p.CORS = &CORSConfig{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", CorrelationHeader},
			ExposedHeaders: []string{CorrelationHeader},
			MaxAge:         3600,
		}
	}
}

// Process implements endpoint.Processor.
func (p *HeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.HSTSMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(p.HSTSMaxAge)+"; includeSubDomains")
	}
	setIf(h, "Referrer-Policy", p.ReferrerPolicy)
	setIf(h, "X-Frame-Options", p.FrameOptions)
	setIf(h, "Content-Security-Policy", p.ContentSecurityPolicy)
	setIf(h, "Cache-Control", p.CacheControl)
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}

	if p.CORS != nil && r.Header.Get("Origin") != "" {
		setCORSHeaders(w, r, p.CORS)
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}
	return next(w, r)
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// setCORSHeaders answers a request carrying an Origin header.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, cfg *CORSConfig) {
	h := w.Header()
	origin := r.Header.Get("Origin")
	switch {
	case slices.Contains(cfg.AllowedOrigins, "*"):
		h.Set("Access-Control-Allow-Origin", "*")
	case slices.Contains(cfg.AllowedOrigins, origin):
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return
	}
	if len(cfg.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
	}
	if r.Method != http.MethodOptions {
		return
	}
	if len(cfg.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
	}
	if len(cfg.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
	}
	if cfg.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
	}
}

var _ endpoint.Processor = (*HeadersProcessor)(nil)
