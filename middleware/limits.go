package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mnehpets/sheetrpc/endpoint"
)

// BodyLimit caps request bodies at Max bytes. Reading past the cap fails, and
// the endpoint decoder answers 413. Requests that declare a larger
// Content-Length are rejected up front.
type BodyLimit struct {
	Max int64
}

// Process implements endpoint.Processor.
func (b BodyLimit) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
		return next(w, r)
	}
	if r.ContentLength > b.Max {
		return endpoint.Error(http.StatusRequestEntityTooLarge, "", fmt.Errorf("content length %d exceeds %d bytes", r.ContentLength, b.Max))
	}
	r.Body = http.MaxBytesReader(w, r.Body, b.Max)
	return next(w, r)
}

// RateLimit applies a token bucket per client address. Requests over the
// limit get 429 with a Retry-After header. Idle buckets are evicted.
type RateLimit struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	byKey map[string]*bucket
	hits  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit returns a limiter allowing rps requests per second with the
// given burst per client. It returns nil, which admits everything, when rps
// is not positive. A burst below 1 is raised to 1.
func NewRateLimit(rps float64, burst int) *RateLimit {
	if rps <= 0 {
		return nil
	}
	return &RateLimit{
		limit:   rate.Limit(rps),
		burst:   max(1, burst),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		byKey:   make(map[string]*bucket),
	}
}

// Allow reports whether key may make a request now.
func (l *RateLimit) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byKey[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Process implements endpoint.Processor.
func (l *RateLimit) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if !l.Allow(clientKey(r)) {
		w.Header().Set("Retry-After", "1")
		return endpoint.Error(http.StatusTooManyRequests, "", nil)
	}
	return next(w, r)
}

func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

var (
	_ endpoint.Processor = BodyLimit{}
	_ endpoint.Processor = (*RateLimit)(nil)
)
