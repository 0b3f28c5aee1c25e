package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/mnehpets/sheetrpc/endpoint"
	"github.com/mnehpets/sheetrpc/internal/svcfields"
)

// CorrelationHeader carries the request's correlation identifier in both
// directions.
const CorrelationHeader = "X-Correlation-Id"

// MaxCorrelationIDLength bounds client-supplied identifiers.
const MaxCorrelationIDLength = 128

type correlationKey struct{}

// CorrelationID returns the identifier stored on ctx by Correlation.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// NormalizeCorrelationID validates a client-supplied identifier: printable
// ASCII, at most MaxCorrelationIDLength bytes.
func NormalizeCorrelationID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxCorrelationIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// Correlation tags every request with a correlation identifier, taken from
// the X-Correlation-Id request header when valid or generated otherwise, and
// echoes it in the response. The request context carries a logger with the
// identifier as "cid", retrievable with pslog.LoggerFromContext. Each request
// ends with an "http.request" access log entry at Debug, or at Warn for
// failures.
type Correlation struct {
	Logger pslog.Logger
}

// NewCorrelation returns a Correlation logging under the "http" subsystem.
func NewCorrelation(logger pslog.Logger) *Correlation {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Correlation{Logger: svcfields.WithSubsystem(logger, "http")}
}

// Process implements endpoint.Processor.
func (c *Correlation) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()
	id, ok := NormalizeCorrelationID(r.Header.Get(CorrelationHeader))
	if !ok {
		id = uuid.NewString()
	}
	w.Header().Set(CorrelationHeader, id)

	logger := c.Logger.With("cid", id, "method", r.Method, "path", r.URL.Path)
	ctx := context.WithValue(r.Context(), correlationKey{}, id)
	ctx = pslog.ContextWithLogger(ctx, logger)

	err := next(w, r.WithContext(ctx))
	if err != nil {
		logger.Warn("http.request", "remote_addr", r.RemoteAddr, "elapsed", time.Since(start), "error", err)
		return err
	}
	logger.Debug("http.request", "remote_addr", r.RemoteAddr, "elapsed", time.Since(start))
	return nil
}

var _ endpoint.Processor = (*Correlation)(nil)
