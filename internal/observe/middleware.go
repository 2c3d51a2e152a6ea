package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// responseMeter captures what the API handler wrote: the status code and the
// body size. Voice replies are the only large responses, so the size is worth
// having in the completion log.
type responseMeter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseMeter) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseMeter) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// probePaths are polled by the orchestrator and the Prometheus scraper.
// Their completions log at debug so they do not drown the request log.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Middleware instruments every API request: it continues an incoming W3C
// trace (or starts a new one), exposes the trace ID as X-Correlation-ID,
// records the request in [Metrics.HTTPRequestDuration] with method, path and
// status attributes, and logs the completion.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			meter := &responseMeter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(meter, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					Attr("method", r.Method),
					Attr("path", r.URL.Path),
					Attr("status", strconv.Itoa(meter.status)),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(meter.status))

			level := slog.LevelInfo
			if probePaths[r.URL.Path] {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", meter.status),
				slog.Int("bytes", meter.bytes),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
