package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newInstrumentedHandler builds a Middleware-wrapped handler around fn with
// inspectable metric and span sinks.
func newInstrumentedHandler(t *testing.T, fn http.HandlerFunc) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return Middleware(m)(fn), reader, exp
}

func attrValue(attrs metricdata.HistogramDataPoint[float64], key string) (string, bool) {
	for _, kv := range attrs.Attributes.ToSlice() {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestMiddleware_CorrelationIDFlowsToHandlerAndHeader(t *testing.T) {
	var inHandler string
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if len(inHandler) != 32 {
		t.Fatalf("handler correlation ID = %q; want a 32-char trace ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID = %q; handler saw %q", got, inHandler)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/voice-chat", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if inHandler != upstream {
		t.Errorf("correlation ID = %q; want the upstream trace ID %q", inHandler, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID = %q; want %q", got, upstream)
	}
}

func TestMiddleware_RecordsDurationWithRouteAndStatus(t *testing.T) {
	handler, reader, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/debate-summary", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "lahn.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("unexpected metric shape: %T", met.Data)
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d; want 1", dp.Count)
	}
	for key, want := range map[string]string{
		"method": http.MethodPost,
		"path":   "/api/debate-summary",
		"status": "400",
	} {
		if got, found := attrValue(dp, key); !found || got != want {
			t.Errorf("attribute %q = %q (found=%v); want %q", key, got, found, want)
		}
	}
}

func TestMiddleware_SpanCarriesStatusCode(t *testing.T) {
	handler, _, exp := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reply-audio", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans recorded = %d; want 1", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/reply-audio" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status attribute = %d; want 404", status)
	}
}

func TestMiddleware_ProbeCompletionsLogAtDebug(t *testing.T) {
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if logged := buf.String(); strings.Contains(logged, "request completed") {
		t.Errorf("probe traffic appeared in the info log: %s", logged)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	if logged := buf.String(); !strings.Contains(logged, "/api/chat") {
		t.Errorf("API traffic missing from the info log: %s", logged)
	}
}

func TestMiddleware_CountsResponseBytes(t *testing.T) {
	body := []byte(`{"reply":"Die Lahn grüßt."}`)
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	if rec.Body.Len() != len(body) {
		t.Fatalf("body length = %d; want %d", rec.Body.Len(), len(body))
	}
	if !strings.Contains(buf.String(), "bytes="+strconv.Itoa(len(body))) {
		t.Errorf("completion log missing byte count: %s", buf.String())
	}
}
