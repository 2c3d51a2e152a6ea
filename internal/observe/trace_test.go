package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withSpanSink installs an in-memory exporter as the global tracer provider
// for the duration of the test.
func withSpanSink(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := withSpanSink(t)

	ctx, span := StartSpan(context.Background(), "voice.turn")
	if CorrelationID(ctx) == "" {
		t.Error("span context carries no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans recorded = %d; want 1", len(spans))
	}
	if spans[0].Name != "voice.turn" {
		t.Errorf("span name = %q; want voice.turn", spans[0].Name)
	}
}

func TestCorrelationID_Properties(t *testing.T) {
	withSpanSink(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q; want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "index.rebuild")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("trace ID length = %d; want 32 hex chars", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("trace ID %q contains non-hex characters", cid)
	}
}

func TestCorrelationID_DistinctPerTurn(t *testing.T) {
	withSpanSink(t)

	seen := make(map[string]struct{}, 64)
	for range 64 {
		ctx, span := StartSpan(context.Background(), "voice.turn")
		cid := CorrelationID(ctx)
		span.End()
		if _, dup := seen[cid]; dup {
			t.Fatalf("trace ID %s issued twice", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestLogger_AttachesTraceContext(t *testing.T) {
	withSpanSink(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, span := StartSpan(context.Background(), "sensors.fetch")
	defer span.End()

	Logger(ctx).Info("channel fetched", "rows", 100)

	logged := buf.String()
	for _, want := range []string{"trace_id=", "span_id=", "rows=100"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log line missing %q: %s", want, logged)
		}
	}
}

func TestLogger_PlainWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Logger(context.Background()).Info("startup")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("spanless log line carries a trace_id: %s", buf.String())
	}
}

func TestTracer_UsesGlobalProvider(t *testing.T) {
	exp := withSpanSink(t)

	_, span := Tracer().Start(context.Background(), "prompt.refresh")
	span.End()

	if len(exp.GetSpans()) != 1 {
		t.Error("tracer did not route spans through the registered provider")
	}
}
