package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the backend's OpenTelemetry providers.
type ProviderConfig struct {
	// ServiceName labels all telemetry. Defaults to "lahn-avatar".
	ServiceName string

	// ServiceVersion is the build version reported alongside ServiceName.
	ServiceVersion string

	// TraceExporter receives finished spans. Leave nil to keep tracing
	// in-process only: spans still propagate correlation IDs through the
	// voice pipeline, they just go nowhere. Production deployments plug in
	// an OTLP exporter here.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider wires the global OTel meter and tracer providers for the
// process. Metrics always flow to the default Prometheus registry so the
// /metrics endpoint works without further setup; tracing export is opt-in
// via [ProviderConfig.TraceExporter].
//
// The returned function flushes and shuts down everything registered here.
// main defers it alongside the other subsystem closers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lahn-avatar"
	}

	res, err := buildResource(cfg)
	if err != nil {
		return nil, err
	}

	mp, err := newMeterProvider(res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)

	tp := newTracerProvider(res, cfg.TraceExporter)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return shutdown, nil
}

func buildResource(cfg ProviderConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// newMeterProvider bridges OTel metrics into the default Prometheus
// registry, which promhttp serves on /metrics.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	), nil
}

func newTracerProvider(res *resource.Resource, exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...)
}
