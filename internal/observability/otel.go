// Package observability wires up OpenTelemetry tracing, grounded on the
// teacher's internal/observability/otel.go: OTLP exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, stdout exporter otherwise, a
// ratio sampler, and a once-guarded global TracerProvider.
package observability

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/northboundcommerce/po-ingest-engine/internal/platform/logger"
)

const defaultServiceName = "po-ingest-engine"

// StageTracer is the tracer the Workflow Orchestrator spans each stage
// execution against (spec.md §4.7). A package-level tracer is fine here:
// otel.Tracer is itself process-global state once the provider is set.
var StageTracer = otel.Tracer("po-ingest-engine/orchestrator")

var (
	initOnce       sync.Once
	shutdownTracer func(context.Context) error
)

// Init installs the global TracerProvider if OTEL_ENABLED is set; it is
// a no-op otherwise, leaving otel's default no-op tracer in place so
// every StageTracer.Start call is free to leave uncalled. Returns the
// shutdown func to defer from App.Close.
func Init(ctx context.Context, log *logger.Logger) func(context.Context) error {
	initOnce.Do(func() {
		if !enabled() {
			shutdownTracer = func(context.Context) error { return nil }
			return
		}

		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceNameKey.String(defaultServiceName),
				attribute.String("deployment.environment", envOr("DEPLOY_ENV", "development")),
			),
		)
		if err != nil && log != nil {
			log.Warn("otel resource init failed (continuing)", "error", err)
		}

		exporter, err := buildExporter(ctx)
		if err != nil && log != nil {
			log.Warn("otel exporter init failed, falling back to stdout", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		StageTracer = otel.Tracer("po-ingest-engine/orchestrator")
		shutdownTracer = tp.Shutdown
		if log != nil {
			log.Info("otel tracing initialized", "endpoint", envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "stdout"))
		}
	})
	return shutdownTracer
}

func buildExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if envBool("OTEL_EXPORTER_OTLP_INSECURE") {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

func enabled() bool {
	return envBool("OTEL_ENABLED")
}

func envBool(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func sampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 0.1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// StartSpan is a thin convenience wrapper kept next to StageTracer so
// callers don't need to import go.opentelemetry.io/otel/trace directly.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StageTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
