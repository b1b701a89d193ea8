package observability

import (
	"context"
	"io"
	"os"
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

	"github.com/yungbote/persona-backend/internal/platform/logger"
)

const (
	tracerName         = "github.com/yungbote/persona-backend/analysis"
	defaultServiceName = "persona-backend"
)

// OtelConfig is resolved by config.Load; nothing here reads the environment.
type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string

	Enabled      bool
	Endpoint     string
	Headers      map[string]string
	Insecure     bool
	SamplerRatio float64
}

// ExporterKind names where spans end up.
type ExporterKind string

const (
	ExporterNone   ExporterKind = "none"
	ExporterOTLP   ExporterKind = "otlp"
	ExporterStdout ExporterKind = "stdout"
)

// Exporter picks the span exporter: nothing when tracing is off, OTLP/HTTP
// when an endpoint is set and stdout otherwise.
func (c OtelConfig) Exporter() ExporterKind {
	switch {
	case !c.Enabled:
		return ExporterNone
	case strings.TrimSpace(c.Endpoint) != "":
		return ExporterOTLP
	default:
		return ExporterStdout
	}
}

var (
	otelOnce     sync.Once
	otelShutdown func(context.Context) error = func(context.Context) error { return nil }
)

// InitOTel installs the global tracer provider once per process and returns
// its shutdown. With tracing off the pipeline spans stay on the no-op tracer.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		kind := cfg.Exporter()
		if kind == ExporterNone {
			log.Debug("pipeline tracing disabled")
			return
		}
		tp, err := newTracerProvider(ctx, cfg, os.Stdout)
		if err != nil {
			// Spans are diagnostics; an exporter failure must not stop the service.
			log.Warn("pipeline tracing unavailable", "exporter", string(kind), "error", err)
			return
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		otelShutdown = tp.Shutdown
		log.Info("pipeline tracing initialized",
			"service", serviceName(cfg),
			"exporter", string(kind),
			"endpoint", cfg.Endpoint,
			"sample_ratio", cfg.SamplerRatio,
		)
	})
	return otelShutdown
}

// Tracer returns the tracer used for pipeline stage spans. Until InitOTel
// installs a provider it is the global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func serviceName(cfg OtelConfig) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return defaultServiceName
}

// newTracerProvider builds a provider for an enabled cfg. stdout is where the
// stdout exporter writes.
func newTracerProvider(ctx context.Context, cfg OtelConfig, stdout io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := newExporter(ctx, cfg, stdout)
	if err != nil {
		return nil, err
	}
	name := serviceName(cfg)
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplerRatio))),
		sdktrace.WithResource(res),
	), nil
}

func newExporter(ctx context.Context, cfg OtelConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	if cfg.Exporter() == ExporterOTLP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimSpace(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithWriter(stdout))
}
