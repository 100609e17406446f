// Package monitoring provides the zap logger, Prometheus metrics and
// OpenTelemetry tracing used by the client and its commands.
package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/pkg/logger"
)

const instrumentationName = "github.com/turtacn/modelfarm"

// TracingManager owns the tracer provider for the process. The zero provider
// means tracing is off and spans are dropped.
type TracingManager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	logger   logger.Logger
}

// NewTracingManager exports spans to the Jaeger collector in cfg, or returns
// a no-op tracer when tracing is disabled.
func NewTracingManager(cfg *config.TracingConfig, log logger.Logger) (*TracingManager, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	tm := &TracingManager{logger: log.WithFields(logger.Fields{"component": "tracing"})}
	if !cfg.Enabled {
		tm.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
		return tm, nil
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	tm.provider = provider
	tm.tracer = provider.Tracer(instrumentationName)
	tm.logger.Info(context.Background(), "Exporting spans to Jaeger", logger.Fields{
		"endpoint":      cfg.JaegerEndpoint,
		"service":       cfg.ServiceName,
		"sampling_rate": cfg.SamplingRate,
	})
	return tm, nil
}

func newProvider(cfg *config.TracingConfig) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	if cfg.SamplingRate >= 1 {
		sampler = sdktrace.AlwaysSample()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.TelemetrySDKLanguageGo,
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	), nil
}

func (tm *TracingManager) Tracer() trace.Tracer { return tm.tracer }

// TraceID returns the trace id of the span in ctx, or "" when there is none.
func (tm *TracingManager) TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// Shutdown flushes pending spans to the collector.
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}
	if err := tm.provider.Shutdown(ctx); err != nil {
		tm.logger.Error(ctx, "Span export did not finish", err)
		return err
	}
	return nil
}
