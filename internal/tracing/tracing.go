// Package tracing sets up OpenTelemetry tracing for the leaderboard service.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/capboard/pkg/logger"
)

// InstrumentationName names the tracer used by the service.
const InstrumentationName = "github.com/okian/capboard"

// Sentinel kinds for tracing configuration errors.
var (
	ErrMissingServiceName = errors.New("service name is required")
	ErrInvalidSampleRate  = errors.New("sampling rate must be between 0 and 1")
)

// Config holds the configuration for distributed tracing.
type Config struct {
	ServiceName string
	Enabled     bool
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string
	// SampleRate is the fraction of traces to sample, 0 to 1.
	SampleRate float64
	// Insecure disables TLS towards the collector.
	Insecure bool
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	config Config
	logger logger.Logger
}

// NewProvider configures the global tracer provider. A disabled config
// returns a provider whose spans are no-ops.
func NewProvider(ctx context.Context, cfg Config, l logger.Logger) (*Provider, error) {
	if l == nil {
		l = logger.Nop()
	}
	if !cfg.Enabled {
		l.Info(ctx, "tracing disabled")
		return &Provider{config: cfg, logger: l}, nil
	}
	if cfg.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSampleRate, cfg.SampleRate)
	}

	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	ectx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(ectx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	p, err := newProvider(ctx, cfg, l, sdktrace.WithBatcher(exporter,
		sdktrace.WithBatchTimeout(5*time.Second),
		sdktrace.WithMaxExportBatchSize(512),
	))
	if err != nil {
		return nil, err
	}
	l.Info(ctx, "tracing initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

func newProvider(ctx context.Context, cfg Config, l logger.Logger, processor sdktrace.TracerProviderOption) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch cfg.SampleRate {
	case 1:
		sampler = sdktrace.AlwaysSample()
	case 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		processor,
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp, config: cfg, logger: l}, nil
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	p.logger.Info(ctx, "shutting down tracer provider")
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// IsEnabled returns whether tracing is enabled.
func (p *Provider) IsEnabled() bool {
	return p.config.Enabled
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
