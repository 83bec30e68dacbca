// Package observability sets up OpenTelemetry tracing for the task API and
// carries request identifiers through the HTTP stack.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http"
)

// Config selects the OTLP exporter. An empty Endpoint turns tracing off.
type Config struct {
	ServiceName string
	Environment string
	Endpoint    string
	Protocol    string
	Headers     map[string]string
	Insecure    bool
}

// Provider owns the SDK tracer provider installed by Init.
type Provider struct {
	tp       *sdktrace.TracerProvider
	fallback bool
}

// Shutdown flushes pending spans. Safe on a nil or no-op provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Fallback is true when an exporter was configured but none could be built.
func (p *Provider) Fallback() bool { return p != nil && p.fallback }

func (p *Provider) Enabled() bool { return p != nil && p.tp != nil }

// Init installs the global tracer provider and propagator.
//
// A gRPC exporter that cannot be built is retried over HTTP. When both fail the
// service keeps running with a no-op provider; only a missing service name is
// an error.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("telemetry service name required")
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	attempts := []string{cfg.Protocol}
	if cfg.Protocol == protocolGRPC || cfg.Protocol == "" {
		attempts = append(attempts, protocolHTTP)
	}

	var errs []error
	for _, protocol := range attempts {
		attempt := cfg
		attempt.Protocol = protocol
		tp, err := newTracerProvider(ctx, attempt)
		if err == nil {
			otel.SetTracerProvider(tp)
			return &Provider{tp: tp}, nil
		}
		recordExporterFailure(cfg.ServiceName, protocol)
		errs = append(errs, fmt.Errorf("%s exporter: %w", protocol, err))
	}

	otel.Handle(fmt.Errorf("tracing disabled: %w", errors.Join(errs...)))
	recordExporterFailure(cfg.ServiceName, "degraded")
	otel.SetTracerProvider(noop.NewTracerProvider())
	return &Provider{fallback: true}, nil
}

// MustInit is Init for main packages.
func MustInit(ctx context.Context, cfg Config) *Provider {
	p, err := Init(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func newTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	client, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res)), nil
}

// Retries never give up on their own; Shutdown bounds them.
const (
	retryInitial = 100 * time.Millisecond
	retryMax     = 5 * time.Second
)

func buildClient(_ context.Context, cfg Config) (otlptrace.Client, error) {
	switch cfg.Protocol {
	case protocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: true, InitialInterval: retryInitial, MaxInterval: retryMax}),
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.NewClient(opts...), nil
	case protocolGRPC, "":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: true, InitialInterval: retryInitial, MaxInterval: retryMax}),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName)),
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.NewClient(opts...), nil
	}
	return nil, fmt.Errorf("unsupported otlp protocol %q", cfg.Protocol)
}
