// Package tracing sets up the OpenTelemetry tracer provider and propagators.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Provider owns the installed tracer provider.
type Provider struct {
	tp       *sdktrace.TracerProvider
	exporter string
}

type settings struct {
	serviceName string
	version     string
	endpoint    string
	insecure    bool
	console     io.Writer
	sampleRatio float64
}

// Option configures Setup.
type Option func(*settings)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) Option {
	return func(s *settings) { s.version = v }
}

// WithOTLPEndpoint exports spans to an OTLP/HTTP collector at host:port.
func WithOTLPEndpoint(endpoint string, insecure bool) Option {
	return func(s *settings) {
		s.endpoint = endpoint
		s.insecure = insecure
	}
}

// WithConsole writes spans to w. It takes precedence over OTLP.
func WithConsole(w io.Writer) Option {
	return func(s *settings) { s.console = w }
}

// WithSampleRatio sets the parent-based trace id ratio sampler.
func WithSampleRatio(r float64) Option {
	return func(s *settings) {
		if r >= 0 && r <= 1 {
			s.sampleRatio = r
		}
	}
}

// Setup installs a global tracer provider and the W3C trace-context and
// baggage propagators. Without an exporter spans are sampled but dropped.
func Setup(ctx context.Context, opts ...Option) (*Provider, error) {
	s := settings{serviceName: "aireview", sampleRatio: 1}
	for _, opt := range opts {
		opt(&s)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))),
	}

	p := &Provider{exporter: "none"}
	switch {
	case s.console != nil:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(s.console))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
		p.exporter = "console"
	case s.endpoint != "":
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
		p.exporter = "otlp"
	}

	p.tp = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// Exporter names the active exporter: none, console or otlp.
func (p *Provider) Exporter() string { return p.exporter }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
