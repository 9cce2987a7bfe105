// Package telemetry configures OpenTelemetry tracing for the crawler.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Span exporters selectable from configuration.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterCloudTrace = "cloudtrace"
)

// Config names the service in emitted spans and selects where they go.
type Config struct {
	ServiceName string
	Version     string
	// Exporter is one of the Exporter* constants. Empty means ExporterNone.
	Exporter string
	// ProjectID is the Cloud Trace project, required by ExporterCloudTrace.
	ProjectID string
	// Writer receives ExporterStdout output. Nil means os.Stdout.
	Writer io.Writer
}

// NewExporter builds the span exporter named by cfg.Exporter. It returns a nil
// exporter for ExporterNone.
func NewExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exp, nil
	case ExporterCloudTrace:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("cloudtrace exporter needs a project id")
		}
		exp, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("failed to create google trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	initErr   error
)

// InitTracerProvider installs the global tracer provider, batching spans to
// the exporter selected by cfg, and the W3C trace-context propagator. Only the
// first call has any effect.
func InitTracerProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	initOnce.Do(func() {
		if cfg.ServiceName == "" {
			cfg.ServiceName = "stationcrawler"
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(cfg.ServiceName),
				semconv.ServiceVersion(cfg.Version),
			),
		)
		if err != nil {
			initErr = fmt.Errorf("failed to create resource: %w", err)
			return
		}

		exp, err := NewExporter(cfg)
		if err != nil {
			initErr = err
			return
		}

		all := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		}
		if exp != nil {
			all = append(all, sdktrace.WithBatcher(exp))
		}
		all = append(all, opts...)
		tp := sdktrace.NewTracerProvider(all...)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)
		traceProv = tp
	})
	return traceProv, initErr
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/JakeFAU/weather-station-crawler/" + name)
}

// MapCarrier adapts a string map (message attributes, headers) to
// propagation.TextMapCarrier.
type MapCarrier map[string]string

var _ propagation.TextMapCarrier = MapCarrier(nil)

// Get returns the value stored under key.
func (c MapCarrier) Get(key string) string {
	return c[key]
}

// Set stores value under key.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// Keys lists the stored keys.
func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject writes the trace context of ctx into attrs.
func Inject(ctx context.Context, attrs map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, MapCarrier(attrs))
}
