// Package tracing wires an OpenTelemetry tracer provider exporting over OTLP gRPC.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/chihqiang/dbxnotify"

type Config struct {
	Enabled     bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint" env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `yaml:"insecure" json:"insecure" mapstructure:"insecure" env:"TRACING_INSECURE" envDefault:"true"`
	ServiceName string  `yaml:"service_name" json:"service_name" mapstructure:"service_name" env:"TRACING_SERVICE_NAME" envDefault:"dbxnotify"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" mapstructure:"sample_ratio" env:"TRACING_SAMPLE_RATIO" envDefault:"1"`
}

// Init installs the global tracer provider. With tracing disabled the global
// no-op provider stays in place and the returned shutdown does nothing.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(options...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	tp := NewProvider(cfg, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewProvider builds a provider carrying the service resource.
func NewProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}

// Tracer returns the process tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
