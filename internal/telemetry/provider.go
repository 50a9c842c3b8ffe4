// Package telemetry installs the OpenTelemetry tracer provider used by the
// goFeedback binaries. Library code only ever calls otel.Tracer and never
// configures exporters itself.
package telemetry

import (
	"context"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const envPrefix = "GOFEEDBACK_OTEL_"

// Config selects the OTLP/HTTP endpoint. An empty Endpoint disables tracing.
type Config struct {
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
	Endpoint string `env:"ENDPOINT"`
}

// ConfigFromEnv reads GOFEEDBACK_OTEL_ENABLED and GOFEEDBACK_OTEL_ENDPOINT.
func ConfigFromEnv() (Config, error) {
	return configFromEnviron(nil)
}

func configFromEnviron(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix, Environment: environ}); err != nil {
		return Config{}, err
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	return cfg, nil
}

// Setup registers a global tracer provider for serviceName.
//
// When tracing is disabled or no endpoint is set, Setup returns a no-op
// shutdown and leaves the global provider untouched. The returned shutdown
// flushes pending spans.
func Setup(ctx context.Context, serviceName string, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// SetupFromEnv combines ConfigFromEnv and Setup.
func SetupFromEnv(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return func(context.Context) error { return nil }, err
	}
	return Setup(ctx, serviceName, cfg)
}
