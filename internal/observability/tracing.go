// Package observability attaches OpenTelemetry trace export to Genkit.
//
// Genkit opens a span for every flow and model call on its own
// TracerProvider. Setup registers an OTLP/HTTP exporter with that
// provider so the spans reach a collector listening on the standard
// OTLP port. Any OTLP-speaking backend works: an OpenTelemetry
// Collector, Jaeger, or a vendor agent on localhost:4318.
//
// Export degrades instead of failing. When the exporter cannot be
// constructed the service runs untraced and logs a warning; a collector
// that is down at runtime only costs the spans, never a request.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/iecho-project/iecho/internal/log"
)

// DefaultEndpoint is the standard OTLP HTTP port on the local host.
const DefaultEndpoint = "localhost:4318"

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the collector's OTLP HTTP address (default: localhost:4318).
	Endpoint string
	// Environment tags every span with deployment.environment.
	Environment string
	// ServiceName is the service name reported to the collector.
	ServiceName string
	// Logger receives setup warnings. Defaults to a no-op logger.
	Logger log.Logger
}

// Setup registers an OTLP exporter with Genkit's TracerProvider.
//
// Returns a shutdown function that flushes pending spans. Setup must
// run before genkit.Init so the provider is complete when the first
// flow span opens, and before any goroutines are spawned because it
// writes OTEL_* environment variables.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Genkit's TracerProvider reads these when it builds its resource.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector does not need TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
