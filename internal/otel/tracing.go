package otel

import (
	"context"
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// DefaultServiceName is reported when OTEL_SERVICE_NAME is unset.
const DefaultServiceName = "outboxapi"

// Settings are the standard OTEL_* variables this package honours. The
// exporters read endpoint and headers themselves; they are kept here for the
// startup log line.
type Settings struct {
	Disabled       bool   `env:"OTEL_SDK_DISABLED"`
	ServiceName    string `env:"OTEL_SERVICE_NAME"`
	Protocol       string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	Endpoint       string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	Sampler        string `env:"OTEL_TRACES_SAMPLER" envDefault:"parentbased_traceidratio"`
	SamplerArg     string `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

func nothingToFlush(context.Context) error { return nil }

// Init installs the global tracer provider with an OTLP exporter configured
// from the environment. Exporter failures degrade to the noop provider so the
// API keeps serving. The returned func flushes pending spans.
func Init(ctx context.Context, log zerolog.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("tracing settings: %w", err)
	}
	if s.ServiceName == "" {
		s.ServiceName = DefaultServiceName
	}
	if s.Disabled {
		log.Info().Bool("tracing_enabled", false).Msg("tracing configured")
		return nothingToFlush, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.ServiceName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(ctx, s.Protocol)
	if err != nil {
		log.Error().Err(err).Msg("tracing init failed, spans are dropped")
		return nothingToFlush, nil
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler(s.Sampler, s.SamplerArg)),
	)
	otel.SetTracerProvider(tp)

	endpoint := s.TracesEndpoint
	if endpoint == "" {
		endpoint = s.Endpoint
	}
	log.Info().
		Bool("tracing_enabled", true).
		Str("service", s.ServiceName).
		Str("otlp_protocol", s.Protocol).
		Str("otlp_endpoint", endpoint).
		Str("sampler", s.Sampler).
		Str("sampler_arg", s.SamplerArg).
		Msg("tracing configured")

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, protocol string) (*otlptrace.Exporter, error) {
	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
}

// sampler maps OTEL_TRACES_SAMPLER names to SDK samplers. Unknown names
// follow the parent and sample roots.
func sampler(name, arg string) trace.Sampler {
	switch name {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(parseRatio(arg))
	case "parentbased_always_on":
		return trace.ParentBased(trace.AlwaysSample())
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(parseRatio(arg)))
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}

// parseRatio reads a sampling ratio, clamping to [0,1]. Unparsable means 1.
func parseRatio(arg string) float64 {
	ratio, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 1
	}
	return min(max(ratio, 0), 1)
}
