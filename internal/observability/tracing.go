package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/slr-reduction/internal/logging"
)

// ServiceNamespace groups the spans of every binary in this module.
const ServiceNamespace = "slr"

// CommandKey tags spans with the subcommand or mode a binary runs in.
const CommandKey = attribute.Key("slr.command")

// TracingConfig governs how tracing is initialised for one process.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64

	// RunID becomes service.instance.id and Command names the subcommand
	// or mode ("ranges", "serve"), so spans of separate runs stay apart.
	RunID   string
	Command string

	// Attributes are extra resource attributes, read from
	// SLR_TRACING_ATTRIBUTES as comma-separated key=value pairs.
	Attributes map[string]string

	// Output receives stdout-exporter spans. Nil means stderr, since
	// stdout carries CSV and CPF output.
	Output io.Writer
}

// TracingConfigFromEnv reads SLR_TRACING_* variables. service is the
// binary's own name, used unless SLR_TRACING_SERVICE_NAME overrides it.
func TracingConfigFromEnv(service string) TracingConfig {
	return tracingConfigFromLookup(service, os.LookupEnv)
}

func tracingConfigFromLookup(service string, lookup func(string) (string, bool)) TracingConfig {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := TracingConfig{
		Enabled:     strings.EqualFold(get("SLR_TRACING_ENABLED"), "true"),
		ServiceName: service,
		Exporter:    strings.ToLower(get("SLR_TRACING_EXPORTER")),
		Endpoint:    get("SLR_OTLP_ENDPOINT"),
		SampleRatio: 1,
		Attributes:  parseAttributes(get("SLR_TRACING_ATTRIBUTES")),
	}
	if name := get("SLR_TRACING_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "slr-reduction"
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if raw := get("SLR_TRACING_SAMPLE_RATIO"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// WithRun returns a copy tagged with a run id and command.
func (c TracingConfig) WithRun(runID, command string) TracingConfig {
	c.RunID = runID
	c.Command = command
	return c
}

// parseAttributes reads "k=v,k2=v2"; malformed pairs are skipped.
func parseAttributes(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// resourceAttributes identifies the process. Fixed keys are applied last
// so SLR_TRACING_ATTRIBUTES cannot rename the service.
func (c TracingConfig) resourceAttributes() []attribute.KeyValue {
	keys := make([]string, 0, len(c.Attributes))
	for k := range c.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys)+4)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, c.Attributes[k]))
	}
	attrs = append(attrs,
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
	)
	if c.RunID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(c.RunID))
	}
	if c.Command != "" {
		attrs = append(attrs, CommandKey.String(c.Command))
	}
	return attrs
}

// InitTracing installs the global tracer provider and propagators and
// returns a shutdown function that flushes pending spans. Disabled
// tracing installs a noop provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled", logging.String("service_name", cfg.ServiceName))
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(cfg.resourceAttributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("service_name", cfg.ServiceName),
		logging.String("command", cfg.Command),
		logging.String("exporter", cfg.Exporter),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newSpanExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout", "":
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds. Failures are
// logged, never returned, since they happen on the way out.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
