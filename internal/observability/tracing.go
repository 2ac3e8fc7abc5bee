package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/rfsensor-sim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const tracerName = "github.com/signalsfoundry/rfsensor-sim"

// TracingConfig selects where frame phase spans go.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // file | stdout | otlp
	Endpoint    string // otlp collector address
	Output      string // file exporter destination
	SampleRatio float64 // (0,1]; zero samples every frame

	// Attributes are added to the trace resource, e.g. the scenario path.
	Attributes map[string]string
}

// WithEnv overlays the RFSIM_TRACING_* environment variables on cfg. Unset
// or malformed variables leave the corresponding field alone.
func (cfg TracingConfig) WithEnv() TracingConfig {
	if v, ok := os.LookupEnv("RFSIM_TRACING_ENABLED"); ok {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RFSIM_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("RFSIM_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("RFSIM_TRACING_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("RFSIM_TRACING_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("RFSIM_TRACING_SAMPLE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

func (cfg TracingConfig) withDefaults() TracingConfig {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rfsensor-sim"
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "file"
	}
	if cfg.Output == "" {
		cfg.Output = "rfsim-trace.json"
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}
	return cfg
}

// Tracing owns the process tracer provider.
type Tracing struct {
	provider trace.TracerProvider
	closers  []func(context.Context) error
	log      logging.Logger
}

// InitTracing installs a global tracer provider. With tracing disabled the
// provider is a noop and Shutdown does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		log.Debug(ctx, "tracing disabled")
		return &Tracing{provider: tp, log: log}, nil
	}
	cfg = cfg.withDefaults()

	t := &Tracing{log: log}
	exp, err := t.exporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "rfsim"),
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	// flush the provider before closing the exporter's output
	t.closers = append([]func(context.Context) error{tp.Shutdown}, t.closers...)
	t.provider = tp
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return t, nil
}

func (t *Tracing) exporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		// stdout carries the track tables; spans go to stderr
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithoutTimestamps())
	case "file":
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("open trace output: %w", err)
		}
		t.closers = append(t.closers, func(context.Context) error { return f.Close() })
		return stdouttrace.New(stdouttrace.WithWriter(f))
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// Tracer returns the simulator's tracer from the installed provider.
func (t *Tracing) Tracer() trace.Tracer {
	if t == nil || t.provider == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return t.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans and closes the exporter output. The
// first error is returned; later closers still run.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var first error
	for _, c := range t.closers {
		if err := c(ctx); err != nil && first == nil {
			first = err
		}
	}
	t.closers = nil
	return first
}

// ShutdownWithTimeout runs Shutdown bounded to five seconds and logs
// rather than returns a failure.
func (t *Tracing) ShutdownWithTimeout(ctx context.Context) {
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		t.log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
