package ampyobs

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ampy.local/ampy-graph/sdk/go/runnable"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	CollectorGRPC  string  // "127.0.0.1:4317" (your Collector)
	SampleRatio    float64 // parent-based ratio; 0 means always sample

	// Exporter replaces the OTLP exporter, e.g. an in-memory one in tests.
	Exporter sdktrace.SpanExporter
	// Logger replaces the stdout JSON logger.
	Logger *zap.Logger
}

type Handle struct {
	cfg     Config
	tp      *sdktrace.TracerProvider
	Logger  Logger
	Metrics *Metrics
	Runs    *RunMetrics
}

// SetErrorHandler sets a custom error handler for OTel errors
func SetErrorHandler(handler func(error)) {
	otel.SetErrorHandler(errorHandlerFunc(handler))
}

type errorHandlerFunc func(error)

func (f errorHandlerFunc) Handle(err error) { f(err) }

func Init(ctx context.Context, cfg Config) (*Handle, error) {
	if cfg.CollectorGRPC == "" {
		cfg.CollectorGRPC = "127.0.0.1:4317"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	exp := cfg.Exporter
	if exp == nil {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.CollectorGRPC),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
	}

	sampler := sdktrace.ParentBased(sdktrace.AlwaysSample())
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	var logger Logger
	if cfg.Logger != nil {
		logger = NewZapLogger(cfg.Logger, cfg)
	} else {
		logger = newLogger(cfg)
	}
	metrics := NewMetrics()

	return &Handle{
		cfg:     cfg,
		tp:      tp,
		Logger:  logger,
		Metrics: metrics,
		Runs:    NewRunMetrics(metrics, "ampy_graph"),
	}, nil
}

func (h *Handle) Tracer(name string) trace.Tracer {
	return h.tp.Tracer(name)
}

// CallbackManager returns a runnable callback manager over this handle's
// tracer, with run logging and run metrics already attached.
func (h *Handle) CallbackManager(extra ...runnable.Handler) *runnable.CallbackManager {
	handlers := append([]runnable.Handler{
		LoggingHandler(h.Logger),
		MetricsHandler(h.Runs),
	}, extra...)
	return runnable.NewCallbackManager(h.Tracer("ampy.runnable"), handlers...)
}

// ForceFlush exports any spans still buffered by the batcher.
func (h *Handle) ForceFlush(ctx context.Context) error {
	return h.tp.ForceFlush(ctx)
}

func (h *Handle) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.tp.Shutdown(ctx)
}
