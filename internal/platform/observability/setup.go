package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Trace exporters understood by Setup.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config captures observability toggles.
type Config struct {
	Enabled       bool
	ServiceName   string
	Environment   string
	TraceExporter string
	OTLPEndpoint  string
	OTLPInsecure  bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
	metricsHandler       http.Handler
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// MetricsHandler returns the Prometheus scrape handler, or nil when
// observability is disabled.
func MetricsHandler() http.Handler {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return metricsHandler
}

// Setup installs the global OpenTelemetry tracer and meter providers. When
// cfg.Enabled is false only span/metric logging is active.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	metricsHandler = nil
	loggerMu.Unlock()
	resetInstruments()

	if !cfg.Enabled {
		if logger != nil {
			logger.InfoContext(ctx, "[OBSERVABILITY] disabled")
		}
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mochimon-server"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp, err := initTracer(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	mp, handler, err := initMetrics(res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	otel.SetMeterProvider(mp)

	loggerMu.Lock()
	metricsHandler = handler
	loggerMu.Unlock()

	if logger != nil {
		logger.InfoContext(ctx, "[OBSERVABILITY] enabled",
			slog.String("service", serviceName),
			slog.String("trace_exporter", exporterName(cfg)),
		)
	}

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

func exporterName(cfg Config) string {
	name := strings.ToLower(strings.TrimSpace(cfg.TraceExporter))
	if name == "" {
		return ExporterNone
	}
	return name
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch exporterName(cfg) {
	case ExporterOTLP:
		clientOpts := []otlptracegrpc.Option{}
		if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
			clientOpts = append(clientOpts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ExporterNone:
	default:
		return nil, errors.New("unknown trace exporter: " + cfg.TraceExporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// initMetrics uses a private registry so repeated setups never collide on
// the default Prometheus registerer.
func initMetrics(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	return mp, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
