package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "mochimon-server-go"

var (
	instrumentsMu sync.Mutex
	counters      map[string]metric.Float64Counter
	histograms    map[string]metric.Float64Histogram
)

func resetInstruments() {
	instrumentsMu.Lock()
	defer instrumentsMu.Unlock()
	counters = make(map[string]metric.Float64Counter)
	histograms = make(map[string]metric.Float64Histogram)
}

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// StartSpan opens an OpenTelemetry span named component.operation and logs
// its lifecycle. The returned func ends the span and records err, if any.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, _ := currentLogger()
	start := time.Now()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, component+"."+operation,
		trace.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", operation),
		),
	)
	if logger != nil {
		logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if logger == nil {
			return
		}
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

// RecordMetric emits a datapoint. Names ending in _ms or _seconds are
// recorded on a histogram; everything else is added to a counter.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	attrs := labelAttributes(labels)

	if isHistogram(name) {
		if h, ok := histogram(name); ok {
			h.Record(ctx, value, metric.WithAttributes(attrs...))
		}
	} else if value >= 0 {
		if c, ok := counter(name); ok {
			c.Add(ctx, value, metric.WithAttributes(attrs...))
		}
	}

	logger, _ := currentLogger()
	if logger == nil {
		return
	}
	logAttrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for _, kv := range attrs {
		logAttrs = append(logAttrs, slog.String(string(kv.Key), kv.Value.AsString()))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", logAttrs...)
}

func isHistogram(name string) bool {
	return strings.HasSuffix(name, "_ms") || strings.HasSuffix(name, "_seconds")
}

func labelAttributes(labels map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, labels[k]))
	}
	return attrs
}

func counter(name string) (metric.Float64Counter, bool) {
	instrumentsMu.Lock()
	defer instrumentsMu.Unlock()
	if counters == nil {
		counters = make(map[string]metric.Float64Counter)
	}
	if c, ok := counters[name]; ok {
		return c, true
	}
	c, err := otel.Meter(instrumentationName).Float64Counter(name)
	if err != nil {
		return nil, false
	}
	counters[name] = c
	return c, true
}

func histogram(name string) (metric.Float64Histogram, bool) {
	instrumentsMu.Lock()
	defer instrumentsMu.Unlock()
	if histograms == nil {
		histograms = make(map[string]metric.Float64Histogram)
	}
	if h, ok := histograms[name]; ok {
		return h, true
	}
	h, err := otel.Meter(instrumentationName).Float64Histogram(name)
	if err != nil {
		return nil, false
	}
	histograms[name] = h
	return h, true
}
