package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "docchat"

func rotated(logDir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation under logDir.
// The terminal is left to the front-end, so logs only go to the file.
func InitLogger(logDir string, debug bool) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	out := rotated(logDir, "docchat.log")

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, out.Close, nil
}

// RequestDurationMetric is the histogram the backend client records every call into.
const RequestDurationMetric = "http.client.request.duration"

// durationBuckets are in milliseconds. Chat replies and document indexing
// routinely take seconds, so the default sub-second buckets are too fine.
var durationBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}

// Settings describes the running process for telemetry.
type Settings struct {
	LogDir     string
	BackendURL string
	Mode       string        // "terminal" or "serve"
	Interval   time.Duration // metric export interval, 10s when zero
}

// InitTelemetry sets up tracing and metrics exported into rotated files under
// s.LogDir. The returned cleanup flushes both providers and closes the files.
func InitTelemetry(ctx context.Context, s Settings) (trace.Tracer, metric.Meter, func(), error) {
	if s.Mode == "" {
		s.Mode = "terminal"
	}
	if s.Interval <= 0 {
		s.Interval = 10 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("docchat.mode", s.Mode),
			attribute.String("docchat.backend.url", s.BackendURL),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := os.MkdirAll(s.LogDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	var closers []func(context.Context) error
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, c := range closers {
			if err := c(ctx); err != nil {
				slog.Error("failed to shutdown telemetry", "error", err)
			}
		}
	}

	tp, err := newTracerProvider(res, s.LogDir, &closers)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	mp, err := newMeterProvider(res, s.LogDir, s.Interval, &closers)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return tp.Tracer(serviceName), mp.Meter(serviceName), cleanup, nil
}

// newTracerProvider batches spans into docchat_traces.log. Closers run in
// registration order, so the provider flushes before its file closes.
func newTracerProvider(res *resource.Resource, logDir string, closers *[]func(context.Context) error) (*sdktrace.TracerProvider, error) {
	file := rotated(logDir, "docchat_traces.log")
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(file),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	*closers = append(*closers, tp.Shutdown, func(context.Context) error { return file.Close() })
	return tp, nil
}

// newMeterProvider exports into docchat_metrics.log with the backend call
// histogram re-bucketed for slow requests.
func newMeterProvider(res *resource.Resource, logDir string, interval time.Duration, closers *[]func(context.Context) error) (*sdkmetric.MeterProvider, error) {
	file := rotated(logDir, "docchat_metrics.log")
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(file),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: RequestDurationMetric},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationBuckets}},
		)),
	)
	*closers = append(*closers, mp.Shutdown, func(context.Context) error { return file.Close() })
	return mp, nil
}
