package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Endpoint is where one signal is exported to. Grpc wins when both are set.
type Endpoint struct {
	Grpc    string            `json:"grpc"`
	Http    string            `json:"http"`
	Headers map[string]string `json:"headers"`
}

func (e Endpoint) transport() string {
	switch {
	case e.Grpc != "":
		return "grpc"
	case e.Http != "":
		return "http"
	}
	return ""
}

type Config struct {
	Traces  Endpoint `json:"traces"`
	Metrics Endpoint `json:"metrics"`
	// SampleRatio is the fraction of root spans kept, 0 keeps all of them.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricInterval is a duration string, defaults to 30s.
	MetricInterval string `json:"metric_interval"`
}

const exporterTimeout = 3 * time.Second

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func (c Config) sampler() trace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return trace.AlwaysSample()
	}
	return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
}

func newTraceProvider(ctx context.Context, r *resource.Resource, config Config) (*trace.TracerProvider, error) {
	opts := []trace.TracerProviderOption{
		trace.WithResource(r),
		trace.WithSampler(config.sampler()),
	}

	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	var exporter trace.SpanExporter
	var err error
	switch config.Traces.transport() {
	case "grpc":
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(config.Traces.Grpc),
			otlptracegrpc.WithHeaders(config.Traces.Headers),
		)
	case "http":
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(config.Traces.Http),
			otlptracehttp.WithHeaders(config.Traces.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	if exporter != nil {
		slog.Info("exporting traces", "transport", config.Traces.transport())
		opts = append(opts, trace.WithBatcher(exporter))
	}
	return trace.NewTracerProvider(opts...), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, config Config) (*metric.MeterProvider, error) {
	interval := 30 * time.Second
	if config.MetricInterval != "" {
		parsed, err := time.ParseDuration(config.MetricInterval)
		if err != nil {
			return nil, fmt.Errorf("metric_interval: %w", err)
		}
		interval = parsed
	}

	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	var exporter metric.Exporter
	var err error
	switch config.Metrics.transport() {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(config.Metrics.Grpc),
			otlpmetricgrpc.WithHeaders(config.Metrics.Headers),
		)
	case "http":
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(config.Metrics.Http),
			otlpmetrichttp.WithHeaders(config.Metrics.Headers),
		)
	default:
		return metric.NewMeterProvider(metric.WithResource(r)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	slog.Info("exporting metrics", "transport", config.Metrics.transport(), "interval", interval)
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(r),
	), nil
}
