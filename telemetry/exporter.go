// Package telemetry exports query latencies to an OpenTelemetry collector.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/config"
)

const serviceName = "ddlbench"

// Metrics receives one observation per timed query.
type Metrics interface {
	RecordQuery(ctx context.Context, sys bench.System, cmd bench.Command, obj bench.Object, elapsed time.Duration)
	Close(ctx context.Context) error
}

// New returns an OTLP exporter when cfg enables one and a no-op otherwise.
func New(ctx context.Context, cfg config.TelemetryConfig) (Metrics, error) {
	if !cfg.Enabled {
		return NoOp{}, nil
	}

	return NewExporter(ctx, cfg)
}

// Exporter records query latency into the ddlbench_query_duration_seconds
// histogram.
type Exporter struct {
	provider *sdkmetric.MeterProvider
	duration metric.Float64Histogram
}

// NewExporter creates an exporter pushing to the OTLP gRPC endpoint in cfg.
func NewExporter(ctx context.Context, cfg config.TelemetryConfig) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlpmetricgrpc.WithInsecure(),
		)
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	return newExporter(sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	))
}

func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	duration, err := provider.Meter(serviceName).Float64Histogram(
		"ddlbench_query_duration_seconds",
		metric.WithDescription("Latency of timed DDL queries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Exporter{provider: provider, duration: duration}, nil
}

// RecordQuery adds one latency observation.
func (e *Exporter) RecordQuery(
	ctx context.Context,
	sys bench.System,
	cmd bench.Command,
	obj bench.Object,
	elapsed time.Duration,
) {
	e.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("system", string(sys)),
		attribute.String("command", string(cmd)),
		attribute.String("object", string(obj)),
	))
}

// Close flushes pending metrics and shuts the provider down.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// NoOp discards every observation.
type NoOp struct{}

func (NoOp) RecordQuery(context.Context, bench.System, bench.Command, bench.Object, time.Duration) {}

func (NoOp) Close(context.Context) error { return nil }
