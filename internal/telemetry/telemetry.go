package telemetry

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	serviceNamespace  = "liftlog"
	spanBatchTimeout  = 5 * time.Second
	metricPushPeriod  = 30 * time.Second
	defaultPathPrefix = "/otlp"
)

// Config describes where traces and metrics of the workout service go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // host[:port] of the OTLP HTTP receiver
	PathPrefix     string // prepended to /v1/traces and /v1/metrics; "/" for a bare collector
	Headers        map[string]string
	Insecure       bool    // plain HTTP, for a local collector
	SampleRatio    float64 // fraction of root spans kept; <= 0 or >= 1 keeps all
	Enabled        bool
}

// Provider owns the SDK providers installed as the otel globals.
type Provider struct {
	tracers *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	log     *logrus.Entry
}

// Initialize installs tracing and metrics export for the service. Disabled
// telemetry yields a nil Provider, which Shutdown accepts.
func Initialize(ctx context.Context, cfg Config, log *logrus.Entry) (*Provider, error) {
	if !cfg.Enabled {
		log.Info("OpenTelemetry disabled")
		return nil, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("service.namespace", serviceNamespace),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	spans, err := otlptracehttp.New(ctx, traceOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracers := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(spanBatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
	)

	points, err := otlpmetrichttp.New(ctx, metricOptions(cfg)...)
	if err != nil {
		_ = tracers.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(metricPushPeriod))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracers)
	otel.SetMeterProvider(meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.WithFields(logrus.Fields{
		"endpoint":     cfg.Endpoint,
		"traces_path":  signalPath(cfg.PathPrefix, "traces"),
		"sample_ratio": cfg.SampleRatio,
	}).Info("OpenTelemetry initialized")

	return &Provider{tracers: tracers, meters: meters, log: log}, nil
}

// Shutdown flushes pending spans and metric points.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.log.Info("shutting down OpenTelemetry")
	return errors.Join(p.tracers.Shutdown(ctx), p.meters.Shutdown(ctx))
}

func traceOptions(cfg Config) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(signalPath(cfg.PathPrefix, "traces")),
		otlptracehttp.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func metricOptions(cfg Config) []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithURLPath(signalPath(cfg.PathPrefix, "metrics")),
		otlpmetrichttp.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

// signalPath builds the receiver path of one signal. An empty prefix means
// the Grafana Cloud gateway layout (/otlp/v1/<signal>).
func signalPath(prefix, signal string) string {
	if prefix == "" {
		prefix = defaultPathPrefix
	}
	return path.Join("/", prefix, "v1", signal)
}

func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
