// Package otel builds the OpenTelemetry providers for the trial access binaries.
// Every signal carries a resource naming the binary, its environment and the
// destination chat whose credentials it manages.
package otel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ServiceNamespace groups the bot, sweep and worker binaries in the backend.
const ServiceNamespace = "trialgate"

// Resource attributes specific to the access lifecycle.
const (
	DestinationKey   = attribute.Key("trialgate.destination")
	CredentialTTLKey = attribute.Key("trialgate.credential_ttl_minutes")
)

const metricExportInterval = 10 * time.Second

// Settings selects the collector and describes the instrumented binary.
type Settings struct {
	// Endpoint is the OTLP gRPC collector; empty keeps all signals in process.
	Endpoint string
	// Insecure forces plaintext even for https endpoints.
	Insecure    bool
	ServiceName string
	Environment string
	// Destination is the chat id credentials admit to.
	Destination   string
	CredentialTTL time.Duration
}

// Providers holds the tracer, meter and logger providers sharing one resource.
type Providers struct {
	Resource       *resource.Resource
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// NewProviders builds providers for s. Without an endpoint no exporters are
// attached and Shutdown has nothing to flush.
func NewProviders(ctx context.Context, s Settings) (*Providers, error) {
	res, err := lifecycleResource(s)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	meterOpts := []metric.Option{metric.WithResource(res)}
	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}

	if endpoint := strings.TrimSpace(s.Endpoint); endpoint != "" {
		exp, err := dialCollector(ctx, endpoint, s.Insecure)
		if err != nil {
			return nil, err
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp.spans))
		meterOpts = append(meterOpts, metric.WithReader(metric.NewPeriodicReader(exp.metrics, metric.WithInterval(metricExportInterval))))
		logOpts = append(logOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(exp.logs)))
	}

	p := &Providers{
		Resource:       res,
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		MeterProvider:  metric.NewMeterProvider(meterOpts...),
		LoggerProvider: sdklog.NewLoggerProvider(logOpts...),
	}
	p.Shutdown = p.shutdown
	return p, nil
}

func lifecycleResource(s Settings) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
	}
	if s.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(s.Environment))
	}
	if s.Destination != "" {
		attrs = append(attrs, DestinationKey.String(s.Destination))
	}
	if s.CredentialTTL > 0 {
		attrs = append(attrs, CredentialTTLKey.Int64(int64(s.CredentialTTL/time.Minute)))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// collector holds one exporter per signal, all dialing the same target.
type collector struct {
	spans   sdktrace.SpanExporter
	metrics metric.Exporter
	logs    sdklog.Exporter
}

func dialCollector(ctx context.Context, endpoint string, insecureOverride bool) (*collector, error) {
	target, insecure, err := collectorTarget(endpoint, insecureOverride)
	if err != nil {
		return nil, err
	}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	c := &collector{}
	if c.spans, err = otlptracegrpc.New(ctx, traceOpts...); err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}
	if c.metrics, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
		_ = c.spans.Shutdown(ctx)
		return nil, fmt.Errorf("otel metric exporter: %w", err)
	}
	if c.logs, err = otlploggrpc.New(ctx, logOpts...); err != nil {
		_ = c.spans.Shutdown(ctx)
		_ = c.metrics.Shutdown(ctx)
		return nil, fmt.Errorf("otel log exporter: %w", err)
	}
	return c, nil
}

// collectorTarget reduces endpoint to the host:port OTLP gRPC dials; any path is dropped.
// Plain http (or a bare host:port) is insecure.
func collectorTarget(endpoint string, insecureOverride bool) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, insecureOverride || u.Scheme != "https", nil
}

// shutdown flushes logs, then metrics, then traces.
func (p *Providers) shutdown(ctx context.Context) error {
	var errs []error
	if err := p.LoggerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logs: %w", err))
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("traces: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	return err
}

// SetGlobal installs the tracer and meter providers for instrumentation such as otelgrpc.
// Lifecycle records go through NewEventEmitter instead of a global LoggerProvider.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

// Meter returns the lifecycle meter, falling back to the global provider when p is unset.
func (p *Providers) Meter() otelmetric.Meter {
	if p == nil || p.MeterProvider == nil {
		return otel.Meter(instrumentationName)
	}
	return p.MeterProvider.Meter(instrumentationName)
}
