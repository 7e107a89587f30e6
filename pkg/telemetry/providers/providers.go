// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package providers assembles tracer and meter providers from the configured exporters.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry/providers/otlp"
	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry/providers/prometheus"
)

// Config holds the settings for all providers.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is the collector address (e.g. "localhost:4318").
	OTLPEndpoint   string
	Headers        map[string]string
	Insecure       bool
	TracingEnabled bool
	// MetricsEnabled pushes metrics to the OTLP endpoint.
	MetricsEnabled bool
	SamplingRate   float64

	EnablePrometheusMetricsPath bool
}

// ProviderOption configures the providers.
type ProviderOption func(*Config) error

// WithServiceName sets the service name
func WithServiceName(serviceName string) ProviderOption {
	return func(config *Config) error {
		if serviceName == "" {
			return errors.New("service name cannot be empty")
		}
		config.ServiceName = serviceName
		return nil
	}
}

// WithServiceVersion sets the service version
func WithServiceVersion(serviceVersion string) ProviderOption {
	return func(config *Config) error {
		if serviceVersion == "" {
			return errors.New("service version cannot be empty")
		}
		config.ServiceVersion = serviceVersion
		return nil
	}
}

// WithOTLPEndpoint sets the collector endpoint and its connection settings.
func WithOTLPEndpoint(endpoint string, headers map[string]string, insecure bool) ProviderOption {
	return func(config *Config) error {
		config.OTLPEndpoint = endpoint
		config.Headers = headers
		config.Insecure = insecure
		return nil
	}
}

// WithTracing enables trace export at samplingRate.
func WithTracing(enabled bool, samplingRate float64) ProviderOption {
	return func(config *Config) error {
		if samplingRate < 0 || samplingRate > 1 {
			return fmt.Errorf("sampling rate %v is outside [0, 1]", samplingRate)
		}
		config.TracingEnabled = enabled
		config.SamplingRate = samplingRate
		return nil
	}
}

// WithOTLPMetrics enables pushing metrics to the collector.
func WithOTLPMetrics(enabled bool) ProviderOption {
	return func(config *Config) error {
		config.MetricsEnabled = enabled
		return nil
	}
}

// WithPrometheusMetricsPath enables the /metrics scrape handler.
func WithPrometheusMetricsPath(enabled bool) ProviderOption {
	return func(config *Config) error {
		config.EnablePrometheusMetricsPath = enabled
		return nil
	}
}

// CompositeProvider combines the tracer provider, the meter provider, the
// optional Prometheus handler and their cleanup.
type CompositeProvider struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewCompositeProvider creates the providers selected by options.
func NewCompositeProvider(ctx context.Context, options ...ProviderOption) (*CompositeProvider, error) {
	config := Config{}
	for _, option := range options {
		if err := option(&config); err != nil {
			return nil, err
		}
	}

	tracing := config.TracingEnabled && config.OTLPEndpoint != ""
	otlpMetrics := config.MetricsEnabled && config.OTLPEndpoint != ""
	if !tracing && !otlpMetrics && !config.EnablePrometheusMetricsPath {
		slog.Debug("No telemetry configured, using no-op providers")
		return &CompositeProvider{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  noop.NewMeterProvider(),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource with service name '%s' and version '%s': %w",
			config.ServiceName, config.ServiceVersion, err)
	}

	composite := &CompositeProvider{}
	collector := otlp.Config{
		Endpoint:     config.OTLPEndpoint,
		Headers:      config.Headers,
		Insecure:     config.Insecure,
		SamplingRate: config.SamplingRate,
	}

	var readers []sdkmetric.Reader
	if config.EnablePrometheusMetricsPath {
		reader, handler, err := prometheus.NewReader(prometheus.Config{
			EnableMetricsPath:     true,
			IncludeRuntimeMetrics: true,
		})
		if err != nil {
			return nil, err
		}
		readers = append(readers, reader)
		composite.prometheusHandler = handler
	}
	if otlpMetrics {
		reader, err := otlp.NewMetricReader(ctx, collector)
		if err != nil {
			return nil, err
		}
		readers = append(readers, reader)
	}

	if len(readers) == 0 {
		composite.meterProvider = noop.NewMeterProvider()
	} else {
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, r := range readers {
			opts = append(opts, sdkmetric.WithReader(r))
		}
		mp := sdkmetric.NewMeterProvider(opts...)
		composite.meterProvider = mp
		composite.shutdownFuncs = append(composite.shutdownFuncs, mp.Shutdown)
	}

	if tracing {
		tp, err := otlp.NewTracerProvider(ctx, collector, res)
		if err != nil {
			_ = composite.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create tracer provider with endpoint %s: %w", config.OTLPEndpoint, err)
		}
		composite.tracerProvider = tp
		composite.shutdownFuncs = append(composite.shutdownFuncs, tp.Shutdown)
	} else {
		composite.tracerProvider = tracenoop.NewTracerProvider()
	}

	slog.Info("Telemetry providers created",
		"tracing", tracing, "otlp_metrics", otlpMetrics, "prometheus", config.EnablePrometheusMetricsPath)
	return composite, nil
}

// TracerProvider returns the tracer provider
func (p *CompositeProvider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the meter provider
func (p *CompositeProvider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the Prometheus metrics handler, or nil.
func (p *CompositeProvider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Shutdown flushes and stops every provider.
func (p *CompositeProvider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for i, shutdown := range p.shutdownFuncs {
		if err := shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("provider %d shutdown failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
