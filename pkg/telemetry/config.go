// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry/providers"
	"github.com/adibirzu/mcp-oci-gateway/pkg/versions"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// Endpoint is the OTLP endpoint (host:port). Empty disables OTLP export.
	Endpoint       string
	ServiceName    string
	ServiceVersion string

	TracingEnabled bool
	// MetricsEnabled pushes metrics over OTLP; independent of the /metrics path.
	MetricsEnabled bool
	SamplingRate   float64
	Headers        map[string]string
	Insecure       bool

	// EnablePrometheusMetricsPath exposes a Prometheus /metrics handler.
	EnablePrometheusMetricsPath bool
}

// DefaultConfig returns a configuration with every exporter disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "mcp-gateway",
		ServiceVersion: versions.GetVersionInfo().Version,
		SamplingRate:   0.1,
		Headers:        make(map[string]string),
	}
}

// FromGatewayConfig maps the telemetry section of the gateway file.
func FromGatewayConfig(name string, tc config.TelemetryConfig) Config {
	cfg := DefaultConfig()
	if name != "" {
		cfg.ServiceName = name
	}
	cfg.Endpoint = tc.TracingEndpoint
	cfg.TracingEnabled = tc.TracingEndpoint != ""
	cfg.Insecure = tc.TracingInsecure
	cfg.SamplingRate = tc.SamplingRate
	cfg.EnablePrometheusMetricsPath = tc.MetricsEnabled
	return cfg
}

// Provider encapsulates OpenTelemetry providers and configuration.
type Provider struct {
	config            Config
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdown          func(context.Context) error
}

// NewProvider creates the providers described by cfg and installs them as the
// OpenTelemetry globals.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	composite, err := providers.NewCompositeProvider(ctx,
		providers.WithServiceName(cfg.ServiceName),
		providers.WithServiceVersion(cfg.ServiceVersion),
		providers.WithOTLPEndpoint(cfg.Endpoint, cfg.Headers, cfg.Insecure),
		providers.WithTracing(cfg.TracingEnabled, cfg.SamplingRate),
		providers.WithOTLPMetrics(cfg.MetricsEnabled),
		providers.WithPrometheusMetricsPath(cfg.EnablePrometheusMetricsPath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry providers: %w", err)
	}

	otel.SetTracerProvider(composite.TracerProvider())
	otel.SetMeterProvider(composite.MeterProvider())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		config:            cfg,
		tracerProvider:    composite.TracerProvider(),
		meterProvider:     composite.MeterProvider(),
		prometheusHandler: composite.PrometheusHandler(),
		shutdown:          composite.Shutdown,
	}, nil
}

// Shutdown gracefully shuts down the telemetry provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown != nil {
		return p.shutdown(ctx)
	}
	return nil
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the Prometheus metrics handler, or nil when the
// metrics path is disabled.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

func validateConfig(cfg Config) error {
	if cfg.Endpoint != "" && !cfg.TracingEnabled && !cfg.MetricsEnabled {
		return errors.New("OTLP endpoint is configured but both tracing and metrics are disabled; " +
			"either enable tracing or metrics, or remove the endpoint")
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return fmt.Errorf("sampling rate %v is outside [0, 1]", cfg.SamplingRate)
	}
	return nil
}
