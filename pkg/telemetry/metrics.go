// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/adibirzu/mcp-oci-gateway"

// ToolCallDurationBuckets are the histogram boundaries, in seconds, for tool calls.
var ToolCallDurationBuckets = []float64{
	0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60, 120, 300,
}

// Metrics holds the gateway's instruments.
type Metrics struct {
	tracer      trace.Tracer
	meter       metric.Meter
	calls       metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
}

// NewMetrics creates the gateway instruments on the given providers.
func NewMetrics(tp trace.TracerProvider, mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	calls, err := meter.Int64Counter(
		"mcp_gateway_tool_calls", // The exporter adds the _total suffix automatically
		metric.WithDescription("Total number of tool calls handled by the gateway"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"mcp_gateway_tool_call_duration", // The exporter adds the _seconds suffix automatically
		metric.WithDescription("Duration of tool calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ToolCallDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call histogram: %w", err)
	}

	transitions, err := meter.Int64Counter(
		"mcp_gateway_backend_transitions",
		metric.WithDescription("Backend health state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transition counter: %w", err)
	}

	return &Metrics{
		tracer:      tp.Tracer(instrumentationName),
		meter:       meter,
		calls:       calls,
		duration:    duration,
		transitions: transitions,
	}, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(tracenoop.NewTracerProvider(), noop.NewMeterProvider())
	return m
}

// StartToolCall opens the span covering one dispatched call.
func (m *Metrics) StartToolCall(ctx context.Context, tool string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "tools/call "+tool,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("mcp.tool.name", tool)),
	)
}

// EndToolCall records the outcome of a call on span and the instruments.
func (m *Metrics) EndToolCall(
	ctx context.Context, span trace.Span, backend, tool, status string, elapsed time.Duration, err error,
) {
	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("tool", tool),
		attribute.String("status", status),
	}
	m.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))

	span.SetAttributes(attribute.String("mcp.gateway.backend", backend), attribute.String("mcp.gateway.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordTransition counts a backend health transition.
func (m *Metrics) RecordTransition(ctx context.Context, backend, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// ObserveBackends registers a gauge reporting the number of backends per
// status. counts is called on every collection.
func (m *Metrics) ObserveBackends(counts func() map[string]int64) error {
	_, err := m.meter.Int64ObservableGauge(
		"mcp_gateway_backends",
		metric.WithDescription("Number of registered backends by health status"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for status, n := range counts() {
				o.Observe(n, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend gauge: %w", err)
	}
	return nil
}
