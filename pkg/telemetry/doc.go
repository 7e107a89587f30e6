// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry-based observability for the
// gateway: distributed tracing over OTLP, OTLP metrics export and a
// Prometheus /metrics endpoint, plus the gateway's own instruments.
package telemetry
