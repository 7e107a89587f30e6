// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"time"
)

// TransportKind is how the gateway reaches a backend.
type TransportKind string

const (
	// TransportSpawnProcess launches a child process and speaks MCP over its stdio.
	TransportSpawnProcess TransportKind = "stdio"
	// TransportRemoteHTTP dials a remote MCP endpoint over HTTP.
	TransportRemoteHTTP TransportKind = "http"
	// TransportInProcess binds to a tool set registered in the same process.
	TransportInProcess TransportKind = "in-process"
)

// Valid reports whether k is a known transport.
func (k TransportKind) Valid() bool {
	switch k {
	case TransportSpawnProcess, TransportRemoteHTTP, TransportInProcess:
		return true
	}
	return false
}

// HealthStatus is the lifecycle state of a backend.
type HealthStatus string

const (
	// StatusPending means the backend is registered but not connected yet.
	StatusPending HealthStatus = "pending"
	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting HealthStatus = "connecting"
	// StatusHealthy means the backend is connected and its last probe passed.
	StatusHealthy HealthStatus = "healthy"
	// StatusDegraded means recent probes failed but the backend may still serve.
	StatusDegraded HealthStatus = "degraded"
	// StatusUnhealthy means the backend is quarantined.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDisconnected means the backend was explicitly disconnected.
	StatusDisconnected HealthStatus = "disconnected"
)

// Available reports whether a backend in this state may serve requests.
func (s HealthStatus) Available() bool {
	return s == StatusHealthy || s == StatusDegraded
}

// UnhealthyThreshold is the number of consecutive failures that quarantines a backend.
const UnhealthyThreshold = 3

// BackendHealth is the mutable health record of one backend.
// The registry owns it; everything else sees copies.
type BackendHealth struct {
	Status              HealthStatus `json:"status"`
	LastCheckedAt       time.Time    `json:"lastCheckedAt,omitzero"`
	LastHealthyAt       time.Time    `json:"lastHealthyAt,omitzero"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastError           string       `json:"lastError,omitempty"`
	ToolCount           int          `json:"toolCount"`
	LatencyMs           int64        `json:"latencyMs"`
}

// RecordSuccess applies a successful probe.
func (h *BackendHealth) RecordSuccess(now time.Time, latency time.Duration) {
	h.Status = StatusHealthy
	h.ConsecutiveFailures = 0
	h.LastError = ""
	h.LastCheckedAt = now
	h.LastHealthyAt = now
	h.LatencyMs = latency.Milliseconds()
}

// RecordFailure applies a failed probe or a transport failure seen while
// dispatching.
func (h *BackendHealth) RecordFailure(now time.Time, latency time.Duration, err error) {
	h.ConsecutiveFailures++
	h.LastCheckedAt = now
	h.LatencyMs = latency.Milliseconds()
	if err != nil {
		h.LastError = err.Error()
	}
	if h.ConsecutiveFailures >= UnhealthyThreshold {
		h.Status = StatusUnhealthy
		return
	}
	if h.Status != StatusUnhealthy {
		h.Status = StatusDegraded
	}
}

// MarkUnhealthy quarantines the backend without counting a probe, as when a
// connection attempt fails.
func (h *BackendHealth) MarkUnhealthy(now time.Time, err error) {
	h.Status = StatusUnhealthy
	h.LastCheckedAt = now
	if err != nil {
		h.LastError = err.Error()
	}
}

// BackendSnapshot is a read-only view of one backend.
type BackendSnapshot struct {
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Transport      TransportKind `json:"transport"`
	AuthMethod     string        `json:"authMethod,omitempty"`
	NamespaceTools bool          `json:"namespaceTools"`
	ToolNames      []string      `json:"toolNames,omitempty"`
	Health         BackendHealth `json:"health"`
}

// OverallStatus summarizes the gateway as a whole.
type OverallStatus string

const (
	// OverallHealthy means every backend is healthy (or none are registered).
	OverallHealthy OverallStatus = "healthy"
	// OverallDegraded means some backends can serve and some cannot.
	OverallDegraded OverallStatus = "degraded"
	// OverallUnhealthy means no registered backend can serve.
	OverallUnhealthy OverallStatus = "unhealthy"
)

// HealthSummary is a point-in-time snapshot of the registry.
type HealthSummary struct {
	Status       OverallStatus     `json:"status"`
	Total        int               `json:"total"`
	Pending      int               `json:"pending"`
	Connecting   int               `json:"connecting"`
	Healthy      int               `json:"healthy"`
	Degraded     int               `json:"degraded"`
	Unhealthy    int               `json:"unhealthy"`
	Disconnected int               `json:"disconnected"`
	Backends     []BackendSnapshot `json:"backends"`
	GeneratedAt  time.Time         `json:"generatedAt"`
}

// Summarize computes counts and overall status for backends.
func Summarize(backends []BackendSnapshot, now time.Time) HealthSummary {
	s := HealthSummary{Total: len(backends), Backends: backends, GeneratedAt: now}
	for _, b := range backends {
		switch b.Health.Status {
		case StatusPending:
			s.Pending++
		case StatusConnecting:
			s.Connecting++
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		case StatusUnhealthy:
			s.Unhealthy++
		case StatusDisconnected:
			s.Disconnected++
		}
	}

	switch {
	case s.Healthy == s.Total:
		s.Status = OverallHealthy
	case s.Healthy+s.Degraded > 0:
		s.Status = OverallDegraded
	default:
		s.Status = OverallUnhealthy
	}
	return s
}

// String returns a human-readable summary.
func (s HealthSummary) String() string {
	return fmt.Sprintf("status=%s total=%d healthy=%d degraded=%d unhealthy=%d pending=%d connecting=%d disconnected=%d",
		s.Status, s.Total, s.Healthy, s.Degraded, s.Unhealthy, s.Pending, s.Connecting, s.Disconnected)
}
