// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/audit"
)

// Gateway-local tool names. They live in the root namespace and are never
// routed to a backend.
const (
	HealthToolName       = "gateway_health"
	ListBackendsToolName = "gateway_list_backends"
	AuditLogToolName     = "gateway_audit_log"
)

const (
	// DefaultAuditLimit is the number of events gateway_audit_log returns
	// when no limit is given.
	DefaultAuditLimit = 20
	maxAuditLimit     = 1000
)

type backendReport struct {
	Name                string                `json:"name"`
	Status              gateway.HealthStatus  `json:"status"`
	Transport           gateway.TransportKind `json:"transport"`
	AuthMethod          string                `json:"authMethod"`
	ToolCount           int                   `json:"toolCount"`
	LatencyMs           int64                 `json:"latencyMs"`
	LastCheck           *time.Time            `json:"lastCheck"`
	ConsecutiveFailures int                   `json:"consecutiveFailures"`
	Error               string                `json:"error,omitempty"`
}

type healthReport struct {
	Status      gateway.OverallStatus `json:"status"`
	Total       int                   `json:"total"`
	Healthy     int                   `json:"healthy"`
	Degraded    int                   `json:"degraded"`
	Unhealthy   int                   `json:"unhealthy"`
	Backends    []backendReport       `json:"backends"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

func newHealthReport(s gateway.HealthSummary) healthReport {
	report := healthReport{
		Status:      s.Status,
		Total:       s.Total,
		Healthy:     s.Healthy,
		Degraded:    s.Degraded,
		Unhealthy:   s.Unhealthy,
		Backends:    make([]backendReport, 0, len(s.Backends)),
		GeneratedAt: s.GeneratedAt,
	}
	for _, b := range s.Backends {
		br := backendReport{
			Name:                b.Name,
			Status:              b.Health.Status,
			Transport:           b.Transport,
			AuthMethod:          b.AuthMethod,
			ToolCount:           b.Health.ToolCount,
			LatencyMs:           b.Health.LatencyMs,
			ConsecutiveFailures: b.Health.ConsecutiveFailures,
			Error:               b.Health.LastError,
		}
		if !b.Health.LastCheckedAt.IsZero() {
			checked := b.Health.LastCheckedAt
			br.LastCheck = &checked
		}
		report.Backends = append(report.Backends, br)
	}
	return report
}

type auditReport struct {
	Count  int           `json:"count"`
	Events []audit.Event `json:"events"`
}

func (s *Server) introspectionTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(HealthToolName,
				mcp.WithDescription("Report overall gateway health and the state of every backend"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleHealthTool,
		},
		{
			Tool: mcp.NewTool(ListBackendsToolName,
				mcp.WithDescription("List registered backends as a table"),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.handleListBackendsTool,
		},
		{
			Tool: mcp.NewTool(AuditLogToolName,
				mcp.WithDescription("Return the most recent tool-call audit events, newest first"),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of events to return"),
					mcp.DefaultNumber(DefaultAuditLimit),
				),
			),
			Handler: s.handleAuditLogTool,
		},
	}
}

func (s *Server) handleHealthTool(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(newHealthReport(s.backends.HealthSnapshot()), "", "  ")
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode health report", err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListBackendsTool(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := RenderBackendTable(&buf, s.backends.HealthSnapshot()); err != nil {
		return mcp.NewToolResultErrorFromErr("failed to render backends", err), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) handleAuditLogTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", DefaultAuditLimit)
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	limit = min(limit, maxAuditLimit)

	events, err := s.audit.Tail(ctx, limit)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to read audit log", err), nil
	}
	if events == nil {
		events = []audit.Event{}
	}

	data, err := json.MarshalIndent(auditReport{Count: len(events), Events: events}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit events: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
