// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit records one event per tool invocation that reaches the
// gateway, whether it succeeded, failed or was refused.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LevelAudit is a custom audit log level - between Info and Warn
const LevelAudit = slog.Level(2)

// GatewayBackend is recorded as the backend of events that never reached one,
// such as authentication and authorization failures.
const GatewayBackend = "gateway"

// Status is the outcome of an audited invocation.
type Status string

const (
	// StatusSuccess means the backend returned a result.
	StatusSuccess Status = "success"
	// StatusError means routing, transport or the tool itself failed.
	StatusError Status = "error"
	// StatusUnauthorized means the caller was not authenticated or lacked scopes.
	StatusUnauthorized Status = "unauthorized"
)

// Event is an immutable record of one tool invocation.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	ClientID   string    `json:"clientId,omitempty"`
	Backend    string    `json:"backend"`
	Status     Status    `json:"status"`
	Details    string    `json:"details,omitempty"`
	DurationMs int64     `json:"durationMs"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(now time.Time, tool, clientID, backend string, status Status) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: now.UTC(),
		Tool:      tool,
		ClientID:  clientID,
		Backend:   backend,
		Status:    status,
	}
}

// LogTo logs the event to logger at level.
func (e *Event) LogTo(ctx context.Context, logger *slog.Logger, level slog.Level) {
	attrs := []slog.Attr{
		slog.String("audit_id", e.ID),
		slog.Time("timestamp", e.Timestamp),
		slog.String("tool", e.Tool),
		slog.String("client_id", e.ClientID),
		slog.String("backend", e.Backend),
		slog.String("status", string(e.Status)),
		slog.Int64("duration_ms", e.DurationMs),
	}
	if e.Details != "" {
		attrs = append(attrs, slog.String("details", e.Details))
	}
	logger.LogAttrs(ctx, level, "audit_event", attrs...)
}
