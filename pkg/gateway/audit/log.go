// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Log is the gateway's audit trail. It owns a Store and mirrors every event
// to a structured logger at LevelAudit.
type Log struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger events are mirrored to.
func WithLogger(l *slog.Logger) Option {
	return func(a *Log) { a.logger = l }
}

// WithClock overrides the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Log) { a.now = now }
}

// NewLog creates a Log backed by store. A nil store selects an in-memory
// ring of the default capacity.
func NewLog(store Store, opts ...Option) *Log {
	if store == nil {
		store = NewRingBuffer(0)
	}
	l := &Log{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends e. It never fails the caller: store errors are logged.
// Events are stored in completion order.
func (l *Log) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	e.LogTo(ctx, l.logger, LevelAudit)

	// a caller that gave up must still leave a trace
	if err := l.store.Append(context.WithoutCancel(ctx), e); err != nil {
		slog.Error("Failed to store audit event", "audit_id", e.ID, "tool", e.Tool, "error", err)
	}
}

// Tail returns up to limit events, newest first.
func (l *Log) Tail(ctx context.Context, limit int) ([]Event, error) {
	return l.store.Tail(ctx, limit)
}

// Len returns the number of stored events.
func (l *Log) Len(ctx context.Context) (int, error) {
	return l.store.Len(ctx)
}

// Close releases the store if it holds resources.
func (l *Log) Close() error {
	if c, ok := l.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
