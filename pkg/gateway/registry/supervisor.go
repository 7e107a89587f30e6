// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/transport"
)

// supervise probes e every interval until ctx is cancelled. gen is the
// connection generation the supervisor belongs to.
func (r *Registry) supervise(ctx context.Context, e *entry, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	name := e.backend.Name
	slog.Debug("Starting health supervision", "backend", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stopping health supervision", "backend", name)
			return
		case <-ticker.C:
			r.probeOnce(ctx, e, gen)
		}
	}
}

// probeOnce runs one probe and applies its result.
func (r *Registry) probeOnce(ctx context.Context, e *entry, gen uint64) {
	e.mu.RLock()
	if e.generation != gen {
		e.mu.RUnlock()
		return
	}
	conn := e.conn
	e.mu.RUnlock()

	start := r.now()
	err, panicked := safeProbe(ctx, r.connector, &e.backend, conn)
	if ctx.Err() != nil {
		// disconnect raced the probe; the handle is going away
		return
	}
	finished := r.now()
	latency := finished.Sub(start)

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		return
	}
	from := e.health.Status
	switch {
	case panicked:
		e.health.RecordFailure(finished, latency, err)
		e.health.Status = gateway.StatusUnhealthy
	case err != nil:
		e.health.RecordFailure(finished, latency, err)
	default:
		e.health.RecordSuccess(finished, latency)
	}
	to := e.health.Status
	failures := e.health.ConsecutiveFailures
	e.mu.Unlock()

	if err != nil {
		slog.Debug("Health probe failed", "backend", e.backend.Name, "failures", failures, "error", err)
	}
	if from != to {
		slog.Info("Backend health changed", "backend", e.backend.Name, "from", from, "to", to)
	}
	r.notify(StatusChange{Backend: e.backend.Name, From: from, To: to, Err: errString(err), At: finished})
}

// safeProbe runs the connector's probe and turns a panic into an error so a
// misbehaving connector cannot end the supervisor.
func safeProbe(
	ctx context.Context, connector transport.Connector, backend *config.Backend, conn transport.Connection,
) (err error, panicked bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Health probe panicked", "backend", backend.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("health probe panicked: %v", p)
			panicked = true
		}
	}()
	return connector.Probe(ctx, backend, conn), false
}
