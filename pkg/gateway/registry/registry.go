// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry owns the lifecycle of every backend connection.
//
// A backend moves through Pending → Connecting → Healthy | Unhealthy on
// connect. While connected, one supervisor goroutine per backend probes it
// every healthCheckIntervalSeconds: a failed probe counts a consecutive
// failure (Degraded below UnhealthyThreshold, Unhealthy at or above it) and
// a successful probe resets the count and restores Healthy. Nothing
// reconnects automatically; Reconnect is an explicit operator action.
//
// The registry map is guarded by one mutex for structural changes. Each
// entry's health is guarded by its own lock, which is only held to copy or
// update fields, never across a probe or a connection attempt, so snapshots
// never wait on backend I/O.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/transport"
)

var (
	// ErrConnectInProgress is returned by Connect while another attempt for
	// the same backend is running.
	ErrConnectInProgress = errors.New("connection attempt already in progress")

	// ErrSuperseded is returned by Connect when the backend was disconnected
	// or re-registered while the attempt was running.
	ErrSuperseded = errors.New("backend changed during connection attempt")

	// ErrDisabled is returned by Connect for a backend with enabled=false.
	ErrDisabled = errors.New("backend is disabled")
)

// StatusChange describes one backend state transition.
type StatusChange struct {
	Backend string
	From    gateway.HealthStatus
	To      gateway.HealthStatus
	Err     string
	At      time.Time
}

// StatusListener is notified after every state transition. Listeners run
// synchronously on the goroutine that made the change and must not call
// Register, Unregister or Disconnect.
type StatusListener func(StatusChange)

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithStatusListener adds a listener for state transitions.
func WithStatusListener(l StatusListener) Option {
	return func(r *Registry) { r.listeners = append(r.listeners, l) }
}

// WithNamespaceSeparator sets the separator between backend and tool names.
func WithNamespaceSeparator(sep string) Option {
	return func(r *Registry) { r.separator = sep }
}

// WithReconnectPolicy tunes Reconnect: the number of attempts and the
// initial backoff interval.
func WithReconnectPolicy(maxTries uint, initialInterval time.Duration) Option {
	return func(r *Registry) {
		r.reconnectTries = maxTries
		r.reconnectInterval = initialInterval
	}
}

// entry is a backend descriptor plus its mutable state.
type entry struct {
	backend config.Backend

	mu     sync.RWMutex
	health gateway.BackendHealth
	conn   transport.Connection
	tools  []mcp.Tool
	// generation changes on every connect and disconnect so that late results
	// from a superseded attempt or supervisor are discarded.
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Registry tracks backends and their connections.
type Registry struct {
	connector transport.Connector
	separator string
	now       func() time.Time
	listeners []StatusListener

	reconnectTries    uint
	reconnectInterval time.Duration

	// structMu serializes Register and Unregister so that replacing a backend
	// is atomic with respect to other structural changes.
	structMu sync.Mutex

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry that opens connections through connector.
func New(connector transport.Connector, opts ...Option) *Registry {
	r := &Registry{
		connector:         connector,
		separator:         config.DefaultNamespaceSeparator,
		now:               time.Now,
		reconnectTries:    3,
		reconnectInterval: 500 * time.Millisecond,
		entries:           make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Separator returns the namespace separator.
func (r *Registry) Separator() string {
	return r.separator
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: backend %s", gwerrors.ErrNotFound, name)
	}
	return e, nil
}

func (r *Registry) sortedEntries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.entries))
	for _, name := range slices.Sorted(maps.Keys(r.entries)) {
		out = append(out, r.entries[name])
	}
	return out
}

func (r *Registry) notify(change StatusChange) {
	if change.From == change.To {
		return
	}
	for _, l := range r.listeners {
		l(change)
	}
}

// Register stores backend in Pending state. A backend already registered
// under the same name is disconnected first, its supervisor stopped and its
// handle closed, so exactly one entry exists per name.
func (r *Registry) Register(ctx context.Context, backend config.Backend) error {
	if err := config.NewValidator().ValidateBackend(&backend, r.separator); err != nil {
		return err
	}

	r.structMu.Lock()
	defer r.structMu.Unlock()

	r.mu.RLock()
	old := r.entries[backend.Name]
	r.mu.RUnlock()

	if old != nil {
		slog.Info("Replacing registered backend", "backend", backend.Name)
		if err := r.detach(ctx, old); err != nil {
			return fmt.Errorf("failed to disconnect previous %s: %w", backend.Name, err)
		}
	}

	e := &entry{
		backend: cloneBackend(backend),
		health:  gateway.BackendHealth{Status: gateway.StatusPending},
	}
	r.mu.Lock()
	r.entries[backend.Name] = e
	r.mu.Unlock()

	slog.Debug("Registered backend", "backend", backend.Name, "transport", backend.Transport)
	r.notify(StatusChange{Backend: backend.Name, To: gateway.StatusPending, At: r.now()})
	return nil
}

// Unregister disconnects the backend and removes it.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.structMu.Lock()
	defer r.structMu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	detachErr := r.detach(ctx, e)

	r.mu.Lock()
	if r.entries[name] == e {
		delete(r.entries, name)
	}
	r.mu.Unlock()
	return detachErr
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Backend returns the descriptor registered under name.
func (r *Registry) Backend(name string) (config.Backend, error) {
	e, err := r.lookup(name)
	if err != nil {
		return config.Backend{}, err
	}
	return cloneBackend(e.backend), nil
}

// ConnectAll connects every registered backend concurrently and reports
// which ones ended up connected. Attempts are independent: a failing or slow
// backend never affects another. Disabled backends are reported false.
func (r *Registry) ConnectAll(ctx context.Context) map[string]bool {
	entries := r.sortedEntries()
	results := make(map[string]bool, len(entries))
	var mu sync.Mutex

	var g errgroup.Group
	for _, e := range entries {
		name := e.backend.Name
		g.Go(func() error {
			err := r.Connect(ctx, name)
			if err != nil && !errors.Is(err, ErrDisabled) {
				slog.Warn("Failed to connect backend", "backend", name, "error", err)
			}
			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Connect opens the backend's connection.
//
// Pending, Disconnected and Unhealthy backends move to Connecting and then
// to Healthy, with a supervisor started when the health interval is
// non-zero, or to Unhealthy with the error recorded and no supervisor. An
// Unhealthy backend's previous supervisor is stopped and its handle closed
// before the new connection is opened.
// Connect is a no-op for a Healthy or Degraded backend.
func (r *Registry) Connect(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if !e.backend.IsEnabled() {
		return fmt.Errorf("%w: %s", ErrDisabled, name)
	}

	e.mu.Lock()
	from := e.health.Status
	switch {
	case from.Available():
		e.mu.Unlock()
		return nil
	case from == gateway.StatusConnecting:
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectInProgress, name)
	}
	e.generation++
	gen := e.generation
	// an Unhealthy backend can still hold a handle and a running supervisor
	cancel, done, stale := e.cancel, e.done, e.conn
	e.cancel, e.done, e.conn, e.tools = nil, nil, nil, nil
	e.health.Status = gateway.StatusConnecting
	e.mu.Unlock()
	r.notify(StatusChange{Backend: name, From: from, To: gateway.StatusConnecting, At: r.now()})

	if err := release(ctx, name, cancel, done, stale); err != nil {
		slog.Warn("Previous connection still closing", "backend", name, "error", err)
	}

	slog.Debug("Connecting backend", "backend", name, "transport", e.backend.Transport)
	start := r.now()
	conn, openErr := r.connector.Open(ctx, &e.backend)
	finished := r.now()
	latency := finished.Sub(start)

	e.mu.Lock()
	if e.generation != gen {
		e.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("%w: %s", ErrSuperseded, name)
	}

	if openErr != nil {
		e.health.MarkUnhealthy(finished, openErr)
		e.health.LatencyMs = latency.Milliseconds()
		e.mu.Unlock()
		slog.Warn("Backend connection failed", "backend", name, "error", openErr)
		r.notify(StatusChange{
			Backend: name, From: gateway.StatusConnecting, To: gateway.StatusUnhealthy,
			Err: openErr.Error(), At: finished,
		})
		return openErr
	}

	e.conn = conn
	e.tools = conn.Tools()
	e.health.RecordSuccess(finished, latency)
	e.health.ToolCount = len(e.tools)
	if interval := e.backend.HealthInterval(); interval > 0 {
		supCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.done = make(chan struct{})
		go r.supervise(supCtx, e, gen, interval, e.done)
	}
	toolCount := len(e.tools)
	e.mu.Unlock()

	slog.Info("Backend connected", "backend", name, "tools", toolCount, "latency", latency)
	r.notify(StatusChange{Backend: name, From: gateway.StatusConnecting, To: gateway.StatusHealthy, At: finished})
	return nil
}

// Reconnect disconnects the backend and connects it again, retrying with
// exponential backoff. Configuration errors are not retried.
func (r *Registry) Reconnect(ctx context.Context, name string) error {
	if err := r.Disconnect(ctx, name); err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.reconnectInterval
	b.MaxInterval = 10 * r.reconnectInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.Connect(ctx, name)
		if err == nil {
			return struct{}{}, nil
		}
		var connErr *gwerrors.BackendConnectionError
		if errors.As(err, &connErr) && connErr.Kind == gwerrors.KindConfig {
			return struct{}{}, backoff.Permanent(err)
		}
		if errors.Is(err, ErrDisabled) || errors.Is(err, gwerrors.ErrNotFound) || errors.Is(err, ErrConnectInProgress) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.reconnectTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("Reconnect attempt failed", "backend", name, "error", err, "retry_in", next)
		}),
	)
	return err
}

// Disconnect stops the backend's supervisor, waits for it to exit and then
// closes the connection. The descriptor stays registered with status
// Disconnected so the backend can be connected again.
//
// If ctx ends before the supervisor exits, Disconnect returns ctx.Err() and
// the handle is closed in the background once the supervisor is gone.
func (r *Registry) Disconnect(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.detach(ctx, e)
}

// DisconnectAll disconnects every backend concurrently.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, e := range r.sortedEntries() {
		g.Go(func() error {
			if err := r.detach(ctx, e); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", e.backend.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// detach moves e to Disconnected and releases its supervisor and handle.
func (r *Registry) detach(ctx context.Context, e *entry) error {
	e.mu.Lock()
	from := e.health.Status
	e.generation++
	cancel, done, conn := e.cancel, e.done, e.conn
	e.cancel, e.done, e.conn, e.tools = nil, nil, nil, nil
	e.health.Status = gateway.StatusDisconnected
	e.health.ConsecutiveFailures = 0
	e.health.ToolCount = 0
	e.mu.Unlock()

	name := e.backend.Name
	r.notify(StatusChange{Backend: name, From: from, To: gateway.StatusDisconnected, At: r.now()})

	if err := release(ctx, name, cancel, done, conn); err != nil {
		return err
	}
	if from != gateway.StatusDisconnected {
		slog.Info("Backend disconnected", "backend", name)
	}
	return nil
}

// release stops a supervisor, waits for it to exit and closes its handle.
// If ctx ends first, the handle is closed in the background once the
// supervisor is gone and ctx.Err() is returned.
func release(ctx context.Context, name string, cancel context.CancelFunc, done chan struct{}, conn transport.Connection) error {
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			go func() {
				<-done
				closeConn(name, conn)
			}()
			return ctx.Err()
		}
	}
	closeConn(name, conn)
	return nil
}

func closeConn(name string, conn transport.Connection) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		slog.Warn("Failed to close backend connection", "backend", name, "error", err)
	}
}

// ReportFailure records a transport failure observed while dispatching to
// name. It applies the same transition as a failed probe and is ignored
// unless the backend is currently serving.
func (r *Registry) ReportFailure(name string, err error) {
	e, lookupErr := r.lookup(name)
	if lookupErr != nil {
		return
	}

	now := r.now()
	e.mu.Lock()
	from := e.health.Status
	if !from.Available() {
		e.mu.Unlock()
		return
	}
	e.health.RecordFailure(now, time.Duration(e.health.LatencyMs)*time.Millisecond, err)
	to := e.health.Status
	e.mu.Unlock()

	r.notify(StatusChange{Backend: name, From: from, To: to, Err: errString(err), At: now})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func cloneBackend(b config.Backend) config.Backend {
	b.Args = slices.Clone(b.Args)
	b.Env = maps.Clone(b.Env)
	return b
}
