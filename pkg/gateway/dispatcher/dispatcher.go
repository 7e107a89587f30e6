// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher is the single entry point for routed tool calls.
//
// Every call is authenticated, resolved to a backend, authorized for the
// tool it names and forwarded. Exactly one audit event is recorded per call
// whatever the outcome.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/audit"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/auth"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/registry"
	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry"
)

//go:generate mockgen -destination=mocks/mock_dispatcher.go -package=mocks -source=dispatcher.go Router,Authenticator

// Router resolves exposed tool names and receives transport failures.
type Router interface {
	Resolve(exposed string) (*registry.Route, error)
	ReportFailure(backend string, err error)
}

// Authenticator validates credentials and checks per-tool scopes.
type Authenticator interface {
	Enabled() bool
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
	AuthorizeTool(identity *auth.Identity, tool string) error
}

// Recorder stores audit events.
type Recorder interface {
	Record(ctx context.Context, e audit.Event)
}

// Request is one inbound tool invocation.
type Request struct {
	// Tool is the exposed, possibly namespaced, tool name.
	Tool      string
	Arguments map[string]any
	// Authorization is the raw Authorization header value.
	Authorization string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records spans and instruments for every call.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithRateLimit limits each client to rps requests per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) {
		if rps > 0 {
			d.limiter = newClientLimiter(rps, burst)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher routes tool calls to backends.
type Dispatcher struct {
	router   Router
	auth     Authenticator
	recorder Recorder
	metrics  *telemetry.Metrics
	limiter  *clientLimiter
	now      func() time.Time
}

// New creates a Dispatcher.
func New(router Router, authenticator Authenticator, recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:   router,
		auth:     authenticator,
		recorder: recorder,
		metrics:  telemetry.NoopMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one tool call. A nil error means the backend produced a
// successful result; every failure is one of the pkg/errors types.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*mcp.CallToolResult, error) {
	start := d.now()
	ctx, span := d.metrics.StartToolCall(ctx, req.Tool)

	event := audit.Event{Tool: req.Tool, Backend: audit.GatewayBackend}
	result, err := d.dispatch(ctx, req, &event)

	elapsed := d.now().Sub(start)
	event.Timestamp = d.now().UTC()
	event.DurationMs = elapsed.Milliseconds()
	event.Status = statusFor(err)
	if err != nil {
		event.Details = err.Error()
	}
	d.recorder.Record(ctx, event)
	d.metrics.EndToolCall(ctx, span, event.Backend, req.Tool, string(event.Status), elapsed, err)

	if err != nil {
		slog.Debug("Tool call failed", "tool", req.Tool, "backend", event.Backend,
			"client", event.ClientID, "category", gwerrors.Category(err), "error", err)
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request, event *audit.Event) (*mcp.CallToolResult, error) {
	identity, err := d.authenticate(ctx, req.Authorization)
	if err != nil {
		return nil, err
	}
	clientID := "anonymous"
	if identity != nil {
		event.ClientID = identity.ClientID
		clientID = identity.ClientID
		ctx = auth.WithIdentity(ctx, identity)
	}

	if d.limiter != nil && !d.limiter.allow(clientID, d.now()) {
		return nil, &gwerrors.RateLimitedError{ClientID: clientID}
	}

	route, err := d.router.Resolve(req.Tool)
	if err != nil {
		var unavailable *gwerrors.BackendUnavailableError
		if errors.As(err, &unavailable) && unavailable.Backend != "" {
			event.Backend = unavailable.Backend
		}
		return nil, err
	}

	if err := d.auth.AuthorizeTool(identity, route.ExposedName); err != nil {
		return nil, err
	}

	event.Backend = route.Backend.Name
	return d.forward(ctx, route, req.Arguments)
}

// authenticate returns a nil identity when authentication is disabled.
func (d *Dispatcher) authenticate(ctx context.Context, header string) (*auth.Identity, error) {
	if !d.auth.Enabled() {
		return nil, nil
	}
	token, err := auth.ExtractBearerToken(header)
	if err != nil {
		return nil, gwerrors.NewAuthenticationError("missing or malformed Authorization header", err)
	}
	return d.auth.Authenticate(ctx, token)
}

// forward calls the backend with the descriptor's request timeout. In-flight
// calls are not cancelled when the backend is disconnected.
func (d *Dispatcher) forward(ctx context.Context, route *registry.Route, args map[string]any) (*mcp.CallToolResult, error) {
	name := route.Backend.Name

	callCtx, cancel := context.WithTimeout(ctx, route.Backend.RequestTimeoutOrDefault())
	defer cancel()

	result, err := route.Conn.CallTool(callCtx, route.Tool, args)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// the caller went away; not the backend's fault
			return nil, fmt.Errorf("tool call %s cancelled: %w", route.ExposedName, ctx.Err())
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return nil, &gwerrors.BackendConnectionError{Backend: name, Kind: gwerrors.KindTimeout, Err: err}
		default:
			d.router.ReportFailure(name, err)
			return nil, &gwerrors.BackendConnectionError{Backend: name, Kind: gwerrors.KindConnect, Err: err}
		}
	}

	if result == nil {
		result = &mcp.CallToolResult{}
	}
	if result.IsError {
		return nil, &gwerrors.ToolInvocationError{
			Backend: name,
			Tool:    route.ExposedName,
			Message: firstText(result),
			Result:  result,
		}
	}
	return result, nil
}

func statusFor(err error) audit.Status {
	switch {
	case err == nil:
		return audit.StatusSuccess
	case gwerrors.IsAuthentication(err), gwerrors.IsAuthorization(err):
		return audit.StatusUnauthorized
	default:
		return audit.StatusError
	}
}

func firstText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok && text.Text != "" {
			return text.Text
		}
	}
	return "tool reported an error"
}
