// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the gateway error taxonomy.
//
// Every failure that crosses a layer boundary (auth, registry, transport,
// dispatcher) is one of the typed errors below, so callers branch with
// errors.As instead of inspecting messages. ToEnvelope converts any error
// into the structured {category, message, suggestion} shape returned to
// clients.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Error categories
const (
	// CategoryAuthentication is used for missing, invalid or expired credentials
	CategoryAuthentication = "authentication_error"

	// CategoryAuthorization is used when a valid identity lacks required scopes
	CategoryAuthorization = "authorization_error"

	// CategoryBackendUnavailable is used when the backend is unknown or not serving
	CategoryBackendUnavailable = "backend_unavailable"

	// CategoryBackendConnection is used for transport failures talking to a backend
	CategoryBackendConnection = "backend_connection_error"

	// CategoryToolInvocation is used when a backend tool reported a failure
	CategoryToolInvocation = "tool_invocation_error"

	// CategoryRateLimited is used when a client exceeded its request budget
	CategoryRateLimited = "rate_limited"

	// CategoryInvalidRequest is used for malformed requests
	CategoryInvalidRequest = "invalid_request"

	// CategoryInternal is used for everything else
	CategoryInternal = "internal_error"
)

var (
	// ErrInvalidConfig indicates invalid configuration was provided.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound indicates a requested backend or tool does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid request parameters.
	ErrInvalidInput = errors.New("invalid input")
)

// ConnectionKind distinguishes why a backend connection failed.
type ConnectionKind string

const (
	// KindConfig means the connection could not be constructed from the descriptor.
	KindConfig ConnectionKind = "config"
	// KindConnect means the backend could not be reached or the handshake failed.
	KindConnect ConnectionKind = "connect"
	// KindTimeout means the backend did not answer within the configured timeout.
	KindTimeout ConnectionKind = "timeout"
)

// AuthenticationError is returned before any backend is touched when the
// caller's credential is missing, invalid or expired.
type AuthenticationError struct {
	Reason string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(reason string, cause error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Cause: cause}
}

// AuthorizationError carries the scopes the identity is missing for a tool.
type AuthorizationError struct {
	Tool     string
	ClientID string
	Missing  []string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("client %q is not authorized to call %q: missing scopes [%s]",
		e.ClientID, e.Tool, strings.Join(e.Missing, " "))
}

// BackendUnavailableError is returned when the resolved backend is unknown or
// is not in a serving state.
type BackendUnavailableError struct {
	Backend string
	// Status is empty when the backend is not registered at all.
	Status string
	Tool   string
}

func (e *BackendUnavailableError) Error() string {
	if e.Status == "" {
		if e.Backend == "" {
			return fmt.Sprintf("no backend serves tool %q", e.Tool)
		}
		return fmt.Sprintf("backend %q is not registered", e.Backend)
	}
	return fmt.Sprintf("backend %q is unavailable (status: %s)", e.Backend, e.Status)
}

// Is lets errors.Is(err, ErrNotFound) match unknown backends.
func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrNotFound && e.Status == ""
}

// BackendConnectionError is a transport level failure during open, probe or
// dispatch.
type BackendConnectionError struct {
	Backend string
	Kind    ConnectionKind
	Err     error
}

func (e *BackendConnectionError) Error() string {
	return fmt.Sprintf("backend %q %s error: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendConnectionError) Unwrap() error { return e.Err }

// NewConfigError reports a descriptor that cannot be turned into a connection.
func NewConfigError(backend string, err error) *BackendConnectionError {
	return &BackendConnectionError{Backend: backend, Kind: KindConfig, Err: err}
}

// NewConnectError reports a backend that could not be reached. Deadline
// errors are reported as KindTimeout.
func NewConnectError(backend string, err error) *BackendConnectionError {
	kind := KindConnect
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &BackendConnectionError{Backend: backend, Kind: kind, Err: err}
}

// ToolInvocationError wraps an application level failure reported by the
// backend. The backend's own result is kept so its detail reaches the caller.
type ToolInvocationError struct {
	Backend string
	Tool    string
	Message string
	Result  *mcp.CallToolResult
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q on backend %q failed: %s", e.Tool, e.Backend, e.Message)
}

// RateLimitedError is returned when a client exceeds its configured request rate.
type RateLimitedError struct {
	ClientID string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("client %q exceeded the request rate limit", e.ClientID)
}

// Envelope is the structured error returned to clients.
type Envelope struct {
	Category   string `json:"category"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Category returns the taxonomy category of err.
func Category(err error) string {
	return ToEnvelope(err).Category
}

// ToEnvelope converts err into its client-facing envelope.
func ToEnvelope(err error) Envelope {
	var (
		authnErr *AuthenticationError
		authzErr *AuthorizationError
		unavail  *BackendUnavailableError
		connErr  *BackendConnectionError
		toolErr  *ToolInvocationError
		rateErr  *RateLimitedError
	)

	switch {
	case err == nil:
		return Envelope{}
	case errors.As(err, &authnErr):
		return Envelope{
			Category:   CategoryAuthentication,
			Message:    authnErr.Error(),
			Suggestion: "Send a valid bearer token in the Authorization header",
		}
	case errors.As(err, &authzErr):
		return Envelope{
			Category:   CategoryAuthorization,
			Message:    authzErr.Error(),
			Suggestion: "Request a token that includes scopes: " + strings.Join(authzErr.Missing, ", "),
		}
	case errors.As(err, &unavail):
		suggestion := "Check gateway_health for backend status"
		if unavail.Status == "" {
			suggestion = "Use gateway_list_backends to see registered backends"
		}
		return Envelope{Category: CategoryBackendUnavailable, Message: unavail.Error(), Suggestion: suggestion}
	case errors.As(err, &connErr):
		return Envelope{
			Category:   CategoryBackendConnection,
			Message:    connErr.Error(),
			Suggestion: connectionSuggestion(connErr.Kind),
		}
	case errors.As(err, &toolErr):
		return Envelope{Category: CategoryToolInvocation, Message: toolErr.Error()}
	case errors.As(err, &rateErr):
		return Envelope{
			Category:   CategoryRateLimited,
			Message:    rateErr.Error(),
			Suggestion: "Retry after a short delay",
		}
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound):
		return Envelope{Category: CategoryInvalidRequest, Message: err.Error()}
	default:
		return Envelope{Category: CategoryInternal, Message: err.Error()}
	}
}

func connectionSuggestion(kind ConnectionKind) string {
	switch kind {
	case KindConfig:
		return "Fix the backend configuration and reconnect"
	case KindTimeout:
		return "The backend did not respond in time; consider raising requestTimeout"
	default:
		return "Verify the backend is running and reachable"
	}
}

// IsAuthentication checks if the error is an authentication error
func IsAuthentication(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// IsAuthorization checks if the error is an authorization error
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

// IsBackendUnavailable checks if the error is a backend unavailable error
func IsBackendUnavailable(err error) bool {
	var e *BackendUnavailableError
	return errors.As(err, &e)
}

// IsTimeout checks if the error is a backend timeout
func IsTimeout(err error) bool {
	var e *BackendConnectionError
	return errors.As(err, &e) && e.Kind == KindTimeout
}
