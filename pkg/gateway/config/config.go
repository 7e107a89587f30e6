// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the gateway: backend
// descriptors, authentication settings and the gateway file that holds them.
//
// Files are decoded strictly. Unknown fields are rejected so operator typos
// surface at startup instead of being silently ignored.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
)

// Duration is a time.Duration that (un)marshals as "30s" style strings.
// A bare number is read as seconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid duration %s: expected a number of seconds or a duration string", data)
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: invalid duration", value.Line)
	}
	if seconds, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// HTTP transport flavours for RemoteHTTP backends.
const (
	HTTPTransportStreamable = "streamable-http"
	HTTPTransportSSE        = "sse"
)

// Backend describes one backend tool server. It is immutable once registered.
type Backend struct {
	// Name is unique and used as the tool namespace prefix.
	Name string `json:"name" yaml:"name"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Enabled defaults to true. Disabled backends are registered but never connected.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	Transport gateway.TransportKind `json:"transport" yaml:"transport"`

	// Command, Args and Cwd apply to stdio backends.
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty" yaml:"cwd,omitempty"`

	// URL, BearerToken and HTTPTransport apply to http backends.
	URL           string `json:"url,omitempty" yaml:"url,omitempty"`
	BearerToken   string `json:"bearerToken,omitempty" yaml:"bearerToken,omitempty"`
	HTTPTransport string `json:"httpTransport,omitempty" yaml:"httpTransport,omitempty"`

	// Handle names the in-process tool set. Module is accepted as an alias.
	Handle string `json:"handle,omitempty" yaml:"handle,omitempty"`
	Module string `json:"module,omitempty" yaml:"module,omitempty"`

	// Env is merged over the gateway's own environment for stdio backends.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// AuthMethod is how the backend authenticates to its own downstream
	// system. The gateway only forwards it as environment material.
	AuthMethod string `json:"authMethod,omitempty" yaml:"authMethod,omitempty"`

	// NamespaceTools defaults to true: tools are exposed as <name>_<tool>.
	NamespaceTools *bool `json:"namespaceTools,omitempty" yaml:"namespaceTools,omitempty"`

	// HealthCheckIntervalSeconds of 0 disables probing. Defaults to 30.
	HealthCheckIntervalSeconds *int `json:"healthCheckIntervalSeconds,omitempty" yaml:"healthCheckIntervalSeconds,omitempty"`

	ConnectTimeout Duration `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
	RequestTimeout Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`
}

// IsEnabled reports whether the backend should be connected.
func (b *Backend) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// NamespacesTools reports whether tool names get the backend prefix.
func (b *Backend) NamespacesTools() bool {
	return b.NamespaceTools == nil || *b.NamespaceTools
}

// HealthInterval returns the probe interval; zero means probing is disabled.
func (b *Backend) HealthInterval() time.Duration {
	if b.HealthCheckIntervalSeconds == nil {
		return defaultHealthCheckInterval
	}
	return time.Duration(*b.HealthCheckIntervalSeconds) * time.Second
}

// InProcessHandle returns the tool set name for in-process backends.
func (b *Backend) InProcessHandle() string {
	if b.Handle != "" {
		return b.Handle
	}
	return b.Module
}

// ConnectTimeoutOrDefault returns the connect timeout, falling back to the default.
func (b *Backend) ConnectTimeoutOrDefault() time.Duration {
	if b.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return time.Duration(b.ConnectTimeout)
}

// RequestTimeoutOrDefault returns the request timeout, falling back to the default.
func (b *Backend) RequestTimeoutOrDefault() time.Duration {
	if b.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(b.RequestTimeout)
}

// StaticToken is the identity a literal bearer token maps to.
type StaticToken struct {
	ClientID string   `json:"clientId" yaml:"clientId"`
	Scopes   []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// AuthConfig configures inbound authentication and per-tool authorization.
type AuthConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// JWTPublicKeyFile is a PEM public key, a JWK, or a JWK set.
	JWTPublicKeyFile string `json:"jwtPublicKeyFile,omitempty" yaml:"jwtPublicKeyFile,omitempty"`
	// JWTJWKSURL is fetched and cached when set.
	JWTJWKSURL    string   `json:"jwtJwksUrl,omitempty" yaml:"jwtJwksUrl,omitempty"`
	JWTIssuer     string   `json:"jwtIssuer,omitempty" yaml:"jwtIssuer,omitempty"`
	JWTAudience   string   `json:"jwtAudience,omitempty" yaml:"jwtAudience,omitempty"`
	JWTAlgorithms []string `json:"jwtAlgorithms,omitempty" yaml:"jwtAlgorithms,omitempty"`

	// StaticTokens maps a literal token to an identity. Meant for development.
	StaticTokens map[string]StaticToken `json:"staticTokens,omitempty" yaml:"staticTokens,omitempty"`

	// RequiredScopes apply to every tool call.
	RequiredScopes []string `json:"requiredScopes,omitempty" yaml:"requiredScopes,omitempty"`
	// ToolScopes maps an exposed tool name to additional required scopes.
	ToolScopes map[string][]string `json:"toolScopes,omitempty" yaml:"toolScopes,omitempty"`
}

// UsesJWT reports whether signed-token verification is configured.
func (a *AuthConfig) UsesJWT() bool {
	return a.JWTPublicKeyFile != "" || a.JWTJWKSURL != ""
}

// RedisConfig selects the Redis audit store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Capacity int          `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Redis    *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RateLimitConfig configures per-client request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	MetricsEnabled  bool    `json:"metricsEnabled,omitempty" yaml:"metricsEnabled,omitempty"`
	TracingEndpoint string  `json:"tracingEndpoint,omitempty" yaml:"tracingEndpoint,omitempty"`
	TracingInsecure bool    `json:"tracingInsecure,omitempty" yaml:"tracingInsecure,omitempty"`
	SamplingRate    float64 `json:"samplingRate,omitempty" yaml:"samplingRate,omitempty"`
}

// Config is the gateway configuration file.
type Config struct {
	Name               string `json:"name,omitempty" yaml:"name,omitempty"`
	Host               string `json:"host,omitempty" yaml:"host,omitempty"`
	Port               int    `json:"port,omitempty" yaml:"port,omitempty"`
	EndpointPath       string `json:"endpointPath,omitempty" yaml:"endpointPath,omitempty"`
	NamespaceSeparator string `json:"namespaceSeparator,omitempty" yaml:"namespaceSeparator,omitempty"`

	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Audit     AuditConfig     `json:"audit,omitempty" yaml:"audit,omitempty"`
	RateLimit RateLimitConfig `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`

	Backends []Backend `json:"backends" yaml:"backends"`
}
