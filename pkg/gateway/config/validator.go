// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/validation"
)

var backendNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

// Validator checks a configuration and reports every problem at once.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the whole gateway configuration.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", gwerrors.ErrInvalidConfig)
	}

	var problems []string

	if cfg.Port < 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", cfg.Port))
	}
	if cfg.EndpointPath != "" && !strings.HasPrefix(cfg.EndpointPath, "/") {
		problems = append(problems, "endpointPath must start with /")
	}
	if cfg.NamespaceSeparator == "" {
		problems = append(problems, "namespaceSeparator must not be empty")
	}
	if cfg.Audit.Capacity < 0 {
		problems = append(problems, "audit.capacity must not be negative")
	}
	if cfg.Audit.Redis != nil && cfg.Audit.Redis.Addr == "" {
		problems = append(problems, "audit.redis.addr is required when audit.redis is set")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		problems = append(problems, "rateLimit values must not be negative")
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		problems = append(problems, "telemetry.samplingRate must be between 0 and 1")
	}

	problems = append(problems, v.authProblems(&cfg.Auth)...)

	seen := make(map[string]bool, len(cfg.Backends))
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if seen[b.Name] {
			problems = append(problems, fmt.Sprintf("backends[%d]: duplicate backend name %q", i, b.Name))
		}
		seen[b.Name] = true
		for _, p := range v.backendProblems(b, cfg.NamespaceSeparator) {
			problems = append(problems, fmt.Sprintf("backends[%d] (%s): %s", i, b.Name, p))
		}
	}

	return joinProblems(problems)
}

// ValidateBackend validates a single descriptor.
func (v *Validator) ValidateBackend(b *Backend, separator string) error {
	if b == nil {
		return fmt.Errorf("%w: backend is nil", gwerrors.ErrInvalidConfig)
	}
	return joinProblems(v.backendProblems(b, separator))
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w:\n  - %s", gwerrors.ErrInvalidConfig, strings.Join(problems, "\n  - "))
}

func (*Validator) backendProblems(b *Backend, separator string) []string {
	var problems []string

	switch {
	case b.Name == "":
		problems = append(problems, "name is required")
	case !backendNamePattern.MatchString(b.Name):
		problems = append(problems, "name must start with a letter and contain only letters, digits and '-'")
	case separator != "" && strings.Contains(b.Name, separator):
		problems = append(problems, fmt.Sprintf("name must not contain the namespace separator %q", separator))
	}

	switch b.Transport {
	case gateway.TransportSpawnProcess:
		if b.Command == "" {
			problems = append(problems, "command is required for stdio backends")
		}
	case gateway.TransportRemoteHTTP:
		problems = append(problems, urlProblems(b.URL)...)
		if b.BearerToken != "" {
			if err := validation.ValidateHTTPHeaderValue("Bearer " + b.BearerToken); err != nil {
				problems = append(problems, "bearerToken: "+err.Error())
			}
		}
		if b.HTTPTransport != "" && b.HTTPTransport != HTTPTransportStreamable && b.HTTPTransport != HTTPTransportSSE {
			problems = append(problems, fmt.Sprintf("httpTransport must be %q or %q", HTTPTransportStreamable, HTTPTransportSSE))
		}
	case gateway.TransportInProcess:
		if b.InProcessHandle() == "" {
			problems = append(problems, "handle is required for in-process backends")
		}
	case "":
		problems = append(problems, "transport is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q (supported: %s, %s, %s)", b.Transport,
			gateway.TransportSpawnProcess, gateway.TransportRemoteHTTP, gateway.TransportInProcess))
	}

	for _, name := range slices.Sorted(maps.Keys(b.Env)) {
		if err := validation.ValidateEnvName(name); err != nil {
			problems = append(problems, "env: "+err.Error())
		}
	}
	if b.HealthCheckIntervalSeconds != nil && *b.HealthCheckIntervalSeconds < 0 {
		problems = append(problems, "healthCheckIntervalSeconds must not be negative")
	}
	if b.ConnectTimeout < 0 {
		problems = append(problems, "connectTimeout must not be negative")
	}
	if b.RequestTimeout < 0 {
		problems = append(problems, "requestTimeout must not be negative")
	}
	return problems
}

func urlProblems(raw string) []string {
	if raw == "" {
		return []string{"url is required for http backends"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{fmt.Sprintf("url is invalid: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{"url scheme must be http or https"}
	}
	if u.Host == "" {
		return []string{"url must include a host"}
	}
	return nil
}

func (*Validator) authProblems(a *AuthConfig) []string {
	var problems []string

	for _, alg := range a.JWTAlgorithms {
		if jwt.GetSigningMethod(alg) == nil || alg == "none" {
			problems = append(problems, fmt.Sprintf("auth.jwtAlgorithms: unsupported algorithm %q", alg))
		}
	}
	if a.JWTJWKSURL != "" {
		for _, p := range urlProblems(a.JWTJWKSURL) {
			problems = append(problems, "auth.jwtJwksUrl: "+p)
		}
	}
	for token, st := range a.StaticTokens {
		if token == "" {
			problems = append(problems, "auth.staticTokens: empty token")
		}
		if st.ClientID == "" {
			problems = append(problems, "auth.staticTokens: clientId is required for every token")
		}
		for _, scope := range st.Scopes {
			if err := validation.ValidateScope(scope); err != nil {
				problems = append(problems, fmt.Sprintf("auth.staticTokens[%s]: %v", st.ClientID, err))
			}
		}
	}
	for _, scope := range a.RequiredScopes {
		if err := validation.ValidateScope(scope); err != nil {
			problems = append(problems, "auth.requiredScopes: "+err.Error())
		}
	}
	for _, tool := range slices.Sorted(maps.Keys(a.ToolScopes)) {
		for _, scope := range a.ToolScopes[tool] {
			if err := validation.ValidateScope(scope); err != nil {
				problems = append(problems, fmt.Sprintf("auth.toolScopes[%s]: %v", tool, err))
			}
		}
	}
	if a.Enabled && !a.UsesJWT() && len(a.StaticTokens) == 0 {
		problems = append(problems, "auth is enabled but neither a JWT key source nor static tokens are configured")
	}
	return problems
}
