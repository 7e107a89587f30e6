// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"dario.cat/mergo"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
)

const (
	defaultName                = "mcp-gateway"
	defaultHost                = "127.0.0.1"
	defaultPort                = 8090
	defaultEndpointPath        = "/mcp"
	defaultNamespaceSeparator  = "_"
	defaultAuditCapacity       = 1000
	defaultRedisAuditKey       = "mcp-gateway:audit"
	defaultHealthCheckInterval = 30 * time.Second
	defaultConnectTimeout      = 30 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultSamplingRate        = 0.1
)

// DefaultJWTAlgorithms is used when no algorithms are configured.
var DefaultJWTAlgorithms = []string{"RS256"}

// DefaultAuditCapacity is the audit ring size used when none is configured.
const DefaultAuditCapacity = defaultAuditCapacity

// DefaultNamespaceSeparator joins backend and tool names.
const DefaultNamespaceSeparator = defaultNamespaceSeparator

func defaultConfig() Config {
	return Config{
		Name:               defaultName,
		Host:               defaultHost,
		Port:               defaultPort,
		EndpointPath:       defaultEndpointPath,
		NamespaceSeparator: defaultNamespaceSeparator,
		Auth: AuthConfig{
			JWTAlgorithms: append([]string(nil), DefaultJWTAlgorithms...),
		},
		Audit: AuditConfig{Capacity: defaultAuditCapacity},
		Telemetry: TelemetryConfig{
			SamplingRate: defaultSamplingRate,
		},
	}
}

// defaultBackend leaves the *bool and *int fields nil: mergo dereferences
// pointers and would overwrite an explicit false or 0. Their accessors
// supply the defaults instead.
func defaultBackend(transport gateway.TransportKind) Backend {
	b := Backend{
		ConnectTimeout: Duration(defaultConnectTimeout),
		RequestTimeout: Duration(defaultRequestTimeout),
	}
	if transport == gateway.TransportRemoteHTTP {
		b.HTTPTransport = HTTPTransportStreamable
	}
	return b
}

// ApplyDefaults fills every unset field with its default while keeping the
// values the operator provided.
func (c *Config) ApplyDefaults() error {
	if c == nil {
		return nil
	}
	if err := mergo.Merge(c, defaultConfig()); err != nil {
		return err
	}
	if c.Audit.Redis != nil && c.Audit.Redis.Key == "" {
		c.Audit.Redis.Key = defaultRedisAuditKey
	}
	for i := range c.Backends {
		if err := c.Backends[i].ApplyDefaults(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDefaults fills unset descriptor fields.
func (b *Backend) ApplyDefaults() error {
	if b == nil {
		return nil
	}
	return mergo.Merge(b, defaultBackend(b.Transport))
}
