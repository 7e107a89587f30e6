// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/audit"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/auth"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/dispatcher"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/registry"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/server"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset/builtin"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/transport"
	"github.com/adibirzu/mcp-oci-gateway/pkg/logger"
	"github.com/adibirzu/mcp-oci-gateway/pkg/networking"
	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry"
	"github.com/adibirzu/mcp-oci-gateway/pkg/versions"
)

const jwksFetchTimeout = 30 * time.Second

// instance is one fully wired gateway.
type instance struct {
	config     *config.Config
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	audit      *audit.Log
	server     *server.Server
	telemetry  *telemetry.Provider
}

// newGateway builds every component from cfg and registers the backends.
// Nothing is connected yet.
func newGateway(ctx context.Context, cfg *config.Config) (_ *instance, retErr error) {
	version := versions.GetVersionInfo().Version
	backendClient := networking.NewHttpClientBuilder().WithUserAgent(versions.UserAgent()).Build()
	jwksClient := networking.NewHttpClientBuilder().
		WithUserAgent(versions.UserAgent()).
		WithTimeout(jwksFetchTimeout).
		Build()

	directory := toolset.NewDirectory()
	if err := builtin.Register(directory, nil); err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.FromGatewayConfig(cfg.Name, cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	g := &instance{config: cfg, telemetry: tp}
	defer func() {
		if retErr != nil {
			_ = g.Close(context.WithoutCancel(ctx))
		}
	}()

	metrics, err := telemetry.NewMetrics(tp.TracerProvider(), tp.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := newAuditStore(ctx, cfg.Audit)
	if err != nil {
		return nil, err
	}
	g.audit = audit.NewLog(store, audit.WithLogger(logger.Get()))

	// the server subscribes to status changes, so the listener resolves it lazily
	var srv *server.Server
	g.registry = registry.New(
		transport.NewConnector(directory,
			transport.WithClientInfo(cfg.Name, version),
			transport.WithHTTPClient(backendClient),
		),
		registry.WithNamespaceSeparator(cfg.NamespaceSeparator),
		registry.WithStatusListener(func(change registry.StatusChange) {
			srv.HandleStatusChange(change)
		}),
	)

	for _, b := range cfg.Backends {
		if err := g.registry.Register(ctx, b); err != nil {
			return nil, fmt.Errorf("failed to register backend %s: %w", b.Name, err)
		}
	}

	provider, err := auth.NewProvider(ctx, cfg.Auth,
		auth.WithHTTPClient(jwksClient),
		auth.WithToolScopes(toolset.DeclaredScopes(directory, cfg.Backends, g.registry.Separator())))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}
	if !provider.Enabled() {
		logger.Warn("Authentication is disabled; every caller is anonymous")
	}

	g.dispatcher = dispatcher.New(g.registry, provider, g.audit,
		dispatcher.WithMetrics(metrics),
		dispatcher.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	)

	srv = server.New(server.Config{
		Name:           cfg.Name,
		Version:        version,
		Host:           cfg.Host,
		Port:           cfg.Port,
		EndpointPath:   cfg.EndpointPath,
		MetricsHandler: tp.PrometheusHandler(),
	}, g.registry, g.dispatcher, g.audit, server.WithMetrics(metrics))
	g.server = srv

	if err := metrics.ObserveBackends(g.backendCounts); err != nil {
		return nil, err
	}
	return g, nil
}

func newAuditStore(ctx context.Context, cfg config.AuditConfig) (audit.Store, error) {
	if cfg.Redis == nil {
		return audit.NewRingBuffer(cfg.Capacity), nil
	}
	store, err := audit.NewRedisStore(ctx, cfg.Redis, cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis audit store: %w", err)
	}
	logger.Infof("Audit events stored in Redis at %s", cfg.Redis.Addr)
	return store, nil
}

func (g *instance) backendCounts() map[string]int64 {
	summary := g.registry.HealthSnapshot()
	counts := make(map[string]int64, 6)
	for _, b := range summary.Backends {
		counts[string(b.Health.Status)]++
	}
	return counts
}

// connect connects every enabled backend and logs the outcome.
func (g *instance) connect(ctx context.Context) {
	results := g.registry.ConnectAll(ctx)
	for _, name := range g.registry.Names() {
		if results[name] {
			logger.Infow("Backend connected", "backend", name)
		} else {
			logger.Warnw("Backend not connected", "backend", name)
		}
	}
	logger.Infof("Gateway health: %s", g.registry.HealthSnapshot())
}

// Close disconnects every backend and flushes telemetry.
func (g *instance) Close(ctx context.Context) error {
	var errs []error
	if g.registry != nil {
		if err := g.registry.DisconnectAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect backends: %w", err))
		}
	}
	if g.audit != nil {
		if err := g.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit log: %w", err))
		}
	}
	if g.telemetry != nil {
		if err := g.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
