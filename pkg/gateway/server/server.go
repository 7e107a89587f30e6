// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server is the gateway's front door.
//
// It publishes the namespaced tools of every serving backend next to the
// gateway's own introspection tools over MCP streamable HTTP, and serves
// plain health and metrics endpoints beside it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/audit"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/dispatcher"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/registry"
	"github.com/adibirzu/mcp-oci-gateway/pkg/logger"
	"github.com/adibirzu/mcp-oci-gateway/pkg/telemetry"
)

const (
	// defaultReadHeaderTimeout prevents slowloris attacks by limiting time to read request headers.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultIdleTimeout is the maximum amount of time to wait for the next request when keep-alive's are enabled.
	defaultIdleTimeout = 120 * time.Second

	// defaultShutdownTimeout is the maximum time to wait for graceful shutdown.
	defaultShutdownTimeout = 10 * time.Second

	// DefaultEndpointPath is where the MCP endpoint is mounted.
	DefaultEndpointPath = "/mcp"

	// unpublishedTool receives calls for names outside the published
	// catalog. It is registered but never listed.
	unpublishedTool = "gateway_unpublished"

	// requestedToolMeta carries the caller's tool name to unpublishedTool.
	requestedToolMeta = "io.mcp-gateway/requested-tool"
)

// Backends is the registry view the server reads.
type Backends interface {
	Catalog() []registry.NamespacedTool
	HealthSnapshot() gateway.HealthSummary
}

// Dispatcher runs routed tool calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) (*mcp.CallToolResult, error)
}

// AuditReader reads the most recent audit events, newest first.
type AuditReader interface {
	Tail(ctx context.Context, limit int) ([]audit.Event, error)
}

// Config holds the front-door settings.
type Config struct {
	Name         string
	Version      string
	Host         string
	Port         int
	EndpointPath string

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts backend health transitions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Server exposes the gateway over MCP.
type Server struct {
	config     Config
	backends   Backends
	dispatcher Dispatcher
	audit      AuditReader
	metrics    *telemetry.Metrics

	mcpServer *server.MCPServer
	handler   http.Handler

	// syncMu serializes catalog rebuilds.
	syncMu    sync.Mutex
	published []string
	// listed is read on every call, outside syncMu.
	listed atomic.Pointer[map[string]struct{}]

	listenerMu sync.RWMutex
	listener   net.Listener
	httpServer *http.Server

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Server and publishes the current catalog.
func New(cfg Config, backends Backends, d Dispatcher, auditReader AuditReader, opts ...Option) *Server {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = DefaultEndpointPath
	}
	if cfg.Name == "" {
		cfg.Name = "mcp-gateway"
	}

	s := &Server{
		config:     cfg,
		backends:   backends,
		dispatcher: d,
		audit:      auditReader,
		metrics:    telemetry.NoopMetrics(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(s.redirectUnpublished)

	s.mcpServer = server.NewMCPServer(cfg.Name, cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithToolFilter(hideUnpublished),
	)
	s.handler = s.routes()
	s.SyncTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	streamable := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(s.config.EndpointPath),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return withAuthorization(ctx, r.Header.Get("Authorization"))
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	if s.config.MetricsHandler != nil {
		r.Handle("/metrics", s.config.MetricsHandler)
	}
	r.Handle(s.config.EndpointPath, streamable)
	return r
}

// HandleStatusChange republishes the catalog after a backend transition.
// It is meant to be passed to registry.WithStatusListener.
func (s *Server) HandleStatusChange(change registry.StatusChange) {
	if s == nil {
		return
	}
	from := string(change.From)
	if from == "" {
		from = "none"
	}
	s.metrics.RecordTransition(context.Background(), change.Backend, from, string(change.To))

	// only transitions across the available boundary change the catalog
	if change.From.Available() != change.To.Available() {
		s.SyncTools()
	}
}

// SyncTools replaces the published tool list with the introspection tools
// plus the catalog of every serving backend.
func (s *Server) SyncTools() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	tools := s.introspectionTools()
	reserved := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		reserved[t.Tool.Name] = struct{}{}
	}

	for _, nt := range s.backends.Catalog() {
		if _, clash := reserved[nt.Tool.Name]; clash {
			logger.Warnw("backend tool shadows a gateway tool, skipping",
				"tool", nt.Tool.Name, "backend", nt.Backend)
			continue
		}
		tools = append(tools, server.ServerTool{
			Tool:    nt.Tool,
			Handler: s.routedHandler(nt.Tool.Name),
		})
	}

	names := make([]string, 0, len(tools))
	listed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		names = append(names, t.Tool.Name)
		listed[t.Tool.Name] = struct{}{}
	}
	s.listed.Store(&listed)
	tools = append(tools, server.ServerTool{
		Tool:    mcp.NewTool(unpublishedTool),
		Handler: s.unpublishedHandler,
	})
	s.mcpServer.SetTools(tools...)
	s.published = names
	logger.Debugw("published tool catalog", "tools", len(names))
}

// PublishedTools returns the names of the tools currently advertised.
func (s *Server) PublishedTools() []string {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return append([]string(nil), s.published...)
}

// routedHandler forwards a call for the exposed tool name to the dispatcher.
// Failures are rendered as MCP error results, never as protocol errors.
func (s *Server) routedHandler(exposed string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.dispatcher.Dispatch(ctx, dispatcher.Request{
			Tool:          exposed,
			Arguments:     req.GetArguments(),
			Authorization: authorizationFrom(ctx),
		})
		if err != nil {
			return toolError(err), nil
		}
		return result, nil
	}
}

// redirectUnpublished points a call for a name outside the published catalog
// at unpublishedTool so it still reaches the dispatcher. A backend that has
// never connected publishes nothing, yet its callers get a routed error
// result and an audit event rather than a protocol error.
func (s *Server) redirectUnpublished(_ context.Context, _ any, req *mcp.CallToolRequest) {
	if listed := s.listed.Load(); listed != nil {
		if _, ok := (*listed)[req.Params.Name]; ok {
			return
		}
	}
	if req.Params.Meta == nil {
		req.Params.Meta = &mcp.Meta{}
	}
	if req.Params.Meta.AdditionalFields == nil {
		req.Params.Meta.AdditionalFields = map[string]any{}
	}
	req.Params.Meta.AdditionalFields[requestedToolMeta] = req.Params.Name
	req.Params.Name = unpublishedTool
}

func (s *Server) unpublishedHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requested := unpublishedTool
	if req.Params.Meta != nil {
		if name, ok := req.Params.Meta.AdditionalFields[requestedToolMeta].(string); ok && name != "" {
			requested = name
		}
	}
	return s.routedHandler(requested)(ctx, req)
}

func hideUnpublished(_ context.Context, tools []mcp.Tool) []mcp.Tool {
	return slices.DeleteFunc(tools, func(t mcp.Tool) bool { return t.Name == unpublishedTool })
}

// handleHealth serves the health summary. It answers 503 when no backend can
// serve.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	summary := s.backends.HealthSnapshot()

	data, err := json.Marshal(newHealthReport(summary))
	if err != nil {
		logger.Errorf("Failed to encode health response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if summary.Status == gateway.OverallUnhealthy && summary.Total > 0 {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logger.Errorf("Failed to write health response: %v", err)
	}
}

// Start listens and serves until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.listenerMu.Unlock()

	logger.Infof("Starting MCP gateway at http://%s%s", listener.Addr(), s.config.EndpointPath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down gateway")
		return s.Stop(context.Background())
	case err := <-errCh:
		logger.Errorf("HTTP server error: %v", err)
		if stopErr := s.Stop(context.Background()); stopErr != nil {
			return fmt.Errorf("server error: %w; stop error: %v", err, stopErr)
		}
		return err
	}
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.listenerMu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.listenerMu.Unlock()

	if httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	logger.Info("MCP gateway stopped")
	return nil
}

// Ready is closed once the listener is serving.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Address returns the bound address, or the configured one before Start.
func (s *Server) Address() string {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
