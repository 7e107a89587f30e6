// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/audit"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/auth"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/dispatcher"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/registry"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/server"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/transport"
)

type fakeBackends struct {
	mu      sync.Mutex
	catalog []registry.NamespacedTool
	summary gateway.HealthSummary
}

func (f *fakeBackends) Catalog() []registry.NamespacedTool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalog
}

func (f *fakeBackends) HealthSnapshot() gateway.HealthSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary
}

func (f *fakeBackends) setCatalog(tools ...registry.NamespacedTool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = tools
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []dispatcher.Request
	result   *mcp.CallToolResult
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatcher.Request) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeDispatcher) seen() []dispatcher.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatcher.Request(nil), f.requests...)
}

func backendTool(backend, exposed, original string) registry.NamespacedTool {
	return registry.NamespacedTool{
		Backend:      backend,
		Tool:         mcp.NewTool(exposed, mcp.WithDescription("test tool")),
		OriginalName: original,
	}
}

func degradedSummary() gateway.HealthSummary {
	checked := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backends := []gateway.BackendSnapshot{
		{
			Name:       "cost",
			Transport:  gateway.TransportRemoteHTTP,
			AuthMethod: "bearer",
			Health: gateway.BackendHealth{
				Status:              gateway.StatusUnhealthy,
				LastCheckedAt:       checked,
				ConsecutiveFailures: 3,
				LastError:           "connection refused",
			},
		},
		{
			Name:      "inventory",
			Transport: gateway.TransportInProcess,
			ToolNames: []string{"list_vcns"},
			Health: gateway.BackendHealth{
				Status:    gateway.StatusHealthy,
				ToolCount: 1,
				LatencyMs: 4,
			},
		},
	}
	return gateway.Summarize(backends, checked)
}

func newInProcessClient(t *testing.T, srv *server.Server) *client.Client {
	t.Helper()
	ctx := context.Background()

	c, err := client.NewInProcessClient(srv.MCPServer())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	initialize(t, c)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func initialize(t *testing.T, c *client.Client) {
	t.Helper()
	_, err := c.Initialize(context.Background(), mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      mcp.Implementation{Name: "server-test", Version: "1.0.0"},
		},
	})
	require.NoError(t, err)
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	return result
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func listToolNames(t *testing.T, c *client.Client) []string {
	t.Helper()
	result, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestIntrospectionToolsAlwaysPublished(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Config{}, &fakeBackends{}, &fakeDispatcher{}, audit.NewRingBuffer(10))
	c := newInProcessClient(t, srv)

	assert.ElementsMatch(t, []string{
		server.HealthToolName,
		server.ListBackendsToolName,
		server.AuditLogToolName,
	}, listToolNames(t, c))
}

func TestHealthTool(t *testing.T) {
	t.Parallel()

	backends := &fakeBackends{summary: degradedSummary()}
	srv := server.New(server.Config{}, backends, &fakeDispatcher{}, audit.NewRingBuffer(10))
	c := newInProcessClient(t, srv)

	result := callTool(t, c, server.HealthToolName, nil)
	require.False(t, result.IsError)
	body := textOf(t, result)

	assert.Equal(t, "degraded", gjson.Get(body, "status").String())
	assert.Equal(t, int64(2), gjson.Get(body, "total").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "healthy").Int())

	cost := gjson.Get(body, `backends.#(name=="cost")`)
	require.True(t, cost.Exists())
	assert.Equal(t, "unhealthy", cost.Get("status").String())
	assert.Equal(t, "http", cost.Get("transport").String())
	assert.Equal(t, "bearer", cost.Get("authMethod").String())
	assert.Equal(t, int64(3), cost.Get("consecutiveFailures").Int())
	assert.Equal(t, "connection refused", cost.Get("error").String())
	assert.Equal(t, "2025-06-01T12:00:00Z", cost.Get("lastCheck").String())

	inventory := gjson.Get(body, `backends.#(name=="inventory")`)
	assert.Equal(t, "healthy", inventory.Get("status").String())
	assert.Equal(t, int64(1), inventory.Get("toolCount").Int())
	assert.Equal(t, int64(4), inventory.Get("latencyMs").Int())
	assert.Equal(t, gjson.Null, inventory.Get("lastCheck").Type)
	assert.False(t, inventory.Get("error").Exists())
}

func TestListBackendsTool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		summary  gateway.HealthSummary
		contains []string
	}{
		{
			name:     "no backends",
			summary:  gateway.Summarize(nil, time.Now()),
			contains: []string{"No backends registered."},
		},
		{
			name:    "mixed health",
			summary: degradedSummary(),
			contains: []string{
				"Gateway status: degraded (1/2 healthy, 0 degraded, 1 unhealthy)",
				"inventory", "in-process", "healthy",
				"cost", "unhealthy", "connection refused", "never",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := server.New(server.Config{}, &fakeBackends{summary: tt.summary}, &fakeDispatcher{}, audit.NewRingBuffer(10))
			c := newInProcessClient(t, srv)

			body := textOf(t, callTool(t, c, server.ListBackendsToolName, nil))
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestAuditLogTool(t *testing.T) {
	t.Parallel()

	ring := audit.NewRingBuffer(100)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range 30 {
		e := audit.NewEvent(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("tool-%02d", i), "ops", "inventory", audit.StatusSuccess)
		require.NoError(t, ring.Append(context.Background(), e))
	}

	srv := server.New(server.Config{}, &fakeBackends{}, &fakeDispatcher{}, ring)
	c := newInProcessClient(t, srv)

	tests := []struct {
		name   string
		args   map[string]any
		count  int64
		oldest string
	}{
		{name: "default limit", args: nil, count: server.DefaultAuditLimit, oldest: "tool-10"},
		{name: "explicit limit", args: map[string]any{"limit": 5}, count: 5, oldest: "tool-25"},
		{name: "limit larger than log", args: map[string]any{"limit": 500}, count: 30, oldest: "tool-00"},
		{name: "non-positive limit", args: map[string]any{"limit": 0}, count: server.DefaultAuditLimit, oldest: "tool-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := textOf(t, callTool(t, c, server.AuditLogToolName, tt.args))
			assert.Equal(t, tt.count, gjson.Get(body, "count").Int())
			assert.Equal(t, tt.count, gjson.Get(body, "events.#").Int())
			assert.Equal(t, "tool-29", gjson.Get(body, "events.0.tool").String())
			assert.Equal(t, tt.oldest, gjson.Get(body, fmt.Sprintf("events.%d.tool", tt.count-1)).String())
		})
	}
}

func TestAuditLogTool_EmptyLog(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Config{}, &fakeBackends{}, &fakeDispatcher{}, audit.NewRingBuffer(10))
	c := newInProcessClient(t, srv)

	body := textOf(t, callTool(t, c, server.AuditLogToolName, nil))
	assert.Equal(t, int64(0), gjson.Get(body, "count").Int())
	assert.True(t, gjson.Get(body, "events").IsArray())
}

func TestSyncTools_FollowsAvailability(t *testing.T) {
	t.Parallel()

	backends := &fakeBackends{}
	srv := server.New(server.Config{}, backends, &fakeDispatcher{}, audit.NewRingBuffer(10))
	assert.NotContains(t, srv.PublishedTools(), "inventory_list_vcns")

	backends.setCatalog(backendTool("inventory", "inventory_list_vcns", "list_vcns"))
	srv.HandleStatusChange(registry.StatusChange{
		Backend: "inventory", From: gateway.StatusConnecting, To: gateway.StatusHealthy,
	})
	assert.Contains(t, srv.PublishedTools(), "inventory_list_vcns")

	// healthy to degraded keeps the backend serving, so nothing is republished
	backends.setCatalog()
	srv.HandleStatusChange(registry.StatusChange{
		Backend: "inventory", From: gateway.StatusHealthy, To: gateway.StatusDegraded,
	})
	assert.Contains(t, srv.PublishedTools(), "inventory_list_vcns")

	srv.HandleStatusChange(registry.StatusChange{
		Backend: "inventory", From: gateway.StatusDegraded, To: gateway.StatusUnhealthy,
	})
	assert.NotContains(t, srv.PublishedTools(), "inventory_list_vcns")
	assert.Len(t, srv.PublishedTools(), 3)
}

func TestSyncTools_GatewayToolsCannotBeShadowed(t *testing.T) {
	t.Parallel()

	backends := &fakeBackends{}
	backends.setCatalog(
		backendTool("flat", server.HealthToolName, server.HealthToolName),
		backendTool("flat", "describe", "describe"),
	)
	d := &fakeDispatcher{result: mcp.NewToolResultText("from backend")}
	srv := server.New(server.Config{}, backends, d, audit.NewRingBuffer(10))
	c := newInProcessClient(t, srv)

	names := listToolNames(t, c)
	assert.Len(t, names, 4)
	assert.Contains(t, names, "describe")

	body := textOf(t, callTool(t, c, server.HealthToolName, nil))
	assert.True(t, gjson.Get(body, "status").Exists())
	assert.Empty(t, d.seen(), "gateway tools must never be routed")
}

func TestHandleStatusChange_NilServer(t *testing.T) {
	t.Parallel()

	var srv *server.Server
	assert.NotPanics(t, func() {
		srv.HandleStatusChange(registry.StatusChange{Backend: "x", To: gateway.StatusHealthy})
	})
}

func TestRoutedTool_OverHTTP(t *testing.T) {
	t.Parallel()

	backends := &fakeBackends{}
	backends.setCatalog(backendTool("inventory", "inventory_list_vcns", "list_vcns"))

	tests := []struct {
		name         string
		result       *mcp.CallToolResult
		err          error
		wantError    bool
		wantText     string
		wantCategory string
	}{
		{
			name:     "success passes the backend result through",
			result:   mcp.NewToolResultText(`[{"name":"vcn-a"}]`),
			wantText: `[{"name":"vcn-a"}]`,
		},
		{
			name:         "gateway failure becomes an error envelope",
			err:          &gwerrors.BackendUnavailableError{Backend: "inventory", Tool: "inventory_list_vcns", Status: string(gateway.StatusUnhealthy)},
			wantError:    true,
			wantCategory: gwerrors.CategoryBackendUnavailable,
		},
		{
			name:         "authentication failure",
			err:          gwerrors.NewAuthenticationError("token expired", errors.New("exp")),
			wantError:    true,
			wantCategory: gwerrors.CategoryAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDispatcher{result: tt.result, err: tt.err}
			srv := server.New(server.Config{Name: "test-gateway", Version: "1.0.0"}, backends, d, audit.NewRingBuffer(10))
			ts := httptest.NewServer(srv.Handler())
			t.Cleanup(ts.Close)

			c, err := client.NewStreamableHttpClient(ts.URL+server.DefaultEndpointPath,
				mcptransport.WithHTTPHeaders(map[string]string{"Authorization": "Bearer ops-token"}),
			)
			require.NoError(t, err)
			require.NoError(t, c.Start(context.Background()))
			t.Cleanup(func() { _ = c.Close() })
			initialize(t, c)

			result := callTool(t, c, "inventory_list_vcns", map[string]any{"compartment": "prod"})
			assert.Equal(t, tt.wantError, result.IsError)
			body := textOf(t, result)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, body)
			}
			if tt.wantCategory != "" {
				assert.Equal(t, tt.wantCategory, gjson.Get(body, "error.category").String())
			}

			seen := d.seen()
			require.Len(t, seen, 1)
			assert.Equal(t, "inventory_list_vcns", seen[0].Tool)
			assert.Equal(t, "Bearer ops-token", seen[0].Authorization)
			assert.Equal(t, map[string]any{"compartment": "prod"}, seen[0].Arguments)
		})
	}
}

func TestUnpublishedTool_IsRouted(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{err: &gwerrors.BackendUnavailableError{Backend: "cost", Tool: "cost_get_summary"}}
	srv := server.New(server.Config{}, &fakeBackends{}, d, audit.NewRingBuffer(10))
	c := newInProcessClient(t, srv)

	result := callTool(t, c, "cost_get_summary", map[string]any{"days": 7})
	require.True(t, result.IsError)
	assert.Equal(t, gwerrors.CategoryBackendUnavailable, gjson.Get(textOf(t, result), "error.category").String())

	seen := d.seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "cost_get_summary", seen[0].Tool)
	assert.Equal(t, map[string]any{"days": float64(7)}, seen[0].Arguments)

	assert.ElementsMatch(t, srv.PublishedTools(), listToolNames(t, c))
}

// TestFrontDoor_InventoryAndRefusedCost serves a real registry holding one
// in-process backend and one backend that refuses connections.
func TestFrontDoor_InventoryAndRefusedCost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inventory := toolset.New("inventory").MustAdd(toolset.Tool{
		Name:        "list_vcns",
		Description: "List virtual cloud networks",
		Handler: func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(`[{"name":"vcn-a"}]`), nil
		},
	})
	directory := toolset.NewDirectory()
	require.NoError(t, directory.Register("inventory", inventory))

	refused := httptest.NewServer(http.NotFoundHandler())
	refusedURL := refused.URL
	refused.Close()

	noHealthChecks := 0
	reg := registry.New(transport.NewConnector(directory))
	require.NoError(t, reg.Register(ctx, config.Backend{
		Name: "inventory", Transport: gateway.TransportInProcess, Handle: "inventory",
		HealthCheckIntervalSeconds: &noHealthChecks,
	}))
	require.NoError(t, reg.Register(ctx, config.Backend{
		Name: "cost", Transport: gateway.TransportRemoteHTTP, URL: refusedURL + "/mcp",
		HealthCheckIntervalSeconds: &noHealthChecks,
	}))
	t.Cleanup(func() { _ = reg.DisconnectAll(context.Background()) })
	assert.Equal(t, map[string]bool{"inventory": true, "cost": false}, reg.ConnectAll(ctx))

	provider, err := auth.NewProvider(ctx, config.AuthConfig{})
	require.NoError(t, err)
	ring := audit.NewRingBuffer(100)
	srv := server.New(server.Config{}, reg, dispatcher.New(reg, provider, audit.NewLog(ring)), ring)
	c := newInProcessClient(t, srv)

	names := listToolNames(t, c)
	assert.Contains(t, names, "inventory_list_vcns")
	assert.NotContains(t, names, "cost_get_summary")

	ok := callTool(t, c, "inventory_list_vcns", nil)
	require.False(t, ok.IsError)
	assert.Equal(t, `[{"name":"vcn-a"}]`, textOf(t, ok))

	failed := callTool(t, c, "cost_get_summary", nil)
	require.True(t, failed.IsError)
	body := textOf(t, failed)
	assert.Equal(t, gwerrors.CategoryBackendUnavailable, gjson.Get(body, "error.category").String())
	assert.Contains(t, gjson.Get(body, "error.message").String(), "cost")

	events := ring.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "inventory_list_vcns", events[0].Tool)
	assert.Equal(t, audit.StatusSuccess, events[0].Status)
	assert.Equal(t, "cost_get_summary", events[1].Tool)
	assert.Equal(t, "cost", events[1].Backend)
	assert.Equal(t, audit.StatusError, events[1].Status)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	unhealthy := gateway.Summarize([]gateway.BackendSnapshot{
		{Name: "cost", Health: gateway.BackendHealth{Status: gateway.StatusUnhealthy}},
	}, time.Now())

	tests := []struct {
		name     string
		summary  gateway.HealthSummary
		wantCode int
		status   string
	}{
		{name: "no backends", summary: gateway.Summarize(nil, time.Now()), wantCode: http.StatusOK, status: "healthy"},
		{name: "degraded", summary: degradedSummary(), wantCode: http.StatusOK, status: "degraded"},
		{name: "unhealthy", summary: unhealthy, wantCode: http.StatusServiceUnavailable, status: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := server.New(server.Config{}, &fakeBackends{summary: tt.summary}, &fakeDispatcher{}, audit.NewRingBuffer(10))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.status, gjson.Get(rec.Body.String(), "status").String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "mcp_gateway_tool_calls_total 1\n")
	})

	withMetrics := server.New(server.Config{MetricsHandler: metrics}, &fakeBackends{}, &fakeDispatcher{}, audit.NewRingBuffer(1))
	rec := httptest.NewRecorder()
	withMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mcp_gateway_tool_calls_total")

	without := server.New(server.Config{}, &fakeBackends{}, &fakeDispatcher{}, audit.NewRingBuffer(1))
	rec = httptest.NewRecorder()
	without.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Config{Host: "127.0.0.1", Port: 0}, &fakeBackends{summary: gateway.Summarize(nil, time.Now())},
		&fakeDispatcher{}, audit.NewRingBuffer(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	resp, err := http.Get("http://" + srv.Address() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
