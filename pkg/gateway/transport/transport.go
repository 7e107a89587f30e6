// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport opens and probes backend connections.
//
// Each transport kind has its own strategy: stdio spawns a child process and
// speaks MCP over its pipes, http dials a remote streamable-http or SSE
// endpoint, and in-process binds to a tool set from a toolset.Directory.
// All three run the MCP initialize handshake and list tools on open.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks -source=transport.go Connection,Connector

// Connection is an open backend connection.
type Connection interface {
	// Tools returns the tools the backend listed when the connection opened.
	Tools() []mcp.Tool
	// CallTool forwards a tool call using the backend's original tool name.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	// Alive reports whether the handle is still usable.
	Alive() bool
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Connector opens and probes connections for backend descriptors.
type Connector interface {
	Open(ctx context.Context, backend *config.Backend) (Connection, error)
	// Probe returns nil when the backend behind conn is healthy.
	Probe(ctx context.Context, backend *config.Backend, conn Connection) error
}

const defaultProbeTimeout = 5 * time.Second

type options struct {
	httpClient   *http.Client
	clientInfo   mcp.Implementation
	environ      func() []string
	probeTimeout time.Duration
	killGrace    time.Duration
}

// Option configures the connector returned by NewConnector.
type Option func(*options)

// WithHTTPClient sets the base HTTP client for remote backends and probes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClientInfo sets the implementation info sent in the initialize request.
func WithClientInfo(name, version string) Option {
	return func(o *options) { o.clientInfo = mcp.Implementation{Name: name, Version: version} }
}

// WithEnviron overrides the base environment handed to spawned processes.
func WithEnviron(environ func() []string) Option {
	return func(o *options) { o.environ = environ }
}

// WithProbeTimeout bounds a single HTTP probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(o *options) { o.probeTimeout = d }
}

// NewConnector returns a Connector that picks a strategy by transport kind.
// directory resolves in-process handles and may be nil when no backend uses
// the in-process transport.
func NewConnector(directory *toolset.Directory, opts ...Option) Connector {
	o := options{
		httpClient:   &http.Client{},
		clientInfo:   mcp.Implementation{Name: "mcp-gateway", Version: "dev"},
		environ:      os.Environ,
		probeTimeout: defaultProbeTimeout,
		killGrace:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &connector{
		strategies: map[gateway.TransportKind]Connector{
			gateway.TransportSpawnProcess: &spawnConnector{opts: o},
			gateway.TransportRemoteHTTP:   &httpConnector{opts: o},
			gateway.TransportInProcess:    &inProcessConnector{opts: o, directory: directory},
		},
	}
}

type connector struct {
	strategies map[gateway.TransportKind]Connector
}

func (c *connector) strategy(backend *config.Backend) (Connector, error) {
	s, ok := c.strategies[backend.Transport]
	if !ok {
		return nil, gwerrors.NewConfigError(backend.Name,
			fmt.Errorf("unsupported transport %q", backend.Transport))
	}
	return s, nil
}

// Open implements Connector.
func (c *connector) Open(ctx context.Context, backend *config.Backend) (Connection, error) {
	s, err := c.strategy(backend)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, backend.ConnectTimeoutOrDefault())
	defer cancel()
	return s.Open(ctx, backend)
}

// Probe implements Connector.
func (c *connector) Probe(ctx context.Context, backend *config.Backend, conn Connection) error {
	if conn == nil || !conn.Alive() {
		return fmt.Errorf("backend %s: connection handle is closed", backend.Name)
	}
	s, err := c.strategy(backend)
	if err != nil {
		return err
	}
	return s.Probe(ctx, backend, conn)
}
