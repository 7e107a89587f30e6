// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
)

// inProcessConnector serves a registered tool set through an in-memory MCP
// server so in-process backends go through the same client path as remote ones.
type inProcessConnector struct {
	opts      options
	directory *toolset.Directory
}

// NewToolSetServer exposes provider as an MCP server.
func NewToolSetServer(name, version string, provider toolset.Provider) (*server.MCPServer, error) {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	for _, t := range provider.Catalog() {
		tool, err := t.MCPTool()
		if err != nil {
			return nil, err
		}
		toolName := t.Name
		srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, err := provider.Call(ctx, toolName, req.GetArguments())
			if err != nil {
				// a Go error here is the tool's failure, not the transport's
				return mcp.NewToolResultError(err.Error()), nil
			}
			return result, nil
		})
	}
	return srv, nil
}

func (p *inProcessConnector) Open(ctx context.Context, backend *config.Backend) (Connection, error) {
	handle := backend.InProcessHandle()
	if handle == "" {
		return nil, gwerrors.NewConfigError(backend.Name, errors.New("handle is required for in-process transport"))
	}
	if p.directory == nil {
		return nil, gwerrors.NewConnectError(backend.Name, errors.New("no in-process tool sets are registered"))
	}

	provider, err := p.directory.Lookup(handle)
	if err != nil {
		return nil, gwerrors.NewConnectError(backend.Name, err)
	}

	srv, err := NewToolSetServer(handle, p.opts.clientInfo.Version, provider)
	if err != nil {
		return nil, gwerrors.NewConfigError(backend.Name, err)
	}

	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, gwerrors.NewConnectError(backend.Name, err)
	}

	conn, err := startSession(ctx, backend.Name, c, p.opts.clientInfo)
	if err != nil {
		return nil, gwerrors.NewConnectError(backend.Name, err)
	}
	return conn, nil
}

// Probe succeeds while the handle is open; the connector checks that before
// dispatching here.
func (*inProcessConnector) Probe(context.Context, *config.Backend, Connection) error {
	return nil
}
