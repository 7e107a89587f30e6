// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpConnection is a Connection over an initialized mcp-go client.
type mcpConnection struct {
	backend string
	client  *client.Client
	tools   []mcp.Tool

	// cancel ends the context the client was started with.
	cancel context.CancelFunc
	// onClose runs after the client is closed, e.g. to reap a child process.
	onClose func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// startSession starts c on a context that outlives ctx, runs the initialize
// handshake and lists tools. The returned connection owns c.
func startSession(ctx context.Context, backend string, c *client.Client, info mcp.Implementation) (*mcpConnection, error) {
	// SSE and streamable-http clients keep listening on the start context,
	// so it must live as long as the connection, not the connect timeout.
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	conn := &mcpConnection{backend: backend, client: c, cancel: cancel}

	if err := c.Start(lifetime); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      info,
		},
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	conn.tools = result.Tools
	return conn, nil
}

func (c *mcpConnection) Tools() []mcp.Tool {
	return slices.Clone(c.tools)
}

func (c *mcpConnection) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("backend %s: connection is closed", c.backend)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.client.CallTool(ctx, req)
}

func (c *mcpConnection) Alive() bool {
	return !c.closed.Load()
}

func (c *mcpConnection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.client.Close()
		c.cancel()
		if c.onClose != nil {
			if err := c.onClose(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}
