// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package builtin provides the tool sets compiled into the gateway binary.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
	"github.com/adibirzu/mcp-oci-gateway/pkg/process"
	"github.com/adibirzu/mcp-oci-gateway/pkg/versions"
)

// SystemHandle is the in-process handle of the system tool set.
const SystemHandle = "system"

// System returns a small diagnostic tool set, mostly useful to check that
// in-process routing works end to end.
func System(now func() time.Time) *toolset.Set {
	if now == nil {
		now = time.Now
	}
	return toolset.New(SystemHandle).MustAdd(
		toolset.Tool{
			Name:        "echo",
			Description: "Return the given message unchanged",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string", "description": "Text to echo"},
				},
				"required":             []any{"message"},
				"additionalProperties": false,
			},
			Handler: func(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
				msg, _ := args["message"].(string)
				return mcp.NewToolResultText(msg), nil
			},
		},
		toolset.Tool{
			Name:        "server_time",
			Description: "Report the gateway's current time in UTC",
			Handler: func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText(now().UTC().Format(time.RFC3339)), nil
			},
		},
		toolset.Tool{
			Name:        "process_stats",
			Description: "Report memory, thread and CPU usage of the gateway process",
			Scopes:      []string{"gateway:admin"},
			Handler: func(ctx context.Context, _ map[string]any) (*mcp.CallToolResult, error) {
				stats, err := process.GetStats(ctx, os.Getpid())
				if err != nil {
					return nil, err
				}
				data, err := json.Marshal(struct {
					*process.Stats
					Version string `json:"version"`
				}{stats, versions.GetVersionInfo().Version})
				if err != nil {
					return nil, fmt.Errorf("failed to encode stats: %w", err)
				}
				return mcp.NewToolResultText(string(data)), nil
			},
		},
	)
}

// Register adds every built-in tool set to d.
func Register(d *toolset.Directory, now func() time.Time) error {
	if err := d.Register(SystemHandle, System(now)); err != nil {
		return fmt.Errorf("failed to register %s tool set: %w", SystemHandle, err)
	}
	return nil
}
