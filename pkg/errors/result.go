// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolResult converts err into an MCP error result.
//
// Backend tool failures pass the backend's own result through untouched.
// Every other failure is rendered as a JSON envelope.
func ToolResult(err error) *mcp.CallToolResult {
	var toolErr *ToolInvocationError
	if errors.As(err, &toolErr) && toolErr.Result != nil {
		return toolErr.Result
	}

	data, marshalErr := json.Marshal(map[string]Envelope{"error": ToEnvelope(err)})
	if marshalErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}
