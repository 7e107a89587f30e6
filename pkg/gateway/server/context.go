// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
)

type authorizationKey struct{}

// withAuthorization stores the raw Authorization header of the HTTP request
// that carried the MCP message.
func withAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, authorizationKey{}, header)
}

func authorizationFrom(ctx context.Context) string {
	header, _ := ctx.Value(authorizationKey{}).(string)
	return header
}

func toolError(err error) *mcp.CallToolResult {
	return gwerrors.ToolResult(err)
}
