// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolset

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
)

func echoHandler(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	id, _ := args["compartment_id"].(string)
	return mcp.NewToolResultText("vcns in " + id), nil
}

func newInventorySet(t *testing.T) *Set {
	t.Helper()
	s := New("inventory")
	require.NoError(t, s.Add(Tool{
		Name:        "list_vcns",
		Description: "List VCNs in a compartment",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"compartment_id": map[string]any{"type": "string", "minLength": 1},
			},
			"required": []any{"compartment_id"},
		},
		Scopes:  []string{"inventory:read"},
		Handler: echoHandler,
	}))
	require.NoError(t, s.Add(Tool{Name: "ping", Handler: func(context.Context, map[string]any) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	}}))
	return s
}

func TestSet_Add(t *testing.T) {
	t.Parallel()

	s := newInventorySet(t)

	tests := []struct {
		name string
		tool Tool
	}{
		{name: "empty name", tool: Tool{Handler: echoHandler}},
		{name: "no handler", tool: Tool{Name: "x"}},
		{name: "duplicate", tool: Tool{Name: "ping", Handler: echoHandler}},
		{name: "bad schema", tool: Tool{Name: "y", Handler: echoHandler, InputSchema: map[string]any{"type": 12}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, s.Add(tt.tool))
		})
	}
}

func TestSet_Catalog(t *testing.T) {
	t.Parallel()

	s := newInventorySet(t)
	catalog := s.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "list_vcns", catalog[0].Name)
	assert.Equal(t, "ping", catalog[1].Name)

	tool, err := catalog[1].MCPTool()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.RawInputSchema))
}

func TestSet_Call(t *testing.T) {
	t.Parallel()

	s := newInventorySet(t)
	ctx := context.Background()

	result, err := s.Call(ctx, "list_vcns", map[string]any{"compartment_id": "ocid1.compartment"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "vcns in ocid1.compartment", text.Text)

	result, err = s.Call(ctx, "list_vcns", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text, ok = mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Contains(t, text.Text, "compartment_id")

	result, err = s.Call(ctx, "ping", nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	_, err = s.Call(ctx, "missing", nil)
	assert.ErrorIs(t, err, gwerrors.ErrNotFound)
}

func TestDirectory(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	require.NoError(t, d.Register("inventory", newInventorySet(t)))
	require.NoError(t, d.Register("audit", New("audit")))
	assert.Error(t, d.Register("inventory", New("again")))
	assert.Error(t, d.Register("", New("x")))
	assert.Error(t, d.Register("nil", nil))

	assert.Equal(t, []string{"audit", "inventory"}, d.Names())

	p, err := d.Lookup("inventory")
	require.NoError(t, err)
	assert.Len(t, p.Catalog(), 2)

	_, err = d.Lookup("nope")
	assert.ErrorIs(t, err, gwerrors.ErrNotFound)
}

func TestDeclaredScopes(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	require.NoError(t, d.Register("inventory", newInventorySet(t)))

	off := false
	backends := []config.Backend{
		{Name: "inventory", Transport: "in-process", Handle: "inventory"},
		{Name: "flat", Transport: "in-process", Module: "inventory", NamespaceTools: &off},
		{Name: "ghost", Transport: "in-process", Handle: "missing"},
		{Name: "cost", Transport: "http", URL: "http://localhost:1"},
	}

	assert.Equal(t, map[string][]string{
		"inventory_list_vcns": {"inventory:read"},
		"list_vcns":           {"inventory:read"},
	}, DeclaredScopes(d, backends, "_"))
}

func TestExposedName(t *testing.T) {
	t.Parallel()

	off := false
	assert.Equal(t, "cost__summary", ExposedName(&config.Backend{Name: "cost"}, "__", "summary"))
	assert.Equal(t, "summary", ExposedName(&config.Backend{Name: "cost", NamespaceTools: &off}, "_", "summary"))
}
