// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toolset is the explicit tool registry for in-process backends.
//
// An in-process backend is any value implementing Provider. Tool sets are
// built at startup by calling Add for every tool and then registered in a
// Directory under a handle, which backend descriptors reference by name.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
)

// Handler executes one tool call. Arguments have already been validated
// against the tool's input schema.
type Handler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Tool describes one in-process tool.
type Tool struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema object. An empty schema accepts any object.
	InputSchema map[string]any
	// Scopes are required in addition to the gateway's global scopes.
	Scopes  []string
	Handler Handler
}

// MCPTool converts the tool to its wire form.
func (t Tool) MCPTool() (mcp.Tool, error) {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to marshal schema for tool %s: %w", t.Name, err)
	}
	return mcp.Tool{
		Name:           t.Name,
		Description:    t.Description,
		RawInputSchema: raw,
	}, nil
}

// Provider is implemented by every in-process backend.
type Provider interface {
	// Catalog lists the tools the provider serves, in a stable order.
	Catalog() []Tool
	// Call invokes the named tool.
	Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Set is a Provider backed by a static table of tools.
type Set struct {
	name string

	mu    sync.RWMutex
	order []string
	tools map[string]entry
}

// New returns an empty tool set.
func New(name string) *Set {
	return &Set{name: name, tools: make(map[string]entry)}
}

// Name returns the set's name.
func (s *Set) Name() string {
	return s.name
}

// Add registers a tool. Names must be non-empty and unique within the set.
func (s *Set) Add(t Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tool name is required", gwerrors.ErrInvalidInput)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: tool %s has no handler", gwerrors.ErrInvalidInput, t.Name)
	}

	var schema *gojsonschema.Schema
	if len(t.InputSchema) > 0 {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for tool %s: %w", t.Name, err)
		}
		schema = compiled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tools[t.Name]; exists {
		return fmt.Errorf("%w: tool %s already registered in %s", gwerrors.ErrInvalidInput, t.Name, s.name)
	}
	t.Scopes = slices.Clone(t.Scopes)
	s.tools[t.Name] = entry{tool: t, schema: schema}
	s.order = append(s.order, t.Name)
	return nil
}

// MustAdd is Add for static tool tables; it panics on error.
func (s *Set) MustAdd(tools ...Tool) *Set {
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			panic(err)
		}
	}
	return s
}

// Catalog returns the tools in registration order.
func (s *Set) Catalog() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].tool)
	}
	return out
}

// Call validates args and invokes the tool's handler.
func (s *Set) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	e, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tool %s in %s", gwerrors.ErrNotFound, name, s.name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if e.schema != nil {
		if err := validateArgs(e.schema, args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
		}
	}

	return e.tool.Handler(ctx, args)
}

func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%w: %s", gwerrors.ErrInvalidInput, strings.Join(problems, "; "))
}
