// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/transport"
)

// Route is where a namespaced tool call goes.
type Route struct {
	Backend config.Backend
	// Tool is the backend's own name for the tool.
	Tool string
	// ExposedName is the name the caller used.
	ExposedName string
	Conn        transport.Connection
}

// NamespacedTool is a backend tool as published by the gateway.
type NamespacedTool struct {
	Backend string
	// Tool carries the exposed name; OriginalName is the backend's name.
	Tool         mcp.Tool
	OriginalName string
}

func (e *entry) snapshot() gateway.BackendSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for _, t := range e.tools {
		names = append(names, t.Name)
	}
	return gateway.BackendSnapshot{
		Name:           e.backend.Name,
		Description:    e.backend.Description,
		Transport:      e.backend.Transport,
		AuthMethod:     e.backend.AuthMethod,
		NamespaceTools: e.backend.NamespacesTools(),
		ToolNames:      names,
		Health:         e.health,
	}
}

// Snapshot returns the state of every backend, sorted by name.
func (r *Registry) Snapshot() []gateway.BackendSnapshot {
	entries := r.sortedEntries()
	out := make([]gateway.BackendSnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

// HealthSnapshot summarizes every backend. It never waits on a probe.
func (r *Registry) HealthSnapshot() gateway.HealthSummary {
	return gateway.Summarize(r.Snapshot(), r.now())
}

// AvailableBackends returns the backends that may serve requests: those
// that are Healthy or Degraded.
func (r *Registry) AvailableBackends() []gateway.BackendSnapshot {
	all := r.Snapshot()
	return slices.DeleteFunc(all, func(b gateway.BackendSnapshot) bool {
		return !b.Health.Status.Available()
	})
}

// route builds a Route if e is serving and exposes tool.
func (e *entry) route(tool, exposed string) (*Route, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.health.Status.Available() || e.conn == nil {
		return nil, &gwerrors.BackendUnavailableError{
			Backend: e.backend.Name,
			Status:  string(e.health.Status),
			Tool:    exposed,
		}
	}
	if !slices.ContainsFunc(e.tools, func(t mcp.Tool) bool { return t.Name == tool }) {
		return nil, fmt.Errorf("%w: backend %s has no tool %q", gwerrors.ErrNotFound, e.backend.Name, tool)
	}
	return &Route{Backend: e.backend, Tool: tool, ExposedName: exposed, Conn: e.conn}, nil
}

func (e *entry) hasTool(tool string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.ContainsFunc(e.tools, func(t mcp.Tool) bool { return t.Name == tool })
}

// Resolve maps an exposed tool name to a serving backend.
//
// The name is split on the first separator; a namespaced backend with that
// prefix owns the call. Otherwise the name is looked up among backends that
// publish their tools without a prefix. Unknown and non-serving backends
// yield a BackendUnavailableError.
func (r *Registry) Resolve(exposed string) (*Route, error) {
	if prefix, tool, ok := strings.Cut(exposed, r.separator); ok && prefix != "" && tool != "" {
		r.mu.RLock()
		e, found := r.entries[prefix]
		r.mu.RUnlock()
		if found && e.backend.NamespacesTools() {
			return e.route(tool, exposed)
		}
	}

	var unavailable error
	for _, e := range r.sortedEntries() {
		if e.backend.NamespacesTools() || !e.hasTool(exposed) {
			continue
		}
		route, err := e.route(exposed, exposed)
		if err == nil {
			return route, nil
		}
		if unavailable == nil {
			unavailable = err
		}
	}
	if unavailable != nil {
		return nil, unavailable
	}

	if prefix, _, ok := strings.Cut(exposed, r.separator); ok && prefix != "" {
		return nil, &gwerrors.BackendUnavailableError{Backend: prefix, Tool: exposed}
	}
	return nil, &gwerrors.BackendUnavailableError{Tool: exposed}
}

// Catalog returns the tools of every serving backend under their exposed
// names, sorted. When two flat backends publish the same name, the backend
// that sorts first wins.
func (r *Registry) Catalog() []NamespacedTool {
	var out []NamespacedTool
	seen := make(map[string]string)

	for _, e := range r.sortedEntries() {
		e.mu.RLock()
		available := e.health.Status.Available()
		tools := slices.Clone(e.tools)
		e.mu.RUnlock()
		if !available {
			continue
		}

		for _, t := range tools {
			exposed := t.Name
			if e.backend.NamespacesTools() {
				exposed = e.backend.Name + r.separator + t.Name
			}
			if owner, dup := seen[exposed]; dup {
				slog.Warn("Tool name collision, keeping first backend",
					"tool", exposed, "kept", owner, "dropped", e.backend.Name)
				continue
			}
			seen[exposed] = e.backend.Name

			published := t
			published.Name = exposed
			out = append(out, NamespacedTool{Backend: e.backend.Name, Tool: published, OriginalName: t.Name})
		}
	}

	slices.SortFunc(out, func(a, b NamespacedTool) int { return strings.Compare(a.Tool.Name, b.Tool.Name) })
	return out
}
