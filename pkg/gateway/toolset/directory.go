// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolset

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
)

// Directory maps in-process handles to providers.
// It replaces looking a server object up by name inside a loaded module.
type Directory struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{providers: make(map[string]Provider)}
}

// Register adds p under handle.
func (d *Directory) Register(handle string, p Provider) error {
	if handle == "" {
		return fmt.Errorf("%w: handle is required", gwerrors.ErrInvalidInput)
	}
	if p == nil {
		return fmt.Errorf("%w: provider for %s is nil", gwerrors.ErrInvalidInput, handle)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.providers[handle]; exists {
		return fmt.Errorf("%w: handle %s already registered", gwerrors.ErrInvalidInput, handle)
	}
	d.providers[handle] = p
	return nil
}

// Lookup returns the provider registered under handle.
func (d *Directory) Lookup(handle string) (Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[handle]
	if !ok {
		return nil, fmt.Errorf("%w: no in-process tool set registered as %q", gwerrors.ErrNotFound, handle)
	}
	return p, nil
}

// Names returns the registered handles, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.providers))
}

// ExposedName is the name a backend tool is published under.
func ExposedName(backend *config.Backend, separator, tool string) string {
	if !backend.NamespacesTools() {
		return tool
	}
	return backend.Name + separator + tool
}

// DeclaredScopes collects the scopes declared by the tool sets behind the
// in-process backends, keyed by exposed tool name. Backends whose handle is
// not in the directory are skipped; connecting them reports the problem.
func DeclaredScopes(d *Directory, backends []config.Backend, separator string) map[string][]string {
	out := make(map[string][]string)
	for i := range backends {
		b := &backends[i]
		if b.Transport != gateway.TransportInProcess {
			continue
		}
		p, err := d.Lookup(b.InProcessHandle())
		if err != nil {
			continue
		}
		for _, t := range p.Catalog() {
			if len(t.Scopes) == 0 {
				continue
			}
			name := ExposedName(b, separator, t.Name)
			out[name] = append(out[name], t.Scopes...)
		}
	}
	return out
}
