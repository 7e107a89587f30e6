// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/toolset/builtin"
	"github.com/adibirzu/mcp-oci-gateway/pkg/networking"
)

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the gateway configuration file without starting anything.

This command checks:
- YAML/JSON syntax validity and unknown fields
- Required fields for every backend transport
- Authentication settings
- In-process backends reference a tool set compiled into this binary`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			return describeConfig(cmd.OutOrStdout(), path, cfg)
		},
	}
}

// describeConfig prints a short summary and fails on in-process handles that
// this binary cannot serve.
func describeConfig(w io.Writer, path string, cfg *config.Config) error {
	directory := toolset.NewDirectory()
	if err := builtin.Register(directory, nil); err != nil {
		return err
	}
	known := directory.Names()

	for _, b := range cfg.Backends {
		if b.Transport != gateway.TransportInProcess || !b.IsEnabled() {
			continue
		}
		if handle := b.InProcessHandle(); !slices.Contains(known, handle) {
			return fmt.Errorf("backend %s: in-process tool set %q is not available (known: %v)", b.Name, handle, known)
		}
	}

	enabled := 0
	for _, b := range cfg.Backends {
		if b.IsEnabled() {
			enabled++
		}
	}

	authMode := "disabled"
	switch {
	case cfg.Auth.Enabled && cfg.Auth.UsesJWT():
		authMode = "jwt"
	case cfg.Auth.Enabled:
		authMode = "static tokens"
	}

	if _, err := fmt.Fprintf(w, `✓ Configuration is valid: %s
  Name: %s
  Listen: %s:%d%s
  Backends: %d (%d enabled)
  Authentication: %s
`, path, cfg.Name, cfg.Host, cfg.Port, cfg.EndpointPath, len(cfg.Backends), enabled, authMode); err != nil {
		return err
	}

	if cfg.Port != 0 && !networking.IsAvailable(cfg.Host, cfg.Port) {
		_, err := fmt.Fprintf(w, "⚠ Port %d on %s is already in use; serve will fail to bind\n", cfg.Port, cfg.Host)
		return err
	}
	return nil
}
