// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcp-gateway command-line application.
package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/logger"
)

// EnvPrefix prefixes every environment variable that overrides a flag.
const EnvPrefix = "MCP_GATEWAY"

// defaultConfigRelPath is looked up under the XDG config directories.
const defaultConfigRelPath = "mcp-gateway/config.yaml"

// NewRootCmd creates a new root command for the mcp-gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "mcp-gateway",
		DisableAutoGenTag: true,
		Short:             "Aggregate MCP backends behind one authenticated endpoint",
		Long: `mcp-gateway aggregates several MCP (Model Context Protocol) backends into a single
endpoint. It provides:

- Namespaced tool routing to spawned, remote and in-process backends
- Bearer token authentication (JWT or static tokens) with per-tool scopes
- Periodic health probes with automatic quarantine of failing backends
- An audit trail of every tool call`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug mode")
	flags.StringP("config", "c", "", "Path to the gateway configuration file")
	flags.String("host", "", "Override the listen host from the configuration")
	flags.Int("port", 0, "Override the listen port from the configuration")

	for _, name := range []string{"debug", "config", "host", "port"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// resolveConfigPath returns the --config value, falling back to the first
// config.yaml found in the XDG config directories.
func resolveConfigPath() (string, error) {
	if path := viper.GetString("config"); path != "" {
		return path, nil
	}
	path, err := xdg.SearchConfigFile(defaultConfigRelPath)
	if err != nil {
		return "", fmt.Errorf("no configuration file specified, use --config or create %s",
			filepath.Join(xdg.ConfigHome, defaultConfigRelPath))
	}
	return path, nil
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig() (*config.Config, string, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.NewLoader(path, &env.OSReader{}).Load()
	if err != nil {
		return nil, path, fmt.Errorf("configuration loading failed: %w", err)
	}
	applyOverrides(cfg)

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, path, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, path, nil
}

// applyOverrides applies --host and --port (or their environment variables).
func applyOverrides(cfg *config.Config) {
	if host := viper.GetString("host"); host != "" {
		cfg.Host = host
	}
	if port := viper.GetInt("port"); port != 0 {
		cfg.Port = port
	}
}

var errUnhealthy = errors.New("no backend is serving")
