// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adibirzu/mcp-oci-gateway/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// newServeCmd creates the serve command for starting the gateway
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway",
		Long: `Start the MCP gateway.

The gateway reads the configuration file given by --config (or the default
XDG location), connects every enabled backend and serves MCP streamable HTTP
until it receives SIGINT or SIGTERM. Backends that fail to connect are
quarantined and do not prevent startup.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Infof("Loaded configuration from %s (%d backends)", path, len(cfg.Backends))

	g, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := g.Close(closeCtx); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	g.connect(ctx)

	if err := g.server.Start(ctx); err != nil {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}
