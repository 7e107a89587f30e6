// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/server"
	"github.com/adibirzu/mcp-oci-gateway/pkg/logger"
)

// newHealthCmd creates the health command, which connects every backend once
// and reports the result
func newHealthCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Connect every backend once and print its health",
		Long: `Connect every enabled backend once, print the resulting health table and
disconnect again. The command exits non-zero when no backend can serve.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
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

			g.registry.ConnectAll(ctx)
			summary := g.registry.HealthSnapshot()

			if jsonOutput {
				data, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode health: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else if err := server.RenderBackendTable(cmd.OutOrStdout(), summary); err != nil {
				return err
			}

			if summary.Total > 0 && summary.Status == gateway.OverallUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output health as JSON")
	return cmd
}
