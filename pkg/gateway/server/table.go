// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway"
)

var backendTableHeader = []string{"Name", "Transport", "Status", "Tools", "Failures", "Latency", "Last Check", "Error"}

// RenderBackendTable writes the summary line and one row per backend to w.
func RenderBackendTable(w io.Writer, summary gateway.HealthSummary) error {
	if summary.Total == 0 {
		_, err := fmt.Fprintln(w, "No backends registered.")
		return err
	}

	if _, err := fmt.Fprintf(w, "Gateway status: %s (%d/%d healthy, %d degraded, %d unhealthy)\n",
		summary.Status, summary.Healthy, summary.Total, summary.Degraded, summary.Unhealthy); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(backendTableHeader),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(backendTableHeader), tw.AlignLeft)),
	)

	for _, b := range summary.Backends {
		if err := table.Append([]string{
			b.Name,
			string(b.Transport),
			string(b.Health.Status),
			strconv.Itoa(b.Health.ToolCount),
			strconv.Itoa(b.Health.ConsecutiveFailures),
			fmt.Sprintf("%dms", b.Health.LatencyMs),
			formatCheck(b.Health.LastCheckedAt),
			b.Health.LastError,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

func formatCheck(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
