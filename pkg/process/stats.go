// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a resource snapshot of one process.
type Stats struct {
	PID        int     `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	NumThreads int32   `json:"numThreads"`
	CPUPercent float64 `json:"cpuPercent"`
	// Running is false for zombies and processes that have exited.
	Running bool `json:"running"`
}

// GetStats samples memory, thread and CPU usage of pid.
func GetStats(ctx context.Context, pid int) (*Stats, error) {
	running, err := FindProcess(ctx, pid)
	if err != nil {
		return nil, err
	}
	stats := &Stats{PID: pid, Running: running}
	if !running {
		return stats, nil
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid)) // #nosec G115
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.NumThreads = threads
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}
