// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package process inspects and terminates child processes spawned for
// stdio backends.
package process

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
)

// FindProcess reports whether the process with pid is running.
// A zombie counts as not running: the child has exited and only waits to be reaped.
func FindProcess(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid)) // #nosec G115 -- pids fit in int32
	if err != nil {
		return false, fmt.Errorf("failed to check process %d: %w", pid, err)
	}
	if !exists {
		return false, nil
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid)) // #nosec G115
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}

	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		// status is not available on every platform; existence is enough there
		return true, nil
	}
	return !slices.Contains(status, process.Zombie), nil
}
