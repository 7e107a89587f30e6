// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package process

import (
	"context"
	"fmt"
	"os"
	"time"
)

// KillProcess terminates a process. Windows has no SIGTERM, so grace is ignored.
func KillProcess(_ context.Context, pid int, _ time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	// os.Process.Kill calls TerminateProcess with exit code 1
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("failed to terminate process: %w", err)
	}
	return nil
}
