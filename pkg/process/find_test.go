// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProcess(t *testing.T) {
	t.Parallel()

	alive, err := FindProcess(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.True(t, alive)

	alive, err = FindProcess(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, alive)

	alive, err = FindProcess(context.Background(), -5)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	stats, err := GetStats(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.True(t, stats.Running)
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Positive(t, stats.RSSBytes)

	stats, err = GetStats(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, stats.Running)
	assert.Zero(t, stats.RSSBytes)
}
