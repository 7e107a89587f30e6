// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiter_EvictsRefilledClients(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newClientLimiter(1, 1)

	for i := range minSweepSize {
		require.True(t, c.allow(fmt.Sprintf("client-%d", i), start))
	}
	require.Equal(t, minSweepSize, c.size())
	assert.False(t, c.allow("client-0", start))

	// every bucket has refilled by now, so the next new client sweeps them all
	later := start.Add(10 * time.Second)
	require.True(t, c.allow("newcomer", later))
	assert.Equal(t, 1, c.size())
	assert.True(t, c.allow("client-0", later))
}

func TestClientLimiter_KeepsActiveClients(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newClientLimiter(0.001, 1)

	require.True(t, c.allow("busy", start))
	for i := range minSweepSize - 1 {
		require.True(t, c.allow(fmt.Sprintf("client-%d", i), start.Add(-time.Hour)))
	}
	require.Equal(t, minSweepSize, c.size())

	// the idle clients have refilled, the busy one has not
	now := start.Add(time.Second)
	require.True(t, c.allow("trigger", now))
	assert.Equal(t, 2, c.size())
	assert.False(t, c.allow("busy", now))
}
