// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackendHealth_Transitions(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := BackendHealth{Status: StatusHealthy, LastHealthyAt: now}
	probeErr := errors.New("connection reset")

	h.RecordFailure(now.Add(time.Second), 5*time.Millisecond, probeErr)
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, 1, h.ConsecutiveFailures)
	assert.Equal(t, "connection reset", h.LastError)

	h.RecordFailure(now.Add(2*time.Second), 0, probeErr)
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, 2, h.ConsecutiveFailures)

	h.RecordFailure(now.Add(3*time.Second), 0, probeErr)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, 3, h.ConsecutiveFailures)

	h.RecordFailure(now.Add(4*time.Second), 0, probeErr)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, 4, h.ConsecutiveFailures)

	h.RecordSuccess(now.Add(5*time.Second), 12*time.Millisecond)
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Empty(t, h.LastError)
	assert.Equal(t, now.Add(5*time.Second), h.LastHealthyAt)
	assert.Equal(t, int64(12), h.LatencyMs)
}

func TestBackendHealth_FailureFromUnhealthyStaysUnhealthy(t *testing.T) {
	t.Parallel()

	h := BackendHealth{Status: StatusUnhealthy}
	h.RecordFailure(time.Now(), 0, errors.New("still down"))

	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, 1, h.ConsecutiveFailures)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	snap := func(status HealthStatus) BackendSnapshot {
		return BackendSnapshot{Health: BackendHealth{Status: status}}
	}

	tests := []struct {
		name     string
		backends []BackendSnapshot
		want     OverallStatus
	}{
		{"no backends", nil, OverallHealthy},
		{"all healthy", []BackendSnapshot{snap(StatusHealthy), snap(StatusHealthy)}, OverallHealthy},
		{"one unhealthy", []BackendSnapshot{snap(StatusHealthy), snap(StatusUnhealthy)}, OverallDegraded},
		{"only degraded", []BackendSnapshot{snap(StatusDegraded)}, OverallDegraded},
		{"nothing serving", []BackendSnapshot{snap(StatusUnhealthy), snap(StatusPending)}, OverallUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Summarize(tt.backends, time.Now())
			assert.Equal(t, tt.want, s.Status)
			assert.Equal(t, len(tt.backends), s.Total)
		})
	}
}

func TestHealthStatus_Available(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusHealthy.Available())
	assert.True(t, StatusDegraded.Available())
	for _, s := range []HealthStatus{StatusPending, StatusConnecting, StatusUnhealthy, StatusDisconnected} {
		assert.False(t, s.Available(), s)
	}
}
