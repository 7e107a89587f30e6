// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/env/mocks"
	"github.com/stacklok/toolhive-core/logging"
)

func TestUnstructuredLogsWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"unset", "", true},
		{"true", "true", true},
		{"false", "false", false},
		{"garbage", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(UnstructuredLogsEnv).Return(tt.envValue)

			assert.Equal(t, tt.expected, unstructuredLogsWithEnv(mockEnv))
		})
	}
}

func useLoggerForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	prevDefault := slog.Default()
	singleton.Store(l)
	t.Cleanup(func() {
		singleton.Store(prev)
		slog.SetDefault(prevDefault)
	})
}

func TestLogFunctions(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debugf", func() { Debugf("probe %s", "ok") }, "probe ok"},
		{"Debugw", func() { Debugw("probe kv", "backend", "inventory") }, "inventory"},
		{"Infof", func() { Infof("connected %d", 2) }, "connected 2"},
		{"Infow", func() { Infow("connected", "backend", "cost") }, "cost"},
		{"Warnf", func() { Warnf("degraded %s", "cost") }, "degraded cost"},
		{"Warnw", func() { Warnw("degraded", "failures", 2) }, "failures"},
		{"Errorf", func() { Errorf("failed %s", "open") }, "failed open"},
		{"Errorw", func() { Errorw("failed", "error", "refused") }, "refused"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			useLoggerForTest(t, logging.New(
				logging.WithOutput(&buf),
				logging.WithLevel(slog.LevelDebug),
			))

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestSetAndGet(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	useLoggerForTest(t, logging.New())

	Set(logging.New(logging.WithOutput(&buf)))
	Get().Info("after set")

	assert.Contains(t, buf.String(), "after set")
}

func TestInitializeWithEnv(t *testing.T) { //nolint:paralleltest // mutates singleton
	for _, value := range []string{"", "true", "false"} {
		t.Run("UNSTRUCTURED_LOGS="+value, func(t *testing.T) {
			useLoggerForTest(t, Get())

			ctrl := gomock.NewController(t)
			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(UnstructuredLogsEnv).Return(value)

			InitializeWithEnv(mockEnv)

			require.NotNil(t, Get())
			assert.Same(t, Get(), slog.Default())
		})
	}
}
