// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	err := NewHTTPError(503, "http://127.0.0.1:9000/mcp", "probe rejected")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, "probe rejected: HTTP 503 Service Unavailable from http://127.0.0.1:9000/mcp", err.Error())
	assert.True(t, httpErr.ServerSide())
	assert.False(t, (&HTTPError{StatusCode: 401}).ServerSide())
}

func TestIsHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   bool
	}{
		{
			name:       "matching status",
			err:        &HTTPError{StatusCode: 404, URL: "http://example.com"},
			statusCode: 404,
			expected:   true,
		},
		{
			name:       "different status",
			err:        &HTTPError{StatusCode: 404, URL: "http://example.com"},
			statusCode: 500,
		},
		{
			name:     "any status",
			err:      &HTTPError{StatusCode: 403, URL: "http://example.com"},
			expected: true,
		},
		{
			name:       "wrapped",
			err:        fmt.Errorf("backend cost: %w", &HTTPError{StatusCode: 500}),
			statusCode: 500,
			expected:   true,
		},
		{
			name:       "other error",
			err:        errors.New("connection refused"),
			statusCode: 404,
		},
		{
			name:       "nil",
			statusCode: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsHTTPError(tt.err, tt.statusCode))
		})
	}
}
