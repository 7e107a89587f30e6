// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adibirzu/mcp-oci-gateway/pkg/validation"
)

func TestValidateHTTPHeaderValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"bearer token", "Bearer abc.def.ghi", false},
		{"empty", "", true},
		{"crlf injection", "Bearer abc\r\nX-Admin: true", true},
		{"null byte", "abc\x00", true},
		{"too long", strings.Repeat("a", 8193), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validation.ValidateHTTPHeaderValue(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEnvName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{"plain", "OCI_CONFIG_FILE", false},
		{"lowercase", "http_proxy", false},
		{"empty", "", true},
		{"equals", "A=B", true},
		{"null byte", "A\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validation.ValidateEnvName(tt.env)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scope   string
		wantErr bool
	}{
		{"simple", "inventory:read", false},
		{"url style", "https://example.com/scopes/read", false},
		{"empty", "", true},
		{"space", "inventory read", true},
		{"quote", `inventory"read`, true},
		{"tab", "inventory\tread", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validation.ValidateScope(tt.scope)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
