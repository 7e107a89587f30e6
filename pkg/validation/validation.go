// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package validation provides functions for validating input data.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/http/httpguts"
)

// ValidateHTTPHeaderValue validates that a string is a valid HTTP header value per RFC 7230.
// It checks for CRLF injection and control characters.
func ValidateHTTPHeaderValue(value string) error {
	if value == "" {
		return errors.New("header value cannot be empty")
	}

	// Length limit to prevent DoS (common HTTP server limit)
	if len(value) > 8192 {
		return errors.New("header value exceeds maximum length of 8192 bytes")
	}

	if !httpguts.ValidHeaderFieldValue(value) {
		return errors.New("invalid HTTP header value: contains control characters")
	}

	return nil
}

// ValidateEnvName checks that name can be passed to a child process as an
// environment variable.
func ValidateEnvName(name string) error {
	if name == "" {
		return errors.New("environment variable name cannot be empty")
	}
	if strings.ContainsAny(name, "=\x00") {
		return fmt.Errorf("environment variable name %q cannot contain '=' or null bytes", name)
	}
	return nil
}

// ValidateScope checks that scope is a single non-empty OAuth scope token.
func ValidateScope(scope string) error {
	if scope == "" {
		return errors.New("scope cannot be empty")
	}
	for _, r := range scope {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '"' || r == '\\' {
			return fmt.Errorf("scope %q contains an invalid character", scope)
		}
	}
	return nil
}
