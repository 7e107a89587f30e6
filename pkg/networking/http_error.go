// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is an unexpected HTTP status from an upstream endpoint.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message says what the request was for.
	Message string

	// URL is the requested URL.
	URL string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s from %s", e.Message, e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// ServerSide reports whether the upstream itself failed (5xx) rather than
// rejecting the request.
func (e *HTTPError) ServerSide() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// IsHTTPError reports whether err wraps an HTTPError with statusCode.
// If statusCode is 0, it matches any HTTPError.
func IsHTTPError(err error, statusCode int) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return statusCode == 0 || httpErr.StatusCode == statusCode
}
