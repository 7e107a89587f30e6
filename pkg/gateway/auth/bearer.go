// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"strings"
)

// Common errors
var (
	ErrNoToken           = errors.New("no bearer token provided")
	ErrMalformedHeader   = errors.New("authorization header must use the Bearer scheme")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrUnknownToken      = errors.New("token is neither a known static token nor a verifiable JWT")
	ErrNoVerificationKey = errors.New("no key available to verify token")
)

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token from an Authorization header value.
// An empty header yields ErrNoToken.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerPrefix)) {
		return "", ErrNoToken
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMalformedHeader
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
