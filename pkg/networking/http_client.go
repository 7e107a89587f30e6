// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking holds the HTTP and socket helpers shared by the gateway's
// outbound clients and CLI.
package networking

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
)

// userAgentTransport stamps every request with a fixed User-Agent.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

// RoundTrip sets the User-Agent header unless the caller already did.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	newReq := req.Clone(req.Context())
	newReq.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(newReq)
}

// HttpClientBuilder provides a fluent interface for building HTTP clients
type HttpClientBuilder struct {
	clientTimeout time.Duration
	userAgent     string
}

// NewHttpClientBuilder returns a new HttpClientBuilder. Clients it builds have
// no overall timeout unless WithTimeout is set; requests are bounded by their
// context so tool calls and event streams can stay open.
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{}
}

// WithTimeout bounds every request end to end, body included.
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	b.clientTimeout = d
	return b
}

// WithUserAgent sets the User-Agent sent on every request.
func (b *HttpClientBuilder) WithUserAgent(ua string) *HttpClientBuilder {
	b.userAgent = ua
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() *http.Client {
	var rt http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}
	if b.userAgent != "" {
		rt = &userAgentTransport{base: rt, userAgent: b.userAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   b.clientTimeout,
	}
}
