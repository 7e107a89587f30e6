// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/networking"
)

// httpConnector dials remote MCP endpoints.
type httpConnector struct {
	opts options
}

// bearerRoundTripper adds the backend's bearer token to every request.
type bearerRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+rt.token)
	return rt.base.RoundTrip(req)
}

// clientFor returns an HTTP client that authenticates as backend.
func (h *httpConnector) clientFor(backend *config.Backend) *http.Client {
	if backend.BearerToken == "" {
		return h.opts.httpClient
	}
	base := h.opts.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *h.opts.httpClient
	c.Transport = &bearerRoundTripper{base: base, token: backend.BearerToken}
	return &c
}

func validateURL(backend *config.Backend) error {
	if backend.URL == "" {
		return errors.New("url is required for http transport")
	}
	u, err := url.Parse(backend.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http or https URL", backend.URL)
	}
	return nil
}

func (h *httpConnector) Open(ctx context.Context, backend *config.Backend) (Connection, error) {
	if err := validateURL(backend); err != nil {
		return nil, gwerrors.NewConfigError(backend.Name, err)
	}

	httpClient := h.clientFor(backend)

	var (
		c   *client.Client
		err error
	)
	switch backend.HTTPTransport {
	case "", config.HTTPTransportStreamable:
		c, err = client.NewStreamableHttpClient(
			backend.URL,
			transport.WithHTTPTimeout(backend.RequestTimeoutOrDefault()),
			transport.WithHTTPBasicClient(httpClient),
		)
	case config.HTTPTransportSSE:
		c, err = client.NewSSEMCPClient(
			backend.URL,
			transport.WithHTTPClient(httpClient),
		)
	default:
		return nil, gwerrors.NewConfigError(backend.Name,
			fmt.Errorf("unsupported http transport %q (supported: streamable-http, sse)", backend.HTTPTransport))
	}
	if err != nil {
		return nil, gwerrors.NewConfigError(backend.Name, fmt.Errorf("failed to create client: %w", err))
	}

	conn, err := startSession(ctx, backend.Name, c, h.opts.clientInfo)
	if err != nil {
		return nil, gwerrors.NewConnectError(backend.Name, err)
	}
	return conn, nil
}

// Probe issues a GET against the backend URL. Any 2xx, 405 or 406 means the
// endpoint exists and answered; MCP endpoints commonly reject plain GETs.
func (h *httpConnector) Probe(ctx context.Context, backend *config.Backend, _ Connection) error {
	ctx, cancel := context.WithTimeout(ctx, h.opts.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := h.clientFor(backend).Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()
	// drain a little so the connection can be reused, but never block on an event stream
	_, _ = io.CopyN(io.Discard, resp.Body, 512)

	if ProbeStatusHealthy(resp.StatusCode) {
		return nil
	}
	return networking.NewHTTPError(resp.StatusCode, backend.URL, "probe rejected")
}

// ProbeStatusHealthy reports whether an HTTP probe status counts as healthy.
func ProbeStatusHealthy(code int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	return code == http.StatusMethodNotAllowed || code == http.StatusNotAcceptable
}
