// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth authenticates gateway callers and authorizes them per tool.
//
// Two independent, ordered checks turn a bearer token into an Identity:
// an exact-match static token table, then signed JWT verification. A
// development deployment can run on static tokens alone; production adds a
// key source through configuration only.
package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
)

const staticIssuer = "static"

// Provider authenticates credentials and authorizes identities.
// It holds only immutable configuration and is safe for concurrent use.
type Provider struct {
	enabled        bool
	static         map[string]*Identity
	requiredScopes []string
	toolScopes     map[string][]string

	keys       *keyResolver
	parserOpts []jwt.ParserOption

	now func() time.Time
}

// Option configures a Provider.
type Option func(*providerOptions)

type providerOptions struct {
	now        func() time.Time
	httpClient *http.Client
	toolScopes map[string][]string
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *providerOptions) { o.now = now }
}

// WithHTTPClient sets the client used to fetch a remote JWKS.
func WithHTTPClient(c *http.Client) Option {
	return func(o *providerOptions) { o.httpClient = c }
}

// WithToolScopes adds per-tool scope requirements on top of the configured
// ones, such as the scopes in-process tool sets declare for their tools.
func WithToolScopes(scopes map[string][]string) Option {
	return func(o *providerOptions) { o.toolScopes = scopes }
}

// NewProvider builds a provider from cfg. Key material is loaded eagerly so a
// bad key file fails startup; a remote JWKS is registered on first use.
func NewProvider(ctx context.Context, cfg config.AuthConfig, opts ...Option) (*Provider, error) {
	o := providerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Provider{
		enabled:        cfg.Enabled,
		static:         make(map[string]*Identity, len(cfg.StaticTokens)),
		requiredScopes: normalizeScopes(cfg.RequiredScopes),
		toolScopes:     make(map[string][]string, len(cfg.ToolScopes)+len(o.toolScopes)),
		now:            o.now,
	}

	for token, st := range cfg.StaticTokens {
		p.static[token] = &Identity{
			ClientID: st.ClientID,
			Subject:  st.ClientID,
			Issuer:   staticIssuer,
			Scopes:   normalizeScopes(st.Scopes),
		}
	}

	for tool, scopes := range o.toolScopes {
		p.toolScopes[tool] = normalizeScopes(scopes)
	}
	for tool, scopes := range cfg.ToolScopes {
		p.toolScopes[tool] = normalizeScopes(append(p.toolScopes[tool], scopes...))
	}

	if !cfg.Enabled || !cfg.UsesJWT() {
		return p, nil
	}

	keys, err := newKeyResolver(ctx, cfg.JWTPublicKeyFile, cfg.JWTJWKSURL, o.httpClient)
	if err != nil {
		return nil, err
	}
	p.keys = keys

	algorithms := cfg.JWTAlgorithms
	if len(algorithms) == 0 {
		algorithms = config.DefaultJWTAlgorithms
	}
	p.parserOpts = []jwt.ParserOption{
		jwt.WithValidMethods(algorithms),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if cfg.JWTIssuer != "" {
		p.parserOpts = append(p.parserOpts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		p.parserOpts = append(p.parserOpts, jwt.WithAudience(cfg.JWTAudience))
	}

	return p, nil
}

// Enabled reports whether authentication is enforced.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Authenticate validates token and returns the caller's identity.
//
// When authentication is disabled it returns a nil identity and a nil
// error; callers must treat nil as "no identity, allow all".
func (p *Provider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if !p.enabled {
		return nil, nil
	}
	if token == "" {
		return nil, gwerrors.NewAuthenticationError("missing bearer token", ErrNoToken)
	}

	if identity, ok := p.static[token]; ok {
		return cloneIdentity(identity), nil
	}

	if p.keys == nil {
		return nil, gwerrors.NewAuthenticationError("unrecognized token", ErrUnknownToken)
	}

	identity, err := p.verifyJWT(ctx, token)
	if err != nil {
		return nil, gwerrors.NewAuthenticationError(reasonFor(err), err)
	}
	return identity, nil
}

func (p *Provider) verifyJWT(ctx context.Context, token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, p.keys.keyFunc(ctx), p.parserOpts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claimsToIdentity(claims)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	default:
		return "invalid token"
	}
}

// claimsToIdentity maps JWT claims to an Identity. Scopes come from the
// space-delimited "scope" claim or the "scopes"/"scp" list claims.
func claimsToIdentity(claims jwt.MapClaims) (*Identity, error) {
	sub, _ := claims.GetSubject()
	iss, _ := claims.GetIssuer()

	identity := &Identity{
		ClientID: firstString(claims, "client_id", "azp"),
		Subject:  sub,
		Issuer:   iss,
	}
	if identity.ClientID == "" {
		identity.ClientID = sub
	}
	if identity.ClientID == "" {
		return nil, fmt.Errorf("%w: token has no sub, client_id or azp claim", ErrInvalidToken)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		identity.ExpiresAt = &t
	}

	var scopes []string
	if s, ok := claims["scope"].(string); ok {
		scopes = append(scopes, strings.Fields(s)...)
	}
	for _, key := range []string{"scopes", "scp"} {
		switch v := claims[key].(type) {
		case string:
			scopes = append(scopes, strings.Fields(v)...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					scopes = append(scopes, s)
				}
			}
		}
	}
	identity.Scopes = normalizeScopes(scopes)

	return identity, nil
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if s, ok := claims[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func cloneIdentity(i *Identity) *Identity {
	c := *i
	c.Scopes = append([]string(nil), i.Scopes...)
	return &c
}

// RequiredScopes returns the union of global and per-tool scopes for tool.
func (p *Provider) RequiredScopes(tool string) []string {
	required := append(append([]string(nil), p.requiredScopes...), p.toolScopes[tool]...)
	return normalizeScopes(required)
}

// ToolScopes returns a copy of the per-tool requirements.
func (p *Provider) ToolScopes() map[string][]string {
	return maps.Clone(p.toolScopes)
}

// AuthorizeTool checks identity against the scopes tool requires.
//
// It is a no-op when authentication is disabled or identity is nil. An
// expired identity fails with an AuthenticationError; missing scopes fail
// with an AuthorizationError listing exactly the scopes that are missing.
func (p *Provider) AuthorizeTool(identity *Identity, tool string) error {
	if !p.enabled || identity == nil {
		return nil
	}
	if identity.IsExpired(p.now()) {
		return gwerrors.NewAuthenticationError("credential expired", ErrTokenExpired)
	}

	missing := identity.MissingScopes(p.RequiredScopes(tool))
	if len(missing) > 0 {
		return &gwerrors.AuthorizationError{
			Tool:     tool,
			ClientID: identity.ClientID,
			Missing:  missing,
		}
	}
	return nil
}
