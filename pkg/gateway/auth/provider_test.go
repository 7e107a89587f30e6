// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
)

const (
	testKeyID    = "gateway-test-key"
	testIssuer   = "https://issuer.example.com"
	testAudience = "mcp-gateway"
)

type testKeys struct {
	private *rsa.PrivateKey
	pemPath string
	jwkSet  jwk.Set
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	pemPath := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(pemPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	key, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))

	return &testKeys{private: privateKey, pemPath: pemPath, jwkSet: set}
}

func (k *testKeys) sign(t *testing.T, claims jwt.MapClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(k.private)
	require.NoError(t, err)
	return signed
}

func (k *testKeys) writeJWKS(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(k.jwkSet)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func validClaims(extra jwt.MapClaims) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub": "user-1",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

func TestAuthenticate_Disabled(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled:        false,
		RequiredScopes: []string{"admin"},
		ToolScopes:     map[string][]string{"inventory_list_vcns": {"inventory:read"}},
	})
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "dev-token"} {
		identity, err := p.Authenticate(context.Background(), token)
		require.NoError(t, err)
		assert.Nil(t, identity)
	}

	assert.NoError(t, p.AuthorizeTool(nil, "inventory_list_vcns"))
	assert.NoError(t, p.AuthorizeTool(&Identity{ClientID: "x"}, "inventory_list_vcns"))
}

func TestAuthenticate_StaticTokens(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled: true,
		StaticTokens: map[string]config.StaticToken{
			"dev-token": {ClientID: "developer", Scopes: []string{"inventory:read", "cost:read", "inventory:read"}},
		},
	})
	require.NoError(t, err)

	identity, err := p.Authenticate(context.Background(), "dev-token")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "developer", identity.ClientID)
	assert.Equal(t, []string{"cost:read", "inventory:read"}, identity.Scopes)
	assert.Nil(t, identity.ExpiresAt)

	_, err = p.Authenticate(context.Background(), "")
	assert.True(t, gwerrors.IsAuthentication(err))
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = p.Authenticate(context.Background(), "not-a-known-token")
	assert.True(t, gwerrors.IsAuthentication(err))
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestAuthenticate_StaticTableCheckedBeforeJWT(t *testing.T) {
	t.Parallel()
	keys := newTestKeys(t)

	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled:          true,
		JWTPublicKeyFile: keys.pemPath,
		StaticTokens:     map[string]config.StaticToken{"literal": {ClientID: "ci"}},
	})
	require.NoError(t, err)

	identity, err := p.Authenticate(context.Background(), "literal")
	require.NoError(t, err)
	assert.Equal(t, "ci", identity.ClientID)
}

func TestAuthenticate_JWT(t *testing.T) {
	t.Parallel()
	keys := newTestKeys(t)
	other := newTestKeys(t)

	tests := []struct {
		name       string
		keyFile    func() string
		token      func() string
		wantErr    error
		wantReason string
		check      func(*testing.T, *Identity)
	}{
		{
			name:    "pem key with scope claim",
			keyFile: func() string { return keys.pemPath },
			token: func() string {
				return keys.sign(t, validClaims(jwt.MapClaims{"scope": "inventory:read cost:read"}), "")
			},
			check: func(t *testing.T, id *Identity) {
				t.Helper()
				assert.Equal(t, "user-1", id.ClientID)
				assert.Equal(t, testIssuer, id.Issuer)
				assert.Equal(t, []string{"cost:read", "inventory:read"}, id.Scopes)
				require.NotNil(t, id.ExpiresAt)
			},
		},
		{
			name:    "jwks file with scopes list and client_id",
			keyFile: func() string { return keys.writeJWKS(t) },
			token: func() string {
				return keys.sign(t, validClaims(jwt.MapClaims{
					"client_id": "svc-reporting",
					"scopes":    []any{"cost:read"},
				}), testKeyID)
			},
			check: func(t *testing.T, id *Identity) {
				t.Helper()
				assert.Equal(t, "svc-reporting", id.ClientID)
				assert.Equal(t, "user-1", id.Subject)
				assert.Equal(t, []string{"cost:read"}, id.Scopes)
			},
		},
		{
			name:       "expired",
			keyFile:    func() string { return keys.pemPath },
			token:      func() string { return keys.sign(t, validClaims(jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), "") },
			wantErr:    jwt.ErrTokenExpired,
			wantReason: "token expired",
		},
		{
			name:    "missing exp",
			keyFile: func() string { return keys.pemPath },
			token: func() string {
				claims := validClaims(nil)
				delete(claims, "exp")
				return keys.sign(t, claims, "")
			},
			wantErr: jwt.ErrTokenRequiredClaimMissing,
		},
		{
			name:       "wrong issuer",
			keyFile:    func() string { return keys.pemPath },
			token:      func() string { return keys.sign(t, validClaims(jwt.MapClaims{"iss": "https://evil.example.com"}), "") },
			wantErr:    jwt.ErrTokenInvalidIssuer,
			wantReason: "invalid issuer",
		},
		{
			name:       "wrong audience",
			keyFile:    func() string { return keys.pemPath },
			token:      func() string { return keys.sign(t, validClaims(jwt.MapClaims{"aud": "someone-else"}), "") },
			wantErr:    jwt.ErrTokenInvalidAudience,
			wantReason: "invalid audience",
		},
		{
			name:       "signed by another key",
			keyFile:    func() string { return keys.pemPath },
			token:      func() string { return other.sign(t, validClaims(nil), "") },
			wantErr:    jwt.ErrTokenSignatureInvalid,
			wantReason: "invalid signature",
		},
		{
			name:    "unknown kid",
			keyFile: func() string { return keys.writeJWKS(t) },
			token:   func() string { return keys.sign(t, validClaims(nil), "rotated-away") },
			wantErr: ErrNoVerificationKey,
		},
		{
			name:       "malformed",
			keyFile:    func() string { return keys.pemPath },
			token:      func() string { return "not.a.jwt" },
			wantErr:    jwt.ErrTokenMalformed,
			wantReason: "malformed token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := NewProvider(context.Background(), config.AuthConfig{
				Enabled:          true,
				JWTPublicKeyFile: tt.keyFile(),
				JWTIssuer:        testIssuer,
				JWTAudience:      testAudience,
				JWTAlgorithms:    []string{"RS256"},
			})
			require.NoError(t, err)

			identity, err := p.Authenticate(context.Background(), tt.token())
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var authnErr *gwerrors.AuthenticationError
				require.ErrorAs(t, err, &authnErr)
				if tt.wantReason != "" {
					assert.Equal(t, tt.wantReason, authnErr.Reason)
				}
				assert.Nil(t, identity)
				return
			}
			require.NoError(t, err)
			tt.check(t, identity)
		})
	}
}

func TestAuthenticate_RejectsDisallowedAlgorithm(t *testing.T) {
	t.Parallel()
	keys := newTestKeys(t)

	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled:          true,
		JWTPublicKeyFile: keys.pemPath,
		JWTAlgorithms:    []string{"ES256"},
	})
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), keys.sign(t, validClaims(nil), ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestAuthenticate_RemoteJWKS(t *testing.T) {
	t.Parallel()
	keys := newTestKeys(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keys.jwkSet)
	}))
	t.Cleanup(server.Close)

	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled:    true,
		JWTJWKSURL: server.URL,
		JWTIssuer:  testIssuer,
	}, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	identity, err := p.Authenticate(context.Background(), keys.sign(t, validClaims(jwt.MapClaims{"scope": "a b"}), testKeyID))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, identity.Scopes)
}

func TestNewProvider_BadKeyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.pem")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a key"), 0o600))

	_, err := NewProvider(context.Background(), config.AuthConfig{Enabled: true, JWTPublicKeyFile: path})
	require.Error(t, err)

	_, err = NewProvider(context.Background(), config.AuthConfig{Enabled: true, JWTPublicKeyFile: "/does/not/exist.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read JWT public key file")
}

func TestAuthorizeTool(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p, err := NewProvider(context.Background(), config.AuthConfig{
		Enabled:        true,
		StaticTokens:   map[string]config.StaticToken{"t": {ClientID: "c"}},
		RequiredScopes: []string{"gateway:use"},
		ToolScopes: map[string][]string{
			"inventory_list_vcns": {"inventory:read", "network:read"},
		},
	}, WithClock(func() time.Time { return now }), WithToolScopes(map[string][]string{
		"inventory_list_vcns": {"compartment:read"},
	}))
	require.NoError(t, err)

	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name        string
		identity    *Identity
		tool        string
		wantMissing []string
		wantAuthn   bool
	}{
		{
			name:     "nil identity is allowed",
			identity: nil,
			tool:     "inventory_list_vcns",
		},
		{
			name: "all scopes present",
			identity: &Identity{ClientID: "c", ExpiresAt: &future, Scopes: normalizeScopes([]string{
				"gateway:use", "inventory:read", "network:read", "compartment:read", "extra",
			})},
			tool: "inventory_list_vcns",
		},
		{
			name:        "only missing tool scopes are listed",
			identity:    &Identity{ClientID: "c", Scopes: []string{"gateway:use", "inventory:read"}},
			tool:        "inventory_list_vcns",
			wantMissing: []string{"compartment:read", "network:read"},
		},
		{
			name:        "global scope applies to every tool",
			identity:    &Identity{ClientID: "c"},
			tool:        "cost_get_summary",
			wantMissing: []string{"gateway:use"},
		},
		{
			name:      "expired identity",
			identity:  &Identity{ClientID: "c", ExpiresAt: &past, Scopes: []string{"gateway:use"}},
			tool:      "cost_get_summary",
			wantAuthn: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.AuthorizeTool(tt.identity, tt.tool)

			switch {
			case tt.wantAuthn:
				assert.True(t, gwerrors.IsAuthentication(err))
				assert.ErrorIs(t, err, ErrTokenExpired)
			case tt.wantMissing != nil:
				var authzErr *gwerrors.AuthorizationError
				require.ErrorAs(t, err, &authzErr)
				assert.Equal(t, tt.wantMissing, authzErr.Missing)
				assert.Equal(t, tt.tool, authzErr.Tool)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequiredScopes(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(context.Background(), config.AuthConfig{
		RequiredScopes: []string{"b", "a"},
		ToolScopes:     map[string][]string{"x": {"c", "a"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, p.RequiredScopes("x"))
	assert.Equal(t, []string{"a", "b"}, p.RequiredScopes("y"))
	assert.Equal(t, map[string][]string{"x": {"a", "c"}}, p.ToolScopes())
}
