// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const jwksRegistrationTimeout = 5 * time.Second

// loadKeySetFile reads a PEM public key, a single JWK, or a JWK set.
func loadKeySetFile(path string) (jwk.Set, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key file: %w", err)
	}

	isPEM := bytes.Contains(data, []byte("-----BEGIN"))
	set, err := jwk.Parse(data, jwk.WithPEM(isPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key file %s: %w", path, err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("JWT public key file %s contains no keys", path)
	}
	return set, nil
}

// keyResolver finds the verification key for a token: first among the keys
// loaded from file, then in the remote JWKS when one is configured.
type keyResolver struct {
	fileKeys jwk.Set

	jwksURL   string
	jwksCache *jwk.Cache

	registrationMu sync.Mutex
	registered     bool
}

func newKeyResolver(ctx context.Context, keyFile, jwksURL string, httpClient *http.Client) (*keyResolver, error) {
	r := &keyResolver{jwksURL: jwksURL}

	if keyFile != "" {
		set, err := loadKeySetFile(keyFile)
		if err != nil {
			return nil, err
		}
		r.fileKeys = set
	}

	if jwksURL != "" {
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
		}
		r.jwksCache = cache
	}

	return r, nil
}

// keyFunc adapts the resolver to jwt.Keyfunc.
func (r *keyResolver) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)

		if r.fileKeys != nil {
			if key, ok := pickKey(r.fileKeys, kid); ok {
				return exportPublicKey(key)
			}
		}

		if r.jwksCache != nil {
			set, err := r.remoteKeys(ctx)
			if err != nil {
				return nil, err
			}
			if key, ok := pickKey(set, kid); ok {
				return exportPublicKey(key)
			}
		}

		if kid != "" {
			return nil, fmt.Errorf("%w: key ID %q not found", ErrNoVerificationKey, kid)
		}
		return nil, ErrNoVerificationKey
	}
}

// ensureRegistered registers the JWKS URL with the cache on first use so
// startup does not block on the identity provider.
func (r *keyResolver) ensureRegistered(ctx context.Context) error {
	r.registrationMu.Lock()
	defer r.registrationMu.Unlock()

	if r.registered {
		return nil
	}

	registrationCtx, cancel := context.WithTimeout(ctx, jwksRegistrationTimeout)
	defer cancel()

	if err := r.jwksCache.Register(registrationCtx, r.jwksURL); err != nil {
		// allow a later request to retry
		return fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	r.registered = true
	return nil
}

func (r *keyResolver) remoteKeys(ctx context.Context) (jwk.Set, error) {
	if err := r.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	set, err := r.jwksCache.Lookup(ctx, r.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}
	return set, nil
}

// pickKey returns the key with kid, or the only key in the set when the
// token carries no kid.
func pickKey(set jwk.Set, kid string) (jwk.Key, bool) {
	if kid != "" {
		return set.LookupKeyID(kid)
	}
	if set.Len() == 1 {
		return set.Key(0)
	}
	return nil, false
}

func exportPublicKey(key jwk.Key) (any, error) {
	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	var raw any
	if err := jwk.Export(pub, &raw); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}
	return raw, nil
}
