// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Identity is the caller derived from a validated credential.
type Identity struct {
	// ClientID identifies the calling client. For static tokens it is the
	// configured clientId; for JWTs it is client_id, azp or sub.
	ClientID string `json:"clientId"`

	Subject string `json:"subject,omitempty"`
	Issuer  string `json:"issuer,omitempty"`

	// Scopes is sorted and free of duplicates.
	Scopes []string `json:"scopes"`

	// ExpiresAt is nil for credentials that never expire.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// IsExpired reports whether the identity is expired at now.
func (i *Identity) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// HasScope reports whether the identity carries scope.
func (i *Identity) HasScope(scope string) bool {
	_, found := slices.BinarySearch(i.Scopes, scope)
	return found
}

// MissingScopes returns the entries of required the identity does not carry,
// sorted and de-duplicated.
func (i *Identity) MissingScopes(required []string) []string {
	var missing []string
	for _, scope := range required {
		if !i.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	return normalizeScopes(missing)
}

// String returns a short representation for logs.
func (i *Identity) String() string {
	if i == nil {
		return "<anonymous>"
	}
	return fmt.Sprintf("Identity{ClientID:%q, Subject:%q}", i.ClientID, i.Subject)
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := slices.Clone(scopes)
	slices.Sort(out)
	return slices.Compact(out)
}

// IdentityContextKey is the context key for the authenticated Identity.
type IdentityContextKey struct{}

// WithIdentity stores identity in ctx. A nil identity leaves ctx unchanged.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, IdentityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey{}).(*Identity)
	return identity, ok
}
