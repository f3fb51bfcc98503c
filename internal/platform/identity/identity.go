// Package identity verifies which principal a caller may act as.
package identity

import (
	"context"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
)

// Authorizer checks that the calling context may act as the given principal.
type Authorizer interface {
	Authorize(ctx context.Context, principal string) error
}

type contextKey struct{}

// WithToken attaches a bearer token to the context for later verification.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// TokenFromContext returns the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(contextKey{}).(string)
	return token, ok && token != ""
}

// AllowAll authorizes every principal. Intended for tests and local runs.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, string) error { return nil }

// Allowlist authorizes only principals present in the list.
type Allowlist map[string]struct{}

// NewAllowlist builds an Allowlist from principal addresses.
func NewAllowlist(principals ...string) Allowlist {
	list := make(Allowlist, len(principals))
	for _, p := range principals {
		list[p] = struct{}{}
	}
	return list
}

// Authorize implements Authorizer.
func (a Allowlist) Authorize(_ context.Context, principal string) error {
	if _, ok := a[principal]; !ok {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"principal is not allowed",
			map[string]string{"Principal": principal},
		)
	}
	return nil
}
