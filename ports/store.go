package ports

import (
	"context"
	"time"

	"github.com/layer-3/tokenauth/core"
)

// TokenStore persists issued tokens keyed by their opaque value.
// Every method is individually atomic; Lookup followed by Touch is not.
type TokenStore interface {
	// Create generates a fresh value and persists it for the identity
	Create(ctx context.Context, owner core.Identity) (core.Token, error)

	// Lookup returns core.ErrTokenNotFound when no token has the value
	Lookup(ctx context.Context, value string) (core.Token, error)

	// Touch advances LastUsedAt to now, never backwards
	Touch(ctx context.Context, value string, now time.Time) error

	// Revoke deletes the token; revoking an absent token is not an error
	Revoke(ctx context.Context, value string) error

	// ListForIdentity returns the identity's tokens, oldest first
	ListForIdentity(ctx context.Context, owner core.Identity) ([]core.Token, error)

	// Purge deletes tokens last used before the cutoff and reports how many
	Purge(ctx context.Context, staleBefore time.Time) (int, error)
}
