package ports

import (
	"context"

	"github.com/layer-3/tokenauth/core"
)

// IdentityVerifier checks a username/secret pair against the account store
type IdentityVerifier interface {
	Verify(ctx context.Context, username, secret string) (core.Identity, error)
}

// IdentityResolver maps a verified external identity to a local account,
// creating the account when none is linked yet
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, ext core.ExternalIdentity) (core.Identity, error)
}

// OAuthIntrospector verifies a third-party access token
type OAuthIntrospector interface {
	Introspect(ctx context.Context, accessToken string) (core.ExternalIdentity, error)
}

// BasicCredentialDecoder splits a Basic authorization header value
type BasicCredentialDecoder interface {
	Decode(headerValue string) (username, secret string, err error)
}

// AccountDirectory resolves an identity to its account profile.
// Returns core.ErrIdentityNotFound when the account no longer exists.
type AccountDirectory interface {
	Profile(ctx context.Context, id core.Identity) (core.Profile, error)
}
