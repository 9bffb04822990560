package introspect

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"golang.org/x/oauth2"
)

// OIDC verifies an access token against an OpenID Connect userinfo endpoint
type OIDC struct {
	provider *oidc.Provider
	name     string
}

// NewOIDC runs discovery against issuer and returns an introspector for it
func NewOIDC(ctx context.Context, issuer string) (ports.OAuthIntrospector, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	if provider.UserInfoEndpoint() == "" {
		return nil, fmt.Errorf("oidc issuer %s has no userinfo endpoint", issuer)
	}
	return &OIDC{provider: provider, name: "oidc"}, nil
}

// Introspect fetches the userinfo document owned by accessToken
func (o *OIDC) Introspect(ctx context.Context, accessToken string) (core.ExternalIdentity, error) {
	info, err := o.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return core.ExternalIdentity{}, failure("userinfo: %v", err)
	}
	if info.Subject == "" {
		return core.ExternalIdentity{}, failure("userinfo has no subject")
	}

	var claims map[string]any
	if err := info.Claims(&claims); err != nil {
		return core.ExternalIdentity{}, failure("decode userinfo: %v", err)
	}

	profile := profileFromClaims(claims)
	if info.Email != "" {
		profile["email"] = info.Email
	}

	return core.ExternalIdentity{
		Provider: o.name,
		Handle:   info.Subject,
		Profile:  profile,
	}, nil
}
