package strategy

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// Defaults for the delegated OAuth strategy
const (
	DefaultOAuthQueryParam   = "access_token"
	DefaultOAuthProfileField = "email"
)

// OAuthConfig configures DelegatedOAuthStrategy
type OAuthConfig struct {
	QueryParam    string // query parameter carrying the provider access token
	RequiredField string // profile field the provider must return
}

// DelegatedOAuthStrategy accepts an access token issued by a third-party
// provider and maps the provider identity onto a local account
type DelegatedOAuthStrategy struct {
	introspector ports.OAuthIntrospector
	resolver     ports.IdentityResolver
	cfg          OAuthConfig
	opts         options
}

var _ ports.Strategy = (*DelegatedOAuthStrategy)(nil)

// NewDelegatedOAuthStrategy creates a delegated OAuth strategy
func NewDelegatedOAuthStrategy(introspector ports.OAuthIntrospector, resolver ports.IdentityResolver, cfg OAuthConfig, opts ...Option) *DelegatedOAuthStrategy {
	if cfg.QueryParam == "" {
		cfg.QueryParam = DefaultOAuthQueryParam
	}
	if cfg.RequiredField == "" {
		cfg.RequiredField = DefaultOAuthProfileField
	}
	return &DelegatedOAuthStrategy{
		introspector: introspector,
		resolver:     resolver,
		cfg:          cfg,
		opts:         buildOptions(opts),
	}
}

func (s *DelegatedOAuthStrategy) Name() string {
	return NameOAuth
}

func (s *DelegatedOAuthStrategy) Authenticate(ctx context.Context, ac core.AuthContext) core.Outcome {
	accessToken := ac.Query(s.cfg.QueryParam)
	if accessToken == "" {
		return s.reject("missing access token", nil)
	}

	ext, err := guard(ctx, s.opts.timeout, func(ctx context.Context) (core.ExternalIdentity, error) {
		return s.introspector.Introspect(ctx, accessToken)
	})
	if err != nil {
		return s.reject("introspection failed", err)
	}
	if ext.Handle == "" {
		return s.reject("provider returned no subject", nil)
	}
	if ext.Profile[s.cfg.RequiredField] == "" {
		return s.reject("required profile field missing", nil)
	}

	id, err := guard(ctx, s.opts.timeout, func(ctx context.Context) (core.Identity, error) {
		return s.resolver.ResolveOrCreate(ctx, ext)
	})
	if err != nil {
		return s.reject("identity resolution failed", err)
	}
	if id == "" {
		return s.reject("resolver returned no identity", nil)
	}

	ac.SetIdentity(id)
	return core.Authenticated(id)
}

// Rejections carry no challenge: there is no header scheme to retry with.
func (s *DelegatedOAuthStrategy) reject(reason string, err error) core.Outcome {
	fields := watermill.LogFields{"strategy": NameOAuth, "reason": reason}
	if err != nil {
		fields["err"] = err.Error()
	}
	s.opts.logger.Debug("Authentication rejected", fields)

	return core.Unauthenticated("")
}
