package strategy

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// Defaults for the token strategy
const (
	DefaultTokenHeader = "Authorization"
	DefaultTokenScheme = "Token"
)

// TokenConfig configures TokenStrategy
type TokenConfig struct {
	Header string      // request header carrying the credential
	Scheme string      // case-sensitive scheme keyword, also the challenge
	Expiry core.Expiry // sliding-expiration policy

	// Directory, when set, rejects tokens whose owner no longer resolves
	Directory ports.AccountDirectory
}

// TokenStrategy validates a pre-issued API token and slides its expiry
type TokenStrategy struct {
	store ports.TokenStore
	cfg   TokenConfig
	opts  options
}

var _ ports.Strategy = (*TokenStrategy)(nil)

// NewTokenStrategy creates a token strategy backed by store
func NewTokenStrategy(store ports.TokenStore, cfg TokenConfig, opts ...Option) *TokenStrategy {
	if cfg.Header == "" {
		cfg.Header = DefaultTokenHeader
	}
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultTokenScheme
	}
	return &TokenStrategy{
		store: store,
		cfg:   cfg,
		opts:  buildOptions(opts),
	}
}

func (s *TokenStrategy) Name() string {
	return NameToken
}

// Authenticate checks the "<Scheme> <value>" header against the store.
// Expired tokens are rejected but left in place.
func (s *TokenStrategy) Authenticate(ctx context.Context, ac core.AuthContext) core.Outcome {
	value, ok := s.credential(ac.Header(s.cfg.Header))
	if !ok {
		return s.reject("missing or malformed credential", nil, "")
	}

	tok, err := guard(ctx, s.opts.timeout, func(ctx context.Context) (core.Token, error) {
		return s.store.Lookup(ctx, value)
	})
	if err != nil {
		return s.reject("lookup failed", err, value)
	}

	now := s.opts.now()
	if !s.cfg.Expiry.Fresh(tok, now) {
		return s.reject("token expired", nil, value)
	}

	if s.cfg.Directory != nil {
		_, err := guard(ctx, s.opts.timeout, func(ctx context.Context) (core.Profile, error) {
			return s.cfg.Directory.Profile(ctx, tok.Owner)
		})
		if err != nil {
			return s.reject("owner not resolvable", err, value)
		}
	}

	_, err = guard(ctx, s.opts.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Touch(ctx, value, now)
	})
	if err != nil {
		return s.reject("touch failed", err, value)
	}

	ac.SetIdentity(tok.Owner)
	return core.Authenticated(tok.Owner)
}

// credential splits the header on its first space; the scheme must match exactly.
func (s *TokenStrategy) credential(header string) (string, bool) {
	scheme, value, found := strings.Cut(header, " ")
	if !found || scheme != s.cfg.Scheme || value == "" {
		return "", false
	}
	return value, true
}

func (s *TokenStrategy) reject(reason string, err error, value string) core.Outcome {
	fields := watermill.LogFields{"strategy": NameToken, "reason": reason}
	if value != "" {
		fields["token"] = core.Fingerprint(value)
	}
	if err != nil {
		fields["err"] = err.Error()
	}
	s.opts.logger.Debug("Authentication rejected", fields)

	return core.Unauthenticated(s.cfg.Scheme)
}
