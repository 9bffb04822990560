package strategy

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// DefaultRealm is advertised in the Basic challenge
const DefaultRealm = "api"

// PasswordConfig configures PasswordStrategy
type PasswordConfig struct {
	Header string // defaults to Authorization
	Realm  string
}

// PasswordStrategy verifies a Basic username/password pair
type PasswordStrategy struct {
	decoder   ports.BasicCredentialDecoder
	verifier  ports.IdentityVerifier
	cfg       PasswordConfig
	challenge string
	opts      options
}

var _ ports.Strategy = (*PasswordStrategy)(nil)

// NewPasswordStrategy creates a password strategy
func NewPasswordStrategy(decoder ports.BasicCredentialDecoder, verifier ports.IdentityVerifier, cfg PasswordConfig, opts ...Option) *PasswordStrategy {
	if cfg.Header == "" {
		cfg.Header = DefaultTokenHeader
	}
	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}
	return &PasswordStrategy{
		decoder:   decoder,
		verifier:  verifier,
		cfg:       cfg,
		challenge: fmt.Sprintf("Basic realm=%q", cfg.Realm),
		opts:      buildOptions(opts),
	}
}

func (s *PasswordStrategy) Name() string {
	return NamePassword
}

func (s *PasswordStrategy) Authenticate(ctx context.Context, ac core.AuthContext) core.Outcome {
	header := ac.Header(s.cfg.Header)
	if header == "" {
		return s.reject("missing credential", nil)
	}

	type pair struct{ username, secret string }
	creds, err := guard(ctx, s.opts.timeout, func(context.Context) (pair, error) {
		u, p, err := s.decoder.Decode(header)
		return pair{u, p}, err
	})
	if err != nil {
		return s.reject("malformed credential", err)
	}

	id, err := guard(ctx, s.opts.timeout, func(ctx context.Context) (core.Identity, error) {
		return s.verifier.Verify(ctx, creds.username, creds.secret)
	})
	if err != nil {
		return s.reject("verification failed", err)
	}
	if id == "" {
		return s.reject("verifier returned no identity", nil)
	}

	ac.SetIdentity(id)
	return core.Authenticated(id)
}

func (s *PasswordStrategy) reject(reason string, err error) core.Outcome {
	fields := watermill.LogFields{"strategy": NamePassword, "reason": reason}
	if err != nil {
		fields["err"] = err.Error()
	}
	s.opts.logger.Debug("Authentication rejected", fields)

	return core.Unauthenticated(s.challenge)
}
