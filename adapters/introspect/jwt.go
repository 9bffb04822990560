package introspect

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// JWTConfig configures local verification of JWT access tokens
type JWTConfig struct {
	// Issuer and Audience are enforced when non-empty
	Issuer   string
	Audience string

	// Methods lists accepted signing algorithms. Default: RS256
	Methods []string

	// Keyfunc resolves verification keys
	Keyfunc jwt.Keyfunc

	// Provider name reported in the external identity. Default: "jwt"
	Provider string
}

// JWT verifies self-contained access tokens
type JWT struct {
	keyfunc  jwt.Keyfunc
	opts     []jwt.ParserOption
	provider string
}

// NewJWT creates a JWT introspector using cfg.Keyfunc
func NewJWT(cfg JWTConfig) ports.OAuthIntrospector {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "jwt"
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWT{keyfunc: cfg.Keyfunc, opts: opts, provider: provider}
}

// NewJWTFromJWKS creates a JWT introspector whose keys are fetched, and kept
// refreshed, from a JWKS endpoint
func NewJWTFromJWKS(ctx context.Context, jwksURL string, cfg JWTConfig) (ports.OAuthIntrospector, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	cfg.Keyfunc = kf.Keyfunc
	return NewJWT(cfg), nil
}

// Introspect verifies accessToken and returns its claims as a profile
func (j *JWT) Introspect(ctx context.Context, accessToken string) (core.ExternalIdentity, error) {
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(accessToken, claims, j.keyfunc, j.opts...); err != nil {
		return core.ExternalIdentity{}, failure("verify token: %v", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return core.ExternalIdentity{}, failure("token has no subject")
	}

	return core.ExternalIdentity{
		Provider: j.provider,
		Handle:   sub,
		Profile:  profileFromClaims(claims),
	}, nil
}
