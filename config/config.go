// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/multierr"
)

// Backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	AccountsMemory   = "memory"
	AccountsPostgres = "postgres"

	EventsNone  = "none"
	EventsRedis = "redis"

	ProviderGraph = "graph"
	ProviderOIDC  = "oidc"
	ProviderJWT   = "jwt"
	ProviderNone  = "none"
)

// Config is the complete service configuration
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":9000"`
	LogDebug bool   `env:"LOG_DEBUG" envDefault:"false"`

	Token    TokenConfig
	Password PasswordConfig
	OAuth    OAuthConfig

	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"10s"`

	Store          string `env:"STORE" envDefault:"memory"`
	Accounts       string `env:"ACCOUNTS" envDefault:"memory"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"tokenauth:"`
	DatabaseURL    string `env:"DATABASE_URL"`

	Events      string `env:"EVENTS" envDefault:"none"`
	EventsTopic string `env:"EVENTS_TOPIC" envDefault:"tokenauth.sessions"`

	UserFields []string `env:"USER_FIELDS" envSeparator:"," envDefault:"username,first_name,last_name,email"`

	// BootstrapUsers seeds the memory account directory, "user:password" pairs
	BootstrapUsers []string `env:"BOOTSTRAP_USERS" envSeparator:","`
}

// TokenConfig configures API token validation
type TokenConfig struct {
	ValidTime   time.Duration `env:"TOKEN_VALID_TIME" envDefault:"3600s"`
	MaxLifetime time.Duration `env:"TOKEN_MAX_LIFETIME" envDefault:"0s"`
	Scheme      string        `env:"TOKEN_SCHEME" envDefault:"Token"`
	Header      string        `env:"TOKEN_HEADER" envDefault:"Authorization"`
	OwnerCheck  bool          `env:"TOKEN_OWNER_CHECK" envDefault:"true"`
}

// PasswordConfig configures Basic credential exchange
type PasswordConfig struct {
	Realm string `env:"BASIC_REALM" envDefault:"api"`
}

// OAuthConfig configures delegated OAuth authentication
type OAuthConfig struct {
	Provider     string   `env:"OAUTH_PROVIDER" envDefault:"none"`
	QueryParam   string   `env:"OAUTH_QUERY_PARAM" envDefault:"access_token"`
	ProfileField string   `env:"OAUTH_PROFILE_FIELD" envDefault:"email"`
	GraphURL     string   `env:"OAUTH_GRAPH_URL" envDefault:"https://graph.facebook.com/v19.0"`
	GraphFields  []string `env:"OAUTH_GRAPH_FIELDS" envSeparator:","`
	Issuer       string   `env:"OAUTH_ISSUER"`
	JWKSURL      string   `env:"OAUTH_JWKS_URL"`
	Audience     string   `env:"OAUTH_AUDIENCE"`
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads the configuration from the given variables only
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var err error

	if c.Token.ValidTime <= 0 {
		err = multierr.Append(err, errors.New("TOKEN_VALID_TIME must be positive"))
	}
	if c.Token.MaxLifetime < 0 {
		err = multierr.Append(err, errors.New("TOKEN_MAX_LIFETIME must not be negative"))
	}
	if c.Token.Scheme == "" || strings.ContainsAny(c.Token.Scheme, " \t") {
		err = multierr.Append(err, errors.New("TOKEN_SCHEME must be a single word"))
	}
	if c.CollaboratorTimeout < 0 {
		err = multierr.Append(err, errors.New("COLLABORATOR_TIMEOUT must not be negative"))
	}

	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("DATABASE_URL is required for STORE=postgres"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown STORE %q", c.Store))
	}

	switch c.Accounts {
	case AccountsMemory:
	case AccountsPostgres:
		if c.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("DATABASE_URL is required for ACCOUNTS=postgres"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown ACCOUNTS %q", c.Accounts))
	}

	switch c.Events {
	case EventsNone, EventsRedis:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown EVENTS %q", c.Events))
	}

	switch c.OAuth.Provider {
	case ProviderNone, ProviderGraph:
	case ProviderOIDC:
		if c.OAuth.Issuer == "" {
			err = multierr.Append(err, errors.New("OAUTH_ISSUER is required for OAUTH_PROVIDER=oidc"))
		}
	case ProviderJWT:
		if c.OAuth.JWKSURL == "" {
			err = multierr.Append(err, errors.New("OAUTH_JWKS_URL is required for OAUTH_PROVIDER=jwt"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown OAUTH_PROVIDER %q", c.OAuth.Provider))
	}

	for _, u := range c.BootstrapUsers {
		if name, _, ok := strings.Cut(u, ":"); !ok || name == "" {
			err = multierr.Append(err, fmt.Errorf("invalid BOOTSTRAP_USERS entry %q", name))
		}
	}

	return err
}

// NeedsRedis reports whether any component uses Redis
func (c Config) NeedsRedis() bool {
	return c.Store == StoreRedis || c.Events == EventsRedis
}

// NeedsPostgres reports whether any component uses PostgreSQL
func (c Config) NeedsPostgres() bool {
	return c.Store == StorePostgres || c.Accounts == AccountsPostgres
}
