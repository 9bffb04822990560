package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 3600*time.Second, cfg.Token.ValidTime)
	assert.Zero(t, cfg.Token.MaxLifetime)
	assert.Equal(t, "Token", cfg.Token.Scheme)
	assert.Equal(t, "Authorization", cfg.Token.Header)
	assert.True(t, cfg.Token.OwnerCheck)
	assert.Equal(t, "api", cfg.Password.Realm)
	assert.Equal(t, "access_token", cfg.OAuth.QueryParam)
	assert.Equal(t, "email", cfg.OAuth.ProfileField)
	assert.Equal(t, ProviderNone, cfg.OAuth.Provider)
	assert.Equal(t, 10*time.Second, cfg.CollaboratorTimeout)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "tokenauth:", cfg.RedisKeyPrefix)
	assert.Equal(t, EventsNone, cfg.Events)
	assert.Equal(t, []string{"username", "first_name", "last_name", "email"}, cfg.UserFields)
	assert.False(t, cfg.NeedsRedis())
	assert.False(t, cfg.NeedsPostgres())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"TOKEN_VALID_TIME":   "15m",
		"TOKEN_MAX_LIFETIME": "24h",
		"TOKEN_SCHEME":       "ApiKey",
		"STORE":              "redis",
		"EVENTS":             "redis",
		"OAUTH_PROVIDER":     "oidc",
		"OAUTH_ISSUER":       "https://accounts.example.com",
		"USER_FIELDS":        "username,email",
		"BOOTSTRAP_USERS":    "alice:pw,bob:hunter2",
	})
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Token.ValidTime)
	assert.Equal(t, 24*time.Hour, cfg.Token.MaxLifetime)
	assert.Equal(t, "ApiKey", cfg.Token.Scheme)
	assert.Equal(t, []string{"username", "email"}, cfg.UserFields)
	assert.Equal(t, []string{"alice:pw", "bob:hunter2"}, cfg.BootstrapUsers)
	assert.True(t, cfg.NeedsRedis())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		errs    int
	}{
		{"zero window", map[string]string{"TOKEN_VALID_TIME": "0s"}, 1},
		{"negative window", map[string]string{"TOKEN_VALID_TIME": "-1s"}, 1},
		{"scheme with space", map[string]string{"TOKEN_SCHEME": "My Token"}, 1},
		{"unknown store", map[string]string{"STORE": "mongo"}, 1},
		{"postgres without dsn", map[string]string{"STORE": "postgres", "ACCOUNTS": "postgres"}, 2},
		{"unknown events", map[string]string{"EVENTS": "kafka"}, 1},
		{"oidc without issuer", map[string]string{"OAUTH_PROVIDER": "oidc"}, 1},
		{"jwt without jwks", map[string]string{"OAUTH_PROVIDER": "jwt"}, 1},
		{"unknown provider", map[string]string{"OAUTH_PROVIDER": "myspace"}, 1},
		{"bad bootstrap user", map[string]string{"BOOTSTRAP_USERS": "alice"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			require.Error(t, err)
			assert.Len(t, multierr.Errors(err), tt.errs)
		})
	}
}

func TestLoadRejectsUnparsableDuration(t *testing.T) {
	_, err := LoadFrom(map[string]string{"TOKEN_VALID_TIME": "forever"})
	assert.Error(t, err)
}
