package strategy

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/layer-3/tokenauth/adapters/generator"
	"github.com/layer-3/tokenauth/adapters/store"
	"github.com/layer-3/tokenauth/adapters/store/storetest"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithHeader(value string) *core.RequestContext {
	req := httptest.NewRequest("GET", "/api/v1/user", nil)
	if value != "" {
		req.Header.Set("Authorization", value)
	}
	return core.NewRequestContext(req)
}

func newTokenFixture(t *testing.T, cfg TokenConfig) (*TokenStrategy, ports.TokenStore, *storetest.Clock) {
	t.Helper()
	clock := storetest.NewClock()
	s := store.NewMemoryStore(generator.NewDigest(), store.WithClock(clock.Now))
	return NewTokenStrategy(s, cfg, WithClock(clock.Now)), s, clock
}

func TestTokenStrategyKnownToken(t *testing.T) {
	strat, s, clock := newTokenFixture(t, TokenConfig{Expiry: core.Expiry{Window: time.Hour}})
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	ac := requestWithHeader("Token " + tok.Value)
	out := strat.Authenticate(ctx, ac)

	require.True(t, out.IsAuthenticated())
	assert.Equal(t, core.Identity("user-1"), out.Identity)
	assert.Empty(t, out.Token)

	id, ok := ac.Identity()
	require.True(t, ok)
	assert.Equal(t, core.Identity("user-1"), id)

	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(clock.Now()))
}

func TestTokenStrategyRejections(t *testing.T) {
	strat, s, _ := newTokenFixture(t, TokenConfig{})
	tok, err := s.Create(context.Background(), "user-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"unknown token", "Token abc123"},
		{"wrong scheme", "Bearer " + tok.Value},
		{"scheme is case sensitive", "token " + tok.Value},
		{"scheme only", "Token"},
		{"empty value", "Token "},
		{"basic credentials", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := requestWithHeader(tt.header)
			out := strat.Authenticate(context.Background(), ac)

			assert.Equal(t, core.KindUnauthenticated, out.Kind)
			assert.Equal(t, "Token", out.Challenge)
			_, ok := ac.Identity()
			assert.False(t, ok)
		})
	}
}

func TestTokenStrategySlidingWindow(t *testing.T) {
	strat, s, clock := newTokenFixture(t, TokenConfig{Expiry: core.Expiry{Window: time.Hour}})
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	header := "Token " + tok.Value

	// Each use restarts the window.
	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour - time.Second)
		require.True(t, strat.Authenticate(ctx, requestWithHeader(header)).IsAuthenticated())
	}

	clock.Advance(time.Hour)
	out := strat.Authenticate(ctx, requestWithHeader(header))
	assert.Equal(t, core.KindUnauthenticated, out.Kind)

	// Expired tokens stay in the store untouched.
	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(clock.Now().Add(-time.Hour)))
}

func TestTokenStrategyCustomHeaderAndScheme(t *testing.T) {
	clock := storetest.NewClock()
	s := store.NewMemoryStore(generator.NewDigest(), store.WithClock(clock.Now))
	strat := NewTokenStrategy(s, TokenConfig{Header: "X-Api-Key", Scheme: "ApiKey"}, WithClock(clock.Now))

	tok, err := s.Create(context.Background(), "user-1")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Api-Key", "ApiKey "+tok.Value)
	assert.True(t, strat.Authenticate(context.Background(), core.NewRequestContext(req)).IsAuthenticated())

	out := strat.Authenticate(context.Background(), requestWithHeader("Token "+tok.Value))
	assert.Equal(t, "ApiKey", out.Challenge)
}

type fakeDirectory struct {
	err error
}

func (d fakeDirectory) Profile(context.Context, core.Identity) (core.Profile, error) {
	if d.err != nil {
		return nil, d.err
	}
	return core.Profile{"username": "alice"}, nil
}

func TestTokenStrategyOwnerCheck(t *testing.T) {
	clock := storetest.NewClock()
	s := store.NewMemoryStore(generator.NewDigest(), store.WithClock(clock.Now))
	tok, err := s.Create(context.Background(), "user-1")
	require.NoError(t, err)
	header := "Token " + tok.Value

	ok := NewTokenStrategy(s, TokenConfig{Directory: fakeDirectory{}}, WithClock(clock.Now))
	assert.True(t, ok.Authenticate(context.Background(), requestWithHeader(header)).IsAuthenticated())

	gone := NewTokenStrategy(s, TokenConfig{Directory: fakeDirectory{err: core.ErrIdentityNotFound}}, WithClock(clock.Now))
	clock.Advance(time.Minute)
	out := gone.Authenticate(context.Background(), requestWithHeader(header))
	assert.Equal(t, core.KindUnauthenticated, out.Kind)

	// A rejected validation does not slide the window.
	got, err := s.Lookup(context.Background(), tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(clock.Now().Add(-time.Minute)))
}

// brokenStore fails or panics on selected operations
type brokenStore struct {
	ports.TokenStore
	lookupErr error
	touchErr  error
	panicOn   string
}

func (b *brokenStore) Lookup(ctx context.Context, value string) (core.Token, error) {
	if b.panicOn == "lookup" {
		panic("lookup exploded")
	}
	if b.lookupErr != nil {
		return core.Token{}, b.lookupErr
	}
	return b.TokenStore.Lookup(ctx, value)
}

func (b *brokenStore) Touch(ctx context.Context, value string, now time.Time) error {
	if b.touchErr != nil {
		return b.touchErr
	}
	return b.TokenStore.Touch(ctx, value, now)
}

func TestTokenStrategyStoreFailures(t *testing.T) {
	clock := storetest.NewClock()
	inner := store.NewMemoryStore(generator.NewDigest(), store.WithClock(clock.Now))
	tok, err := inner.Create(context.Background(), "user-1")
	require.NoError(t, err)

	tests := []struct {
		name  string
		store *brokenStore
	}{
		{"lookup error", &brokenStore{TokenStore: inner, lookupErr: errors.New("connection reset")}},
		{"lookup panic", &brokenStore{TokenStore: inner, panicOn: "lookup"}},
		{"touch error", &brokenStore{TokenStore: inner, touchErr: errors.New("read only")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := NewTokenStrategy(tt.store, TokenConfig{}, WithClock(clock.Now))
			out := strat.Authenticate(context.Background(), requestWithHeader("Token "+tok.Value))
			assert.Equal(t, core.KindUnauthenticated, out.Kind)
			assert.NoError(t, out.Err)
		})
	}
}
