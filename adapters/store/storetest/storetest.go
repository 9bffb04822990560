// Package storetest holds the conformance suite every ports.TokenStore
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/tokenauth/adapters/generator"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates an empty store using the given generator and clock
type StoreFactory func(t *testing.T, gen ports.TokenGenerator, now func() time.Time) ports.TokenStore

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed, whole-second instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RunTokenStoreTests runs the complete TokenStore suite against the factory
func RunTokenStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, factory) })
	t.Run("LookupUnknown", func(t *testing.T) { testLookupUnknown(t, factory) })
	t.Run("TouchAdvances", func(t *testing.T) { testTouchAdvances(t, factory) })
	t.Run("TouchNeverMovesBackward", func(t *testing.T) { testTouchNeverMovesBackward(t, factory) })
	t.Run("TouchUnknown", func(t *testing.T) { testTouchUnknown(t, factory) })
	t.Run("RevokeIdempotent", func(t *testing.T) { testRevokeIdempotent(t, factory) })
	t.Run("ListForIdentity", func(t *testing.T) { testListForIdentity(t, factory) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, factory) })
	t.Run("GenerationFailurePropagates", func(t *testing.T) { testGenerationFailure(t, factory) })
	t.Run("CollisionRegenerates", func(t *testing.T) { testCollisionRegenerates(t, factory) })
	t.Run("ConcurrentTouch", func(t *testing.T) { testConcurrentTouch(t, factory) })
}

func testCreateAndLookup(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, tok.Value, generator.TokenLength)
	assert.Equal(t, core.Identity("user-1"), tok.Owner)
	assert.True(t, tok.CreatedAt.Equal(clock.Now()))
	assert.True(t, tok.LastUsedAt.Equal(clock.Now()))

	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, tok.Value, got.Value)
	assert.Equal(t, tok.Owner, got.Owner)
	assert.True(t, got.CreatedAt.Equal(tok.CreatedAt))
	assert.True(t, got.LastUsedAt.Equal(tok.LastUsedAt))
}

func testLookupUnknown(t *testing.T, factory StoreFactory) {
	s := factory(t, generator.NewDigest(), NewClock().Now)

	_, err := s.Lookup(context.Background(), "abc123")
	assert.ErrorIs(t, err, core.ErrTokenNotFound)
}

func testTouchAdvances(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	later := clock.Now().Add(10 * time.Minute)
	require.NoError(t, s.Touch(ctx, tok.Value, later))

	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(later))
	assert.True(t, got.CreatedAt.Equal(tok.CreatedAt))
}

func testTouchNeverMovesBackward(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	later := clock.Now().Add(10 * time.Minute)
	require.NoError(t, s.Touch(ctx, tok.Value, later))
	require.NoError(t, s.Touch(ctx, tok.Value, later.Add(-5*time.Minute)))

	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(later))
}

func testTouchUnknown(t *testing.T, factory StoreFactory) {
	s := factory(t, generator.NewDigest(), NewClock().Now)

	err := s.Touch(context.Background(), "abc123", time.Now())
	assert.ErrorIs(t, err, core.ErrTokenNotFound)
}

func testRevokeIdempotent(t *testing.T, factory StoreFactory) {
	s := factory(t, generator.NewDigest(), NewClock().Now)
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, tok.Value))
	require.NoError(t, s.Revoke(ctx, tok.Value))
	require.NoError(t, s.Revoke(ctx, "never-issued"))

	_, err = s.Lookup(ctx, tok.Value)
	assert.ErrorIs(t, err, core.ErrTokenNotFound)

	list, err := s.ListForIdentity(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testListForIdentity(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	first, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	_, err = s.Create(ctx, "user-2")
	require.NoError(t, err)

	list, err := s.ListForIdentity(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Value, list[0].Value)
	assert.Equal(t, second.Value, list[1].Value)

	require.NoError(t, s.Revoke(ctx, first.Value))
	list, err = s.ListForIdentity(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.Value, list[0].Value)

	list, err = s.ListForIdentity(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testPurge(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	stale, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	fresh, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	purged, err := s.Purge(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Lookup(ctx, stale.Value)
	assert.ErrorIs(t, err, core.ErrTokenNotFound)
	_, err = s.Lookup(ctx, fresh.Value)
	assert.NoError(t, err)

	list, err := s.ListForIdentity(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type failingGenerator struct{}

func (failingGenerator) Generate() (string, error) {
	return "", errors.Join(core.ErrGenerationFailed, errors.New("entropy exhausted"))
}

func testGenerationFailure(t *testing.T, factory StoreFactory) {
	s := factory(t, failingGenerator{}, NewClock().Now)

	_, err := s.Create(context.Background(), "user-1")
	assert.ErrorIs(t, err, core.ErrGenerationFailed)
}

// sequenceGenerator replays fixed values
type sequenceGenerator struct {
	mu     sync.Mutex
	values []string
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.values[0]
	g.values = g.values[1:]
	return v, nil
}

func testCollisionRegenerates(t *testing.T, factory StoreFactory) {
	gen := &sequenceGenerator{values: []string{"value-a", "value-a", "value-b"}}
	s := factory(t, gen, NewClock().Now)
	ctx := context.Background()

	first, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	second, err := s.Create(ctx, "user-2")
	require.NoError(t, err)

	assert.Equal(t, "value-a", first.Value)
	assert.Equal(t, "value-b", second.Value)

	got, err := s.Lookup(ctx, "value-a")
	require.NoError(t, err)
	assert.Equal(t, core.Identity("user-1"), got.Owner)
}

func testConcurrentTouch(t *testing.T, factory StoreFactory) {
	clock := NewClock()
	s := factory(t, generator.NewDigest(), clock.Now)
	ctx := context.Background()

	tok, err := s.Create(ctx, "user-1")
	require.NoError(t, err)

	base := clock.Now()
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Touch(ctx, tok.Value, base.Add(time.Duration(i)*time.Second)))
		}(i)
	}
	wg.Wait()

	got, err := s.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(base.Add(20*time.Second)))
}
