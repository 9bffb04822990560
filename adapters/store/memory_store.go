package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// MemoryStore is an in-memory implementation of the TokenStore interface
type MemoryStore struct {
	gen ports.TokenGenerator
	now func() time.Time

	mu     sync.RWMutex
	tokens map[string]core.Token
	owners map[core.Identity]map[string]struct{}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(gen ports.TokenGenerator, opts ...Option) ports.TokenStore {
	o := buildOptions(opts)
	return &MemoryStore{
		gen:    gen,
		now:    o.now,
		tokens: make(map[string]core.Token),
		owners: make(map[core.Identity]map[string]struct{}),
	}
}

// Create issues a new token for owner
func (s *MemoryStore) Create(ctx context.Context, owner core.Identity) (core.Token, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := s.gen.Generate()
		if err != nil {
			return core.Token{}, err
		}

		now := stamp(s.now())
		tok := core.Token{Value: value, Owner: owner, CreatedAt: now, LastUsedAt: now}

		s.mu.Lock()
		if _, taken := s.tokens[value]; taken {
			s.mu.Unlock()
			continue
		}
		s.tokens[value] = tok
		if s.owners[owner] == nil {
			s.owners[owner] = make(map[string]struct{})
		}
		s.owners[owner][value] = struct{}{}
		s.mu.Unlock()

		return tok, nil
	}

	return core.Token{}, errors.New("failed to create token: value collision")
}

// Lookup retrieves a token by value
func (s *MemoryStore) Lookup(ctx context.Context, value string) (core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[value]
	if !ok {
		return core.Token{}, core.ErrTokenNotFound
	}
	return tok, nil
}

// Touch records a use of the token
func (s *MemoryStore) Touch(ctx context.Context, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[value]
	if !ok {
		return core.ErrTokenNotFound
	}

	now = stamp(now)
	if now.After(tok.LastUsedAt) {
		tok.LastUsedAt = now
		s.tokens[value] = tok
	}
	return nil
}

// Revoke deletes a token
func (s *MemoryStore) Revoke(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(value)
	return nil
}

// ListForIdentity returns all tokens owned by owner
func (s *MemoryStore) ListForIdentity(ctx context.Context, owner core.Identity) ([]core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Token, 0, len(s.owners[owner]))
	for value := range s.owners[owner] {
		out = append(out, s.tokens[value])
	}
	sortTokens(out)
	return out, nil
}

// Purge removes tokens that were last used before staleBefore
func (s *MemoryStore) Purge(ctx context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for value, tok := range s.tokens {
		if tok.LastUsedAt.Before(staleBefore) {
			s.deleteLocked(value)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) deleteLocked(value string) {
	tok, ok := s.tokens[value]
	if !ok {
		return
	}
	delete(s.tokens, value)

	values := s.owners[tok.Owner]
	delete(values, value)
	if len(values) == 0 {
		delete(s.owners, tok.Owner)
	}
}

func sortTokens(tokens []core.Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].Value < tokens[j].Value
		}
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
}
