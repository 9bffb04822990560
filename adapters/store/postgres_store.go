package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists tokens in PostgreSQL.
// It is returned as a concrete type so callers can run Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
	gen  ports.TokenGenerator
	now  func() time.Time
}

var _ ports.TokenStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given pool
func NewPostgresStore(pool *pgxpool.Pool, gen ports.TokenGenerator, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{pool: pool, gen: gen, now: o.now}
}

// Migrate ensures the token table exists
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate token schema: %w", err)
		}
	}
	return nil
}

// Create issues a new token for owner
func (s *PostgresStore) Create(ctx context.Context, owner core.Identity) (core.Token, error) {
	const query = `
INSERT INTO api_tokens (value, owner, created_at, last_used_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (value) DO NOTHING
`
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := s.gen.Generate()
		if err != nil {
			return core.Token{}, err
		}

		now := stamp(s.now())
		tag, err := s.pool.Exec(ctx, query, value, string(owner), now)
		if err != nil {
			return core.Token{}, fmt.Errorf("failed to create token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		return core.Token{Value: value, Owner: owner, CreatedAt: now, LastUsedAt: now}, nil
	}

	return core.Token{}, errors.New("failed to create token: value collision")
}

// Lookup retrieves a token by value
func (s *PostgresStore) Lookup(ctx context.Context, value string) (core.Token, error) {
	const query = `
SELECT value, owner, created_at, last_used_at
FROM api_tokens WHERE value = $1
`
	tok, err := scanToken(s.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Token{}, core.ErrTokenNotFound
		}
		return core.Token{}, fmt.Errorf("failed to lookup token: %w", err)
	}
	return tok, nil
}

// Touch records a use of the token
func (s *PostgresStore) Touch(ctx context.Context, value string, now time.Time) error {
	const query = `
UPDATE api_tokens
SET last_used_at = GREATEST(last_used_at, $2)
WHERE value = $1
`
	tag, err := s.pool.Exec(ctx, query, value, stamp(now))
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTokenNotFound
	}
	return nil
}

// Revoke deletes a token
func (s *PostgresStore) Revoke(ctx context.Context, value string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM api_tokens WHERE value = $1`, value); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ListForIdentity returns all tokens owned by owner
func (s *PostgresStore) ListForIdentity(ctx context.Context, owner core.Identity) ([]core.Token, error) {
	const query = `
SELECT value, owner, created_at, last_used_at
FROM api_tokens WHERE owner = $1
ORDER BY created_at, value
`
	rows, err := s.pool.Query(ctx, query, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	out := []core.Token{}
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list tokens: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return out, nil
}

// Purge removes tokens that were last used before staleBefore
func (s *PostgresStore) Purge(ctx context.Context, staleBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_tokens WHERE last_used_at < $1`, staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanToken(row pgx.Row) (core.Token, error) {
	var (
		tok   core.Token
		owner string
	)
	if err := row.Scan(&tok.Value, &owner, &tok.CreatedAt, &tok.LastUsedAt); err != nil {
		return core.Token{}, err
	}
	tok.Owner = core.Identity(owner)
	tok.CreatedAt = tok.CreatedAt.UTC()
	tok.LastUsedAt = tok.LastUsedAt.UTC()
	return tok, nil
}
