package account

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

//go:embed schema.sql
var schemaSQL string

// PostgresDirectory keeps accounts in PostgreSQL
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

var (
	_ ports.IdentityVerifier = (*PostgresDirectory)(nil)
	_ ports.IdentityResolver = (*PostgresDirectory)(nil)
	_ ports.AccountDirectory = (*PostgresDirectory)(nil)
)

// NewPostgresDirectory constructs a directory on the given pool
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Migrate ensures the account tables exist
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate account schema: %w", err)
		}
	}
	return nil
}

// Register creates a password account
func (d *PostgresDirectory) Register(ctx context.Context, username, password string, profile core.Profile) (core.Identity, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	return insertAccount(ctx, d.pool, username, hash, profile)
}

// Verify checks a username/password pair
func (d *PostgresDirectory) Verify(ctx context.Context, username, secret string) (core.Identity, error) {
	var id, hash string
	err := d.pool.QueryRow(ctx, `SELECT id, password_hash FROM accounts WHERE username = $1`, username).Scan(&id, &hash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to load account: %w", err)
	}

	if !checkPassword(hash, secret) {
		return "", core.ErrInvalidCredentials
	}
	return core.Identity(id), nil
}

// ResolveOrCreate returns the account linked to ext, linking an account with
// the same email or creating a new one when needed
func (d *PostgresDirectory) ResolveOrCreate(ctx context.Context, ext core.ExternalIdentity) (core.Identity, error) {
	var id string
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT account_id FROM account_links WHERE provider = $1 AND handle = $2`,
			ext.Provider, ext.Handle,
		).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		email := normaliseEmail(ext.Profile[FieldEmail])
		if email != "" {
			err = tx.QueryRow(ctx,
				`SELECT id FROM accounts WHERE lower(email) = $1 ORDER BY created_at LIMIT 1`, email,
			).Scan(&id)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
		}

		created := false
		if id == "" {
			newID, err := insertAccount(ctx, tx, usernameFor(ext), "", ext.Profile)
			if errors.Is(err, ErrUsernameTaken) {
				newID, err = insertAccount(ctx, tx, ext.Provider+":"+ext.Handle, "", ext.Profile)
			}
			if err != nil {
				return err
			}
			id, created = string(newID), true
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO account_links (provider, handle, account_id) VALUES ($1, $2, $3)
ON CONFLICT (provider, handle) DO NOTHING`,
			ext.Provider, ext.Handle, id,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		// A concurrent login linked the handle first; use its account.
		var winner string
		err = tx.QueryRow(ctx,
			`SELECT account_id FROM account_links WHERE provider = $1 AND handle = $2`,
			ext.Provider, ext.Handle,
		).Scan(&winner)
		if err != nil {
			return err
		}
		if created && winner != id {
			if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
				return err
			}
		}
		id = winner
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve external identity: %w", err)
	}
	return core.Identity(id), nil
}

// Profile returns the account's profile
func (d *PostgresDirectory) Profile(ctx context.Context, id core.Identity) (core.Profile, error) {
	var username, email, first, last string
	err := d.pool.QueryRow(ctx,
		`SELECT username, email, first_name, last_name FROM accounts WHERE id = $1`, string(id),
	).Scan(&username, &email, &first, &last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	return core.Profile{
		FieldUsername:  username,
		FieldEmail:     email,
		FieldFirstName: first,
		FieldLastName:  last,
	}, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// insertAccount returns ErrUsernameTaken instead of failing the statement,
// so callers inside a transaction can retry with another username.
func insertAccount(ctx context.Context, db execer, username, hash string, profile core.Profile) (core.Identity, error) {
	const query = `
INSERT INTO accounts (id, username, email, first_name, last_name, password_hash)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (username) DO NOTHING
`
	id := uuid.NewString()
	tag, err := db.Exec(ctx, query,
		id,
		username,
		profile[FieldEmail],
		profile[FieldFirstName],
		profile[FieldLastName],
		hash,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrUsernameTaken
	}
	return core.Identity(id), nil
}
