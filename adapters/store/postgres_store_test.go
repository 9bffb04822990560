package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/tokenauth/adapters/store/storetest"
	"github.com/layer-3/tokenauth/ports"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TOKENAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TOKENAUTH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Skipf("Postgres not available: %v", err)
	}

	storetest.RunTokenStoreTests(t, func(t *testing.T, gen ports.TokenGenerator, now func() time.Time) ports.TokenStore {
		s := NewPostgresStore(pool, gen, WithClock(now))
		require.NoError(t, s.Migrate(ctx))
		_, err := pool.Exec(ctx, `TRUNCATE api_tokens`)
		require.NoError(t, err)
		return s
	})
}
