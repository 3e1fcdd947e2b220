package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Set POSTGRES_TEST_DSN to run against a live server. The tables are
// created if missing and rows from earlier runs are left alone.
func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	testBackend(t, s)
}
