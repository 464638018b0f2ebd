package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/customersvc/storage"
	"github.com/jmcleod/customersvc/storage/storagetest"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("CUSTOMERSVC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CUSTOMERSVC_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), "TRUNCATE tokens, sessions, clients"); err != nil {
		t.Fatalf("could not truncate tables: %v", err)
	}
}

func TestPostgresStorage(t *testing.T) {
	pool := newTestPool(t)
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		truncate(t, pool)
		return NewRepository(pool)
	})
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	pool := newTestPool(t)
	if err := EnsureSchema(context.Background(), pool); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}
