package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garrettladley/whoopweb/internal/migrations"
	pgmigrations "github.com/garrettladley/whoopweb/internal/migrations/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestSQLiteBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}

	if _, err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrations.Apply() error = %v", err)
	}

	b := NewSQLiteBackend(db, time.Hour)
	testBackend(t, b)

	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err := b.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n == 0 {
		t.Error("Prune() removed nothing after every session expired")
	}
}

func TestPostgresBackend(t *testing.T) {
	t.Parallel()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pgmigrations.Apply(ctx, pool); err != nil {
		t.Fatalf("migrations.Apply() error = %v", err)
	}

	testBackend(t, NewPostgresBackend(pool, time.Hour))
}
