//go:build integration

package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rupesh-2/matrimonial-UI/internal/db"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if _, err := db.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewPostgresStore(testPool)

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}

	if err := store.Save(ctx, "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "second" {
		t.Fatalf("expected upsert to replace the value, got %q", got)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("expected idempotent delete: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	applied, err := db.Migrate(context.Background(), testPool)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no pending migrations got %v", applied)
	}
}
