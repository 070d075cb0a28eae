package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rupesh-2/matrimonial-UI/internal/db"
)

// PostgresStore persists the credential in the client_credentials table so a
// long-running agent on a shared host keeps its session across restarts.
type PostgresStore struct {
	pool db.Pool
	name string
}

// NewPostgresStore constructs a credential store backed by PostgreSQL.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	if pool == nil {
		panic("credentials: pool must not be nil")
	}
	return &PostgresStore{pool: pool, name: Key}
}

// Load selects the stored credential.
func (s *PostgresStore) Load(ctx context.Context) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var token string
	err = conn.QueryRow(ctx, `
        SELECT value
        FROM client_credentials
        WHERE name = $1
    `, s.name).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select credential: %w", err)
	}
	return token, nil
}

// Save upserts the credential.
func (s *PostgresStore) Save(ctx context.Context, token string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO client_credentials (name, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (name)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `, s.name, token)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Delete removes the credential. Deleting an absent credential is not an error.
func (s *PostgresStore) Delete(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM client_credentials
        WHERE name = $1
    `, s.name); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
