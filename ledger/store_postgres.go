package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps markers as rows of the purchasing_transactions table
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool. Call EnsureSchema once at startup.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// EnsureSchema creates the marker table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS purchasing_transactions (
  hash text PRIMARY KEY,
  recorded_at timestamptz NOT NULL DEFAULT now()
);`)
	return err
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM purchasing_transactions WHERE hash = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query marker %s: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO purchasing_transactions(hash) VALUES($1) ON CONFLICT (hash) DO NOTHING`, key)
	if err != nil {
		return fmt.Errorf("insert marker %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM purchasing_transactions`); err != nil {
		return fmt.Errorf("delete markers: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
