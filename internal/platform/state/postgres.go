package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps state blobs in a single jsonb table. Deployments that
// already run the platform database can use it instead of Redis.
//
// Expected schema:
//
//	CREATE TABLE integration_state (
//	    integration_id TEXT NOT NULL,
//	    action_id      TEXT NOT NULL,
//	    sub_key        TEXT NOT NULL DEFAULT '',
//	    data           JSONB NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (integration_id, action_id, sub_key)
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key Key) ([]byte, error) {
	query := `
        SELECT data
        FROM integration_state
        WHERE integration_id = $1 AND action_id = $2 AND sub_key = $3`

	var data []byte
	err := s.db.QueryRow(ctx, query, key.IntegrationID, key.ActionID, key.SubKey).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("state.PostgresStore.Get %s: %w", key, err)
	}
	return data, nil
}

// Set upserts value under key.
func (s *PostgresStore) Set(ctx context.Context, key Key, value []byte) error {
	query := `
        INSERT INTO integration_state (integration_id, action_id, sub_key, data, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (integration_id, action_id, sub_key)
        DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, key.IntegrationID, key.ActionID, key.SubKey, value); err != nil {
		return fmt.Errorf("state.PostgresStore.Set %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	query := `
        DELETE FROM integration_state
        WHERE integration_id = $1 AND action_id = $2 AND sub_key = $3`

	if _, err := s.db.Exec(ctx, query, key.IntegrationID, key.ActionID, key.SubKey); err != nil {
		return fmt.Errorf("state.PostgresStore.Delete %s: %w", key, err)
	}
	return nil
}
