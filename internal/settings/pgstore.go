package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

// PGStore persists settings in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed settings store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return "", err
	}
	var value string
	err = s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE tenant_id = $1 AND key = $2`,
		pgTenant, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *PGStore) Upsert(ctx context.Context, tenantID, key, value string) error {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (tenant_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (tenant_id, key) DO UPDATE SET value = $3, updated_at = now()`,
		pgTenant, key, value,
	)
	return err
}
