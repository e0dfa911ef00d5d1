package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

const tenantColumns = `id, name, status, number, credentials, pairing_code, pairing_retries,
	greeting_message, farewell_message, completion_message, rating_message,
	out_of_hours_message, work_start_hour, work_end_hour, updated_at`

// PGStore persists tenants in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed tenant store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, tenantID string) (Tenant, error) {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, pgID)
	if err != nil {
		return Tenant{}, err
	}
	tenant, err := pgx.CollectOneRow(rows, scanTenant)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	return tenant, err
}

func (s *PGStore) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanTenant)
}

func (s *PGStore) UpdateStatus(ctx context.Context, tenantID string, status Status, pairingCode string, pairingRetries int) error {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tenants
		 SET status = $2, pairing_code = $3, pairing_retries = $4, updated_at = now()
		 WHERE id = $1`,
		pgID, string(status), pairingCode, pairingRetries,
	)
	return err
}

func (s *PGStore) SaveCredentials(ctx context.Context, tenantID string, blob []byte) error {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tenants SET credentials = $2, updated_at = now() WHERE id = $1`,
		pgID, blob,
	)
	return err
}

func (s *PGStore) Wipe(ctx context.Context, tenantID string) error {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tenants
		 SET credentials = NULL, pairing_code = '', pairing_retries = 0, number = '', updated_at = now()
		 WHERE id = $1`,
		pgID,
	)
	return err
}

func scanTenant(row pgx.CollectableRow) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Status, &t.Number, &t.Credentials, &t.PairingCode, &t.PairingRetries,
		&t.GreetingMessage, &t.FarewellMessage, &t.CompletionMessage, &t.RatingMessage,
		&t.OutOfHoursMessage, &t.WorkStartHour, &t.WorkEndHour, &t.UpdatedAt,
	)
	return t, err
}
