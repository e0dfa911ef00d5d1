package contact

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

const contactColumns = `id, tenant_id, jid, name, avatar_url, is_group, created_at, updated_at`

// PGStore persists contacts in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed contact store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetByJID(ctx context.Context, tenantID, jid string) (Contact, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Contact{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND jid = $2`,
		pgTenant, jid,
	)
	if err != nil {
		return Contact{}, err
	}
	return collectContact(rows)
}

func (s *PGStore) Get(ctx context.Context, tenantID, contactID string) (Contact, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Contact{}, err
	}
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return Contact{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2`,
		pgTenant, pgID,
	)
	if err != nil {
		return Contact{}, err
	}
	return collectContact(rows)
}

func (s *PGStore) Upsert(ctx context.Context, c Contact) (Contact, error) {
	pgTenant, err := db.ParseUUID(c.TenantID)
	if err != nil {
		return Contact{}, err
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO contacts (tenant_id, jid, name, avatar_url, is_group)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, jid) DO UPDATE
		 SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url, updated_at = now()
		 RETURNING `+contactColumns,
		pgTenant, c.JID, c.Name, c.AvatarURL, c.IsGroup,
	)
	if err != nil {
		return Contact{}, err
	}
	return collectContact(rows)
}

func collectContact(rows pgx.Rows) (Contact, error) {
	c, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (Contact, error) {
		var c Contact
		err := row.Scan(&c.ID, &c.TenantID, &c.JID, &c.Name, &c.AvatarURL, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}
