package message

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
	"github.com/zapdesk/zapdesk/internal/wap"
)

const messageColumns = `id, external_id, tenant_id, ticket_id, contact_id, body, from_me,
	read, ack, media_url, media_type, quoted_msg_id, remote_jid, participant, raw_payload, created_at`

// PGStore persists messages in Postgres. Idempotence on
// (tenant, external id) rides on the table's unique constraint.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed message store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetByExternalID(ctx context.Context, tenantID, externalID string) (Message, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Message{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE tenant_id = $1 AND external_id = $2`,
		pgTenant, externalID,
	)
	if err != nil {
		return Message{}, err
	}
	return collectMessage(rows)
}

func (s *PGStore) Create(ctx context.Context, m Message) (Message, bool, error) {
	pgTenant, err := db.ParseUUID(m.TenantID)
	if err != nil {
		return Message{}, false, err
	}
	pgTicket, err := db.ParseUUID(m.TicketID)
	if err != nil {
		return Message{}, false, err
	}
	var pgContact pgtype.UUID
	if m.ContactID != "" {
		pgContact, err = db.ParseUUID(m.ContactID)
		if err != nil {
			return Message{}, false, err
		}
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO messages (external_id, tenant_id, ticket_id, contact_id, body, from_me,
		                       read, ack, media_url, media_type, quoted_msg_id, remote_jid,
		                       participant, raw_payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (tenant_id, external_id) DO NOTHING
		 RETURNING `+messageColumns,
		m.ExternalID, pgTenant, pgTicket, pgContact, m.Body, m.FromMe,
		m.Read, int(m.Ack), m.MediaURL, m.MediaType, m.QuotedMsgID, m.RemoteJID,
		m.Participant, m.RawPayload,
	)
	if err != nil {
		return Message{}, false, err
	}
	stored, err := collectMessage(rows)
	if errors.Is(err, ErrNotFound) {
		// Conflict: a concurrent insert won, return its row.
		existing, err := s.GetByExternalID(ctx, m.TenantID, m.ExternalID)
		return existing, false, err
	}
	if err != nil {
		return Message{}, false, err
	}
	return stored, true, nil
}

func (s *PGStore) UpdateAck(ctx context.Context, tenantID, externalID string, ack wap.Ack) (Message, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Message{}, err
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE messages SET ack = GREATEST(ack, $3), read = read OR $3 >= $4
		 WHERE tenant_id = $1 AND external_id = $2
		 RETURNING `+messageColumns,
		pgTenant, externalID, int(ack), int(wap.AckRead),
	)
	if err != nil {
		return Message{}, err
	}
	return collectMessage(rows)
}

func (s *PGStore) ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]Message, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, err
	}
	pgTicket, err := db.ParseUUID(ticketID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE tenant_id = $1 AND ticket_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		pgTenant, pgTicket, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMessage)
}

func collectMessage(rows pgx.Rows) (Message, error) {
	m, err := pgx.CollectOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return m, err
}

func scanMessage(row pgx.CollectableRow) (Message, error) {
	var (
		m       Message
		contact pgtype.UUID
		ack     int
	)
	err := row.Scan(
		&m.ID, &m.ExternalID, &m.TenantID, &m.TicketID, &contact, &m.Body, &m.FromMe,
		&m.Read, &ack, &m.MediaURL, &m.MediaType, &m.QuotedMsgID, &m.RemoteJID,
		&m.Participant, &m.RawPayload, &m.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	m.ContactID = db.UUIDString(contact)
	m.Ack = wap.Ack(ack)
	return m, nil
}
