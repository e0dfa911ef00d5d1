package ticket

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

const ticketColumns = `id, tenant_id, contact_id, queue_id, agent_id, channel, status,
	is_group, is_bot, queue_option_id, unread_messages, last_message, created_at, updated_at`

const trackingColumns = `id, ticket_id, tenant_id, agent_id, queued_at, started_at,
	rating_at, rated, finished_at, created_at, updated_at`

// PGStore persists tickets and trackings in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed ticket store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func optionalUUID(raw string) (pgtype.UUID, error) {
	if raw == "" {
		return pgtype.UUID{}, nil
	}
	return db.ParseUUID(raw)
}

func (s *PGStore) Get(ctx context.Context, tenantID, ticketID string) (Ticket, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Ticket{}, err
	}
	pgID, err := db.ParseUUID(ticketID)
	if err != nil {
		return Ticket{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE tenant_id = $1 AND id = $2`,
		pgTenant, pgID,
	)
	if err != nil {
		return Ticket{}, err
	}
	return collectTicket(rows)
}

func (s *PGStore) FindActiveByContact(ctx context.Context, tenantID, contactID string) (Ticket, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Ticket{}, err
	}
	pgContact, err := db.ParseUUID(contactID)
	if err != nil {
		return Ticket{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE tenant_id = $1 AND contact_id = $2 AND status IN ('open', 'pending')`,
		pgTenant, pgContact,
	)
	if err != nil {
		return Ticket{}, err
	}
	return collectTicket(rows)
}

func (s *PGStore) FindLatestByContact(ctx context.Context, tenantID, contactID string) (Ticket, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Ticket{}, err
	}
	pgContact, err := db.ParseUUID(contactID)
	if err != nil {
		return Ticket{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE tenant_id = $1 AND contact_id = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		pgTenant, pgContact,
	)
	if err != nil {
		return Ticket{}, err
	}
	return collectTicket(rows)
}

func (s *PGStore) Create(ctx context.Context, t Ticket) (Ticket, error) {
	pgTenant, err := db.ParseUUID(t.TenantID)
	if err != nil {
		return Ticket{}, err
	}
	pgContact, err := db.ParseUUID(t.ContactID)
	if err != nil {
		return Ticket{}, err
	}
	pgQueue, err := optionalUUID(t.QueueID)
	if err != nil {
		return Ticket{}, err
	}
	channel := t.Channel
	if channel == "" {
		channel = "whatsapp"
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO tickets (tenant_id, contact_id, queue_id, channel, status, is_group, unread_messages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+ticketColumns,
		pgTenant, pgContact, pgQueue, channel, string(t.Status), t.IsGroup, t.Unread,
	)
	if err != nil {
		return Ticket{}, err
	}
	return collectTicket(rows)
}

func (s *PGStore) Update(ctx context.Context, t Ticket) (Ticket, error) {
	pgTenant, err := db.ParseUUID(t.TenantID)
	if err != nil {
		return Ticket{}, err
	}
	pgID, err := db.ParseUUID(t.ID)
	if err != nil {
		return Ticket{}, err
	}
	pgQueue, err := optionalUUID(t.QueueID)
	if err != nil {
		return Ticket{}, err
	}
	pgAgent, err := optionalUUID(t.AgentID)
	if err != nil {
		return Ticket{}, err
	}
	pgOption, err := optionalUUID(t.QueueOptionID)
	if err != nil {
		return Ticket{}, err
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE tickets
		 SET queue_id = $3, agent_id = $4, status = $5, is_bot = $6,
		     queue_option_id = $7, unread_messages = $8, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+ticketColumns,
		pgTenant, pgID, pgQueue, pgAgent, string(t.Status), t.IsBot, pgOption, t.Unread,
	)
	if err != nil {
		return Ticket{}, err
	}
	return collectTicket(rows)
}

func (s *PGStore) SetPreview(ctx context.Context, tenantID, ticketID, lastMessage string, unread int) error {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return err
	}
	pgID, err := db.ParseUUID(ticketID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tickets SET last_message = $3, unread_messages = $4, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		pgTenant, pgID, lastMessage, unread,
	)
	return err
}

func (s *PGStore) CreateTracking(ctx context.Context, tr Tracking) (Tracking, error) {
	pgTicket, err := db.ParseUUID(tr.TicketID)
	if err != nil {
		return Tracking{}, err
	}
	pgTenant, err := db.ParseUUID(tr.TenantID)
	if err != nil {
		return Tracking{}, err
	}
	pgAgent, err := optionalUUID(tr.AgentID)
	if err != nil {
		return Tracking{}, err
	}
	rows, err := s.pool.Query(ctx,
		`INSERT INTO ticket_trackings (ticket_id, tenant_id, agent_id, queued_at, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+trackingColumns,
		pgTicket, pgTenant, pgAgent, db.Timestamptz(tr.QueuedAt), db.Timestamptz(tr.StartedAt),
	)
	if err != nil {
		return Tracking{}, err
	}
	return collectTracking(rows)
}

func (s *PGStore) LatestTracking(ctx context.Context, ticketID string) (Tracking, error) {
	pgTicket, err := db.ParseUUID(ticketID)
	if err != nil {
		return Tracking{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+trackingColumns+` FROM ticket_trackings
		 WHERE ticket_id = $1 ORDER BY created_at DESC LIMIT 1`,
		pgTicket,
	)
	if err != nil {
		return Tracking{}, err
	}
	return collectTracking(rows)
}

func (s *PGStore) UpdateTracking(ctx context.Context, tr Tracking) error {
	pgID, err := db.ParseUUID(tr.ID)
	if err != nil {
		return err
	}
	pgAgent, err := optionalUUID(tr.AgentID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE ticket_trackings
		 SET agent_id = $2, queued_at = $3, started_at = $4, rating_at = $5,
		     rated = $6, finished_at = $7, updated_at = now()
		 WHERE id = $1`,
		pgID, pgAgent, db.Timestamptz(tr.QueuedAt), db.Timestamptz(tr.StartedAt),
		db.Timestamptz(tr.RatingAt), tr.Rated, db.Timestamptz(tr.FinishedAt),
	)
	return err
}

func collectTicket(rows pgx.Rows) (Ticket, error) {
	t, err := pgx.CollectOneRow(rows, scanTicket)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	return t, err
}

func scanTicket(row pgx.CollectableRow) (Ticket, error) {
	var (
		t       Ticket
		queue   pgtype.UUID
		agent   pgtype.UUID
		option  pgtype.UUID
		contact pgtype.UUID
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &contact, &queue, &agent, &t.Channel, &t.Status,
		&t.IsGroup, &t.IsBot, &option, &t.Unread, &t.LastMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Ticket{}, err
	}
	t.ContactID = db.UUIDString(contact)
	t.QueueID = db.UUIDString(queue)
	t.AgentID = db.UUIDString(agent)
	t.QueueOptionID = db.UUIDString(option)
	return t, nil
}

func collectTracking(rows pgx.Rows) (Tracking, error) {
	tr, err := pgx.CollectOneRow(rows, scanTracking)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tracking{}, ErrNotFound
	}
	return tr, err
}

func scanTracking(row pgx.CollectableRow) (Tracking, error) {
	var (
		tr       Tracking
		agent    pgtype.UUID
		queued   pgtype.Timestamptz
		started  pgtype.Timestamptz
		rating   pgtype.Timestamptz
		finished pgtype.Timestamptz
	)
	err := row.Scan(
		&tr.ID, &tr.TicketID, &tr.TenantID, &agent, &queued, &started,
		&rating, &tr.Rated, &finished, &tr.CreatedAt, &tr.UpdatedAt,
	)
	if err != nil {
		return Tracking{}, err
	}
	tr.AgentID = db.UUIDString(agent)
	tr.QueuedAt = db.TimeOrZero(queued)
	tr.StartedAt = db.TimeOrZero(started)
	tr.RatingAt = db.TimeOrZero(rating)
	tr.FinishedAt = db.TimeOrZero(finished)
	return tr, nil
}
