package ticket

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapdesk/zapdesk/internal/db"
)

// PGQueueStore reads queue, option, and agent rows. These are managed by
// the CRUD layer; this engine only consumes them.
type PGQueueStore struct {
	pool *pgxpool.Pool
}

// NewPGQueueStore creates a Postgres-backed queue store.
func NewPGQueueStore(pool *pgxpool.Pool) *PGQueueStore {
	return &PGQueueStore{pool: pool}
}

func (s *PGQueueStore) ListQueues(ctx context.Context, tenantID string) ([]Queue, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, greeting_message, position
		 FROM queues WHERE tenant_id = $1 ORDER BY position, name`,
		pgTenant,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanQueue)
}

func (s *PGQueueStore) GetQueue(ctx context.Context, tenantID, queueID string) (Queue, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Queue{}, err
	}
	pgID, err := db.ParseUUID(queueID)
	if err != nil {
		return Queue{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, greeting_message, position
		 FROM queues WHERE tenant_id = $1 AND id = $2`,
		pgTenant, pgID,
	)
	if err != nil {
		return Queue{}, err
	}
	q, err := pgx.CollectOneRow(rows, scanQueue)
	if errors.Is(err, pgx.ErrNoRows) {
		return Queue{}, ErrNotFound
	}
	return q, err
}

func (s *PGQueueStore) ListOptions(ctx context.Context, queueID string) ([]QueueOption, error) {
	pgQueue, err := db.ParseUUID(queueID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, queue_id, name, message, position
		 FROM queue_options WHERE queue_id = $1 ORDER BY position, name`,
		pgQueue,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOption)
}

func (s *PGQueueStore) GetOption(ctx context.Context, optionID string) (QueueOption, error) {
	pgID, err := db.ParseUUID(optionID)
	if err != nil {
		return QueueOption{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, queue_id, name, message, position FROM queue_options WHERE id = $1`,
		pgID,
	)
	if err != nil {
		return QueueOption{}, err
	}
	opt, err := pgx.CollectOneRow(rows, scanOption)
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueOption{}, ErrNotFound
	}
	return opt, err
}

func (s *PGQueueStore) GetAgent(ctx context.Context, tenantID, agentID string) (Agent, error) {
	pgTenant, err := db.ParseUUID(tenantID)
	if err != nil {
		return Agent{}, err
	}
	pgID, err := db.ParseUUID(agentID)
	if err != nil {
		return Agent{}, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, email FROM agents WHERE tenant_id = $1 AND id = $2`,
		pgTenant, pgID,
	)
	if err != nil {
		return Agent{}, err
	}
	a, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (Agent, error) {
		var a Agent
		err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Email)
		return a, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return a, err
}

func scanQueue(row pgx.CollectableRow) (Queue, error) {
	var q Queue
	err := row.Scan(&q.ID, &q.TenantID, &q.Name, &q.Greeting, &q.Position)
	return q, err
}

func scanOption(row pgx.CollectableRow) (QueueOption, error) {
	var o QueueOption
	err := row.Scan(&o.ID, &o.QueueID, &o.Name, &o.Message, &o.Position)
	return o, err
}
