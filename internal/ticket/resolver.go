package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ResolveInput describes the inbound message the resolver is finding a
// ticket for.
type ResolveInput struct {
	TenantID  string
	ContactID string
	Channel   string
	IsGroup   bool
	Unread    int
	FromMe    bool
}

// Resolver finds or creates the single active ticket for a contact. It is
// the serialization point for contact-scoped ticket creation: concurrent
// messages from the same contact resolve to the same ticket. The database
// backs this with a partial unique index over active tickets.
type Resolver struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*contactLock
}

type contactLock struct {
	sync.Mutex
	refs int
}

// NewResolver creates a ticket resolver.
func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("service", "ticket-resolver")),
		locks:  map[string]*contactLock{},
	}
}

// acquire serializes resolution per (tenant, contact). Entries are
// reference counted and evicted once the last holder releases, so the
// table stays proportional to in-flight resolutions.
func (r *Resolver) acquire(tenantID, contactID string) *contactLock {
	key := tenantID + "/" + contactID
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &contactLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()
	l.Lock()
	return l
}

func (r *Resolver) release(tenantID, contactID string, l *contactLock) {
	l.Unlock()
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, tenantID+"/"+contactID)
	}
	r.mu.Unlock()
}

// Resolve returns the contact's active ticket, reopening the latest
// closed one or creating a fresh one as needed.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (Ticket, error) {
	l := r.acquire(in.TenantID, in.ContactID)
	defer r.release(in.TenantID, in.ContactID, l)

	t, err := r.store.FindActiveByContact(ctx, in.TenantID, in.ContactID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Ticket{}, fmt.Errorf("find active ticket: %w", err)
	}

	latest, err := r.store.FindLatestByContact(ctx, in.TenantID, in.ContactID)
	switch {
	case err == nil && latest.Status == StatusClosed && !in.FromMe:
		return r.reopen(ctx, latest, in)
	case err != nil && !errors.Is(err, ErrNotFound):
		return Ticket{}, fmt.Errorf("find latest ticket: %w", err)
	}

	return r.create(ctx, in)
}

func (r *Resolver) reopen(ctx context.Context, t Ticket, in ResolveInput) (Ticket, error) {
	t.Status = StatusPending
	t.AgentID = ""
	t.IsBot = false
	t.QueueOptionID = ""
	t.Unread = in.Unread
	updated, err := r.store.Update(ctx, t)
	if err != nil {
		return Ticket{}, fmt.Errorf("reopen ticket %s: %w", t.ID, err)
	}
	if _, err := r.store.CreateTracking(ctx, Tracking{TicketID: t.ID, TenantID: t.TenantID}); err != nil {
		return Ticket{}, fmt.Errorf("start tracking episode: %w", err)
	}
	r.logger.Info("ticket reopened",
		slog.String("tenant_id", t.TenantID),
		slog.String("ticket_id", t.ID),
	)
	return updated, nil
}

func (r *Resolver) create(ctx context.Context, in ResolveInput) (Ticket, error) {
	created, err := r.store.Create(ctx, Ticket{
		TenantID:  in.TenantID,
		ContactID: in.ContactID,
		Channel:   in.Channel,
		Status:    StatusPending,
		IsGroup:   in.IsGroup,
		Unread:    in.Unread,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	if _, err := r.store.CreateTracking(ctx, Tracking{TicketID: created.ID, TenantID: created.TenantID}); err != nil {
		return Ticket{}, fmt.Errorf("start tracking episode: %w", err)
	}
	r.logger.Info("ticket created",
		slog.String("tenant_id", created.TenantID),
		slog.String("ticket_id", created.ID),
	)
	return created, nil
}
