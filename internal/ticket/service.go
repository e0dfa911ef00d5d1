package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapdesk/zapdesk/internal/event"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
)

// UpdateInput is a partial ticket transition: nil fields are untouched.
type UpdateInput struct {
	TenantID string
	TicketID string
	Status   *Status
	QueueID  *string
	AgentID  *string
}

// Service is the ticket state machine. Every transition persists the
// ticket and its tracking row together and broadcasts the change;
// automated contact notifications ride along gated by the msg_auto flag.
type Service struct {
	store     Store
	queues    QueueStore
	tenants   session.Store
	settings  *settings.Service
	notifier  Notifier
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the ticket state machine service.
func NewService(
	log *slog.Logger,
	store Store,
	queues QueueStore,
	tenants session.Store,
	flags *settings.Service,
	notifier Notifier,
	publisher event.Publisher,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		queues:    queues,
		tenants:   tenants,
		settings:  flags,
		notifier:  notifier,
		publisher: publisher,
		logger:    log.With(slog.String("service", "ticket")),
		now:       time.Now,
	}
}

// Get loads a ticket.
func (s *Service) Get(ctx context.Context, tenantID, ticketID string) (Ticket, error) {
	return s.store.Get(ctx, tenantID, ticketID)
}

// Update applies a status/queue/agent transition with its side effects.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Ticket, error) {
	t, err := s.store.Get(ctx, in.TenantID, in.TicketID)
	if err != nil {
		return Ticket{}, err
	}
	tr, err := s.store.LatestTracking(ctx, t.ID)
	if errors.Is(err, ErrNotFound) {
		tr, err = s.store.CreateTracking(ctx, Tracking{TicketID: t.ID, TenantID: t.TenantID})
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("load tracking: %w", err)
	}

	tenant, err := s.tenants.Get(ctx, t.TenantID)
	if err != nil {
		return Ticket{}, fmt.Errorf("load tenant: %w", err)
	}
	autoSend, err := s.settings.Enabled(ctx, t.TenantID, settings.KeyMsgAuto)
	if err != nil {
		return Ticket{}, err
	}

	oldStatus := t.Status

	// Reassigning or reopening a closed ticket means it re-enters the
	// contact's single active slot, so the duplicate check runs first.
	if t.Status == StatusClosed && (in.Status == nil || *in.Status != StatusClosed) {
		if err := s.checkNoOtherActive(ctx, t); err != nil {
			return Ticket{}, err
		}
		t.Status = StatusPending
		t.IsBot = false
		t.QueueOptionID = ""
	}

	if in.QueueID != nil && *in.QueueID != t.QueueID {
		if err := s.assignQueue(ctx, &t, &tr, *in.QueueID, autoSend); err != nil {
			return Ticket{}, err
		}
	}
	if in.AgentID != nil && *in.AgentID != t.AgentID {
		if err := s.assignAgent(ctx, &t, &tr, *in.AgentID, autoSend); err != nil {
			return Ticket{}, err
		}
	}

	if in.Status != nil {
		switch *in.Status {
		case StatusOpen:
			if oldStatus != StatusOpen {
				tr.StartedAt = s.now()
				tr.RatingAt = time.Time{}
				tr.Rated = false
				s.sendIntroduction(ctx, t, tenant, autoSend)
			}
			t.Status = StatusOpen
			t.IsBot = false

		case StatusClosed:
			ratingEnabled, err := s.settings.Enabled(ctx, t.TenantID, settings.KeyUserRating)
			if err != nil {
				return Ticket{}, err
			}
			if ratingEnabled && tr.RatingAt.IsZero() && !tr.Rated {
				// The close is deferred: the ticket holds its status until
				// the contact answers the rating prompt.
				return s.requestRating(ctx, t, tr, tenant)
			}
			return s.finishClose(ctx, t, tr, tenant, oldStatus, autoSend)

		case StatusPending:
			t.Status = StatusPending
			t.AgentID = ""
			tr.StartedAt = time.Time{}
		}
	}

	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	if err := s.store.UpdateTracking(ctx, tr); err != nil {
		return Ticket{}, fmt.Errorf("update tracking: %w", err)
	}
	s.broadcast(updated, oldStatus)
	return updated, nil
}

func (s *Service) checkNoOtherActive(ctx context.Context, t Ticket) error {
	other, err := s.store.FindActiveByContact(ctx, t.TenantID, t.ContactID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check active ticket: %w", err)
	}
	if other.ID == t.ID {
		return nil
	}
	conflict := &ConflictError{TicketID: other.ID}
	if other.QueueID != "" {
		if q, err := s.queues.GetQueue(ctx, t.TenantID, other.QueueID); err == nil {
			conflict.QueueName = q.Name
		}
	}
	if other.AgentID != "" {
		if a, err := s.queues.GetAgent(ctx, t.TenantID, other.AgentID); err == nil {
			conflict.AgentName = a.Name
		}
	}
	return conflict
}

func (s *Service) assignQueue(ctx context.Context, t *Ticket, tr *Tracking, queueID string, autoSend bool) error {
	if queueID == "" {
		t.QueueID = ""
		return nil
	}
	queue, err := s.queues.GetQueue(ctx, t.TenantID, queueID)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	t.QueueID = queue.ID
	tr.QueuedAt = s.now()
	if autoSend && !t.IsGroup {
		s.notify(ctx, *t, fmt.Sprintf("You have been transferred to the %s team. Please hold on.", queue.Name))
	}
	return nil
}

func (s *Service) assignAgent(ctx context.Context, t *Ticket, tr *Tracking, agentID string, autoSend bool) error {
	if agentID == "" {
		t.AgentID = ""
		tr.AgentID = ""
		return nil
	}
	agent, err := s.queues.GetAgent(ctx, t.TenantID, agentID)
	if err != nil {
		return fmt.Errorf("load agent: %w", err)
	}
	t.AgentID = agent.ID
	tr.AgentID = agent.ID
	if autoSend && !t.IsGroup {
		s.notify(ctx, *t, fmt.Sprintf("Your conversation was handed off to %s.", agent.Name))
	}
	return nil
}

func (s *Service) sendIntroduction(ctx context.Context, t Ticket, tenant session.Tenant, autoSend bool) {
	if !autoSend || t.IsGroup {
		return
	}
	text := tenant.GreetingMessage
	if text == "" && t.AgentID != "" {
		if agent, err := s.queues.GetAgent(ctx, t.TenantID, t.AgentID); err == nil {
			text = fmt.Sprintf("%s will assist you from here.", agent.Name)
		}
	}
	if text != "" {
		s.notify(ctx, t, text)
	}
}

func (s *Service) requestRating(ctx context.Context, t Ticket, tr Tracking, tenant session.Tenant) (Ticket, error) {
	s.notify(ctx, t, ratingPrompt(tenant))
	tr.RatingAt = s.now()
	if err := s.store.UpdateTracking(ctx, tr); err != nil {
		return Ticket{}, fmt.Errorf("stamp rating request: %w", err)
	}
	s.logger.Info("rating requested",
		slog.String("tenant_id", t.TenantID),
		slog.String("ticket_id", t.ID),
	)
	s.broadcast(t, t.Status)
	return t, nil
}

func (s *Service) finishClose(ctx context.Context, t Ticket, tr Tracking, tenant session.Tenant, oldStatus Status, autoSend bool) (Ticket, error) {
	if autoSend && !t.IsGroup && tenant.CompletionMessage != "" {
		s.notify(ctx, t, tenant.CompletionMessage)
	}
	t.Status = StatusClosed
	t.IsBot = false
	t.QueueOptionID = ""
	t.Unread = 0
	tr.FinishedAt = s.now()

	updated, err := s.store.Update(ctx, t)
	if err != nil {
		return Ticket{}, fmt.Errorf("close ticket: %w", err)
	}
	if err := s.store.UpdateTracking(ctx, tr); err != nil {
		return Ticket{}, fmt.Errorf("update tracking: %w", err)
	}
	s.broadcast(updated, oldStatus)
	return updated, nil
}

// notify delivers an automated text, logging failures without failing
// the transition that triggered them.
func (s *Service) notify(ctx context.Context, t Ticket, text string) {
	if err := s.notifier.NotifyContact(ctx, t, text); err != nil {
		s.logger.Error("contact notification failed",
			slog.String("tenant_id", t.TenantID),
			slog.String("ticket_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) broadcast(t Ticket, oldStatus Status) {
	s.publisher.Publish(event.Event{
		TenantID: t.TenantID,
		Name:     event.NameTicket,
		Action:   event.ActionUpdate,
		Rooms:    []string{string(t.Status), t.ID, event.RoomNotification},
		Payload:  t,
	})
	if oldStatus != t.Status {
		s.publisher.Publish(event.Event{
			TenantID: t.TenantID,
			Name:     event.NameTicket,
			Action:   event.ActionDelete,
			Rooms:    []string{string(oldStatus)},
			Payload:  map[string]string{"ticket_id": t.ID},
		})
	}
}
