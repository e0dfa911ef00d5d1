// Package outbound delivers engine-originated messages through a tenant's
// live session and records them like any inbound event, so the message
// history stays complete and redelivered echoes deduplicate.
package outbound

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// Service sends messages on behalf of tickets.
type Service struct {
	registry *session.Registry
	contacts contact.Store
	messages *message.Service
	logger   *slog.Logger
}

// NewService creates the outbound send service.
func NewService(log *slog.Logger, registry *session.Registry, contacts contact.Store, messages *message.Service) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		registry: registry,
		contacts: contacts,
		messages: messages,
		logger:   log.With(slog.String("service", "outbound")),
	}
}

func (s *Service) deliver(ctx context.Context, t ticket.Ticket, do func(wap.Client, string) (wap.RawMessage, error)) error {
	active, err := s.registry.Get(t.TenantID)
	if err != nil {
		return fmt.Errorf("tenant %s: %w", t.TenantID, err)
	}
	c, err := s.contacts.Get(ctx, t.TenantID, t.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}
	raw, err := do(active.Client, c.JID)
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.JID, err)
	}
	if _, _, err := s.messages.Register(ctx, active.Client, message.RegisterInput{
		TenantID:  t.TenantID,
		TicketID:  t.ID,
		ContactID: t.ContactID,
		Unread:    0,
		Raw:       raw,
	}); err != nil {
		s.logger.Error("outbound message not recorded",
			slog.String("tenant_id", t.TenantID),
			slog.String("ticket_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// SendText sends an automated text on a ticket. The sentinel prefix marks
// it as engine-sent for the self-message gate.
func (s *Service) SendText(ctx context.Context, t ticket.Ticket, text string) error {
	return s.deliver(ctx, t, func(client wap.Client, jid string) (wap.RawMessage, error) {
		return client.SendText(ctx, jid, message.Sentinel+text)
	})
}

// NotifyContact delivers a ticket-transition notice to the contact.
func (s *Service) NotifyContact(ctx context.Context, t ticket.Ticket, text string) error {
	return s.SendText(ctx, t, text)
}

// SendButtons sends an interactive button menu on a ticket.
func (s *Service) SendButtons(ctx context.Context, t ticket.Ticket, text string, buttons []wap.Button) error {
	return s.deliver(ctx, t, func(client wap.Client, jid string) (wap.RawMessage, error) {
		return client.SendButtons(ctx, jid, message.Sentinel+text, buttons)
	})
}

// SendList sends a selectable list menu on a ticket.
func (s *Service) SendList(ctx context.Context, t ticket.Ticket, text, buttonLabel string, sections []wap.ListSection) error {
	return s.deliver(ctx, t, func(client wap.Client, jid string) (wap.RawMessage, error) {
		return client.SendList(ctx, jid, message.Sentinel+text, buttonLabel, sections)
	})
}

// SendMedia sends an attachment on a ticket.
func (s *Service) SendMedia(ctx context.Context, t ticket.Ticket, media wap.MediaPayload) error {
	return s.deliver(ctx, t, func(client wap.Client, jid string) (wap.RawMessage, error) {
		return client.SendMedia(ctx, jid, media)
	})
}
