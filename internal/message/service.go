package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapdesk/zapdesk/internal/event"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// RegisterInput binds a raw protocol message to its resolved ticket.
type RegisterInput struct {
	TenantID  string
	TicketID  string
	ContactID string
	Unread    int
	Raw       wap.RawMessage
}

// Service normalizes raw protocol messages into Message rows.
type Service struct {
	store     Store
	tickets   TicketPreview
	fetcher   *Fetcher
	publisher event.Publisher
	logger    *slog.Logger
}

// NewService creates the message normalization service.
func NewService(log *slog.Logger, store Store, tickets TicketPreview, fetcher *Fetcher, publisher event.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		tickets:   tickets,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    log.With(slog.String("service", "message")),
	}
}

// Register persists a raw message once. Redeliveries of an external id
// already stored return the existing row without side effects; this is
// the idempotence boundary of the whole inbound pipeline. The bool
// reports whether a new row was created.
func (s *Service) Register(ctx context.Context, client wap.Client, in RegisterInput) (Message, bool, error) {
	raw := in.Raw
	if existing, err := s.store.GetByExternalID(ctx, in.TenantID, raw.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Message{}, false, fmt.Errorf("dedup lookup: %w", err)
	}

	body, recognized := ExtractBody(raw.Content)
	if !recognized {
		s.logger.Warn("unrecognized message content",
			slog.String("tenant_id", in.TenantID),
			slog.String("external_id", raw.ID),
			slog.String("kind", string(raw.Content.Kind)),
		)
	}

	m := Message{
		ExternalID:  raw.ID,
		TenantID:    in.TenantID,
		TicketID:    in.TicketID,
		ContactID:   in.ContactID,
		Body:        body,
		FromMe:      raw.FromMe,
		Read:        raw.FromMe,
		Ack:         raw.Ack,
		RemoteJID:   raw.ChatJID,
		Participant: raw.Participant,
		RawPayload:  raw.Payload,
	}

	if raw.HasMedia() {
		media, err := s.fetcher.Fetch(ctx, client, in.TenantID, raw)
		if err != nil {
			// The message is still recorded; only the bytes are missing.
			s.logger.Error("attachment download failed",
				slog.String("tenant_id", in.TenantID),
				slog.String("external_id", raw.ID),
				slog.String("error", err.Error()),
			)
			if m.Body == "" {
				m.Body = raw.Content.FileName
			}
		} else {
			m.MediaURL = media.URL
			m.MediaType = media.MimeType
			if m.Body == "" {
				m.Body = media.FileName
			}
		}
	}

	if raw.QuotedID != "" {
		if _, err := s.store.GetByExternalID(ctx, in.TenantID, raw.QuotedID); err == nil {
			m.QuotedMsgID = raw.QuotedID
		}
	}

	stored, inserted, err := s.store.Create(ctx, m)
	if err != nil {
		return Message{}, false, fmt.Errorf("create message: %w", err)
	}
	if !inserted {
		return stored, false, nil
	}

	if err := s.tickets.SetPreview(ctx, in.TenantID, in.TicketID, stored.Body, in.Unread); err != nil {
		s.logger.Error("ticket preview update failed",
			slog.String("tenant_id", in.TenantID),
			slog.String("ticket_id", in.TicketID),
			slog.String("error", err.Error()),
		)
	}

	s.publisher.Publish(event.Event{
		TenantID: in.TenantID,
		Name:     event.NameMessage,
		Action:   event.ActionUpdate,
		Rooms:    []string{in.TicketID, event.RoomNotification},
		Payload:  stored,
	})
	return stored, true, nil
}

// HandleAck records a delivery-state change for an already-stored message.
// Acks for unknown messages are ignored.
func (s *Service) HandleAck(ctx context.Context, tenantID, externalID string, ack wap.Ack) error {
	updated, err := s.store.UpdateAck(ctx, tenantID, externalID, ack)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("ack for unknown message",
			slog.String("tenant_id", tenantID),
			slog.String("external_id", externalID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update ack: %w", err)
	}
	s.publisher.Publish(event.Event{
		TenantID: tenantID,
		Name:     event.NameMessage,
		Action:   event.ActionUpdate,
		Rooms:    []string{updated.TicketID},
		Payload:  updated,
	})
	return nil
}

// ListByTicket returns a ticket's most recent messages.
func (s *Service) ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]Message, error) {
	return s.store.ListByTicket(ctx, tenantID, ticketID, limit)
}
