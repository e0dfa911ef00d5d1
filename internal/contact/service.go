package contact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zapdesk/zapdesk/internal/wap"
)

// Service resolves chat peers into stored contacts.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a contact service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "contact")),
	}
}

// Resolve upserts the contact for a chat address, refreshing its display
// name and avatar. Group names come from group metadata; person names
// fall back from push name to the bare number. Avatar lookups are
// best-effort and never fail the resolution.
func (s *Service) Resolve(ctx context.Context, client wap.Client, tenantID, jid, pushName string) (Contact, error) {
	c := Contact{
		TenantID: tenantID,
		JID:      jid,
		Name:     pushName,
		IsGroup:  wap.IsGroupJID(jid),
	}

	if c.IsGroup {
		info, err := client.GroupMetadata(ctx, jid)
		if err != nil {
			return Contact{}, fmt.Errorf("group metadata for %s: %w", jid, err)
		}
		c.Name = info.Subject
	}
	if c.Name == "" {
		c.Name = wap.BareNumber(jid)
	}

	if url, err := client.ProfilePictureURL(ctx, jid); err == nil {
		c.AvatarURL = url
	} else {
		s.logger.Debug("profile picture lookup failed",
			slog.String("jid", jid),
			slog.String("error", err.Error()),
		)
	}

	stored, err := s.store.Upsert(ctx, c)
	if err != nil {
		return Contact{}, fmt.Errorf("upsert contact %s: %w", jid, err)
	}
	return stored, nil
}

// Get loads a contact by id.
func (s *Service) Get(ctx context.Context, tenantID, contactID string) (Contact, error) {
	return s.store.Get(ctx, tenantID, contactID)
}
