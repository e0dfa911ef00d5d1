package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
)

// Rating scale.
const (
	RatingUnsatisfied   = 1
	RatingSatisfied     = 2
	RatingVerySatisfied = 3
)

// ParseRating interprets a contact's reply to the rating prompt. Numeric
// replies are clamped into the 1..3 scale; anything else is not a rating.
func ParseRating(body string) (int, bool) {
	value, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, false
	}
	if value < RatingUnsatisfied {
		return RatingUnsatisfied, true
	}
	if value > RatingVerySatisfied {
		return RatingVerySatisfied, true
	}
	return value, true
}

func ratingPrompt(tenant session.Tenant) string {
	prompt := tenant.RatingMessage
	if prompt == "" {
		prompt = "Please rate our service:"
	}
	return prompt + "\n\n*1* - Unsatisfied\n*2* - Satisfied\n*3* - Very satisfied"
}

// ResolveRating consumes a contact reply on a ticket awaiting its rating.
// It reports whether the message belonged to the rating flow: numeric
// replies record the rating and complete the deferred close, non-numeric
// replies are swallowed and the ticket keeps waiting.
func (s *Service) ResolveRating(ctx context.Context, t Ticket, body string) (bool, error) {
	tr, err := s.store.LatestTracking(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("load tracking: %w", err)
	}
	if !tr.AwaitingRating() {
		return false, nil
	}

	rating, ok := ParseRating(body)
	if !ok {
		return true, nil
	}

	tr.Rated = true
	if err := s.store.UpdateTracking(ctx, tr); err != nil {
		return true, fmt.Errorf("record rating: %w", err)
	}
	s.logger.Info("ticket rated",
		slog.String("tenant_id", t.TenantID),
		slog.String("ticket_id", t.ID),
		slog.Int("rating", rating),
	)

	tenant, err := s.tenants.Get(ctx, t.TenantID)
	if err != nil {
		return true, fmt.Errorf("load tenant: %w", err)
	}
	autoSend, err := s.settings.Enabled(ctx, t.TenantID, settings.KeyMsgAuto)
	if err != nil {
		return true, err
	}
	if _, err := s.finishClose(ctx, t, tr, tenant, t.Status, autoSend); err != nil {
		return true, err
	}
	return true, nil
}
