// Package inbound orchestrates the per-tenant event pipeline: protocol
// events in, filtered and normalized messages out to the ticket, rating,
// out-of-hours, and chatbot stages.
package inbound

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/debounce"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// ContactResolver upserts the contact behind a chat address.
type ContactResolver interface {
	Resolve(ctx context.Context, client wap.Client, tenantID, jid, pushName string) (contact.Contact, error)
}

// TicketResolver finds or creates the active ticket for a contact.
type TicketResolver interface {
	Resolve(ctx context.Context, in ticket.ResolveInput) (ticket.Ticket, error)
}

// RatingResolver consumes replies on tickets awaiting their rating.
type RatingResolver interface {
	ResolveRating(ctx context.Context, t ticket.Ticket, body string) (bool, error)
}

// Registrar persists raw messages and delivery acks.
type Registrar interface {
	Register(ctx context.Context, client wap.Client, in message.RegisterInput) (message.Message, bool, error)
	HandleAck(ctx context.Context, tenantID, externalID string, ack wap.Ack) error
}

// MenuRouter is the chatbot stage.
type MenuRouter interface {
	Wants(t ticket.Ticket) bool
	Handle(ctx context.Context, t ticket.Ticket, body string) (ticket.Ticket, error)
}

// Texter sends automated texts on a ticket.
type Texter interface {
	SendText(ctx context.Context, t ticket.Ticket, text string) error
}

// Router consumes one tenant's session events. Messages inside a batch
// are handled independently; one failing message never aborts its
// siblings.
type Router struct {
	logger    *slog.Logger
	tenants   session.Store
	contacts  ContactResolver
	resolver  TicketResolver
	ratings   RatingResolver
	messages  Registrar
	menu      MenuRouter
	texter    Texter
	flags     *settings.Service
	debouncer *debounce.Dispatcher
	delay     time.Duration
	now       func() time.Time
}

// NewRouter creates the inbound event router.
func NewRouter(
	log *slog.Logger,
	cfg config.WhatsAppConfig,
	tenants session.Store,
	contacts ContactResolver,
	resolver TicketResolver,
	ratings RatingResolver,
	messages Registrar,
	menu MenuRouter,
	texter Texter,
	flags *settings.Service,
	debouncer *debounce.Dispatcher,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		logger:    log.With(slog.String("service", "inbound")),
		tenants:   tenants,
		contacts:  contacts,
		resolver:  resolver,
		ratings:   ratings,
		messages:  messages,
		menu:      menu,
		texter:    texter,
		flags:     flags,
		debouncer: debouncer,
		delay:     cfg.DebounceDelay(),
		now:       time.Now,
	}
}

// HandleSessionEvent dispatches one protocol event from the supervisor.
func (r *Router) HandleSessionEvent(ctx context.Context, tenantID string, client wap.Client, evt wap.Event) {
	switch e := evt.(type) {
	case wap.MessageBatch:
		for _, raw := range e.Messages {
			go func(raw wap.RawMessage) {
				if err := r.handleMessage(ctx, tenantID, client, raw); err != nil {
					r.logger.Error("message handling failed",
						slog.String("tenant_id", tenantID),
						slog.String("external_id", raw.ID),
						slog.String("error", err.Error()),
					)
				}
			}(raw)
		}
	case wap.AckUpdate:
		if err := r.messages.HandleAck(ctx, tenantID, e.MessageID, e.Ack); err != nil {
			r.logger.Error("ack handling failed",
				slog.String("tenant_id", tenantID),
				slog.String("external_id", e.MessageID),
				slog.String("error", err.Error()),
			)
		}
	case wap.CallOffer:
		r.handleCall(ctx, tenantID, client, e)
	}
}

func (r *Router) handleMessage(ctx context.Context, tenantID string, client wap.Client, raw wap.RawMessage) error {
	if r.filtered(ctx, tenantID, raw) {
		return nil
	}
	if r.farewellEcho(ctx, tenantID, raw) {
		return nil
	}
	isGroup := wap.IsGroupJID(raw.ChatJID)

	c, err := r.contacts.Resolve(ctx, client, tenantID, raw.ChatJID, raw.PushName)
	if err != nil {
		return err
	}

	t, err := r.resolver.Resolve(ctx, ticket.ResolveInput{
		TenantID:  tenantID,
		ContactID: c.ID,
		Channel:   "whatsapp",
		IsGroup:   isGroup,
		Unread:    unreadDelta(raw),
		FromMe:    raw.FromMe,
	})
	if err != nil {
		return err
	}

	unread := 0
	if !raw.FromMe {
		unread = t.Unread + unreadDelta(raw)
	}
	m, created, err := r.messages.Register(ctx, client, message.RegisterInput{
		TenantID:  tenantID,
		TicketID:  t.ID,
		ContactID: c.ID,
		Unread:    unread,
		Raw:       raw,
	})
	if err != nil {
		return err
	}
	if !created {
		// Redelivery; every side effect already ran.
		return nil
	}

	if raw.FromMe {
		// Engine sends and agent-typed messages are recorded, never routed.
		return nil
	}

	if !isGroup {
		if err := client.ReadMessages(ctx, raw.ChatJID, []string{raw.ID}); err != nil {
			r.logger.Debug("read receipt failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
	}

	if handled, err := r.ratings.ResolveRating(ctx, t, m.Body); err != nil {
		return err
	} else if handled {
		return nil
	}

	if handled, err := r.outOfHours(ctx, tenantID, t, isGroup); err != nil {
		return err
	} else if handled {
		return nil
	}

	if r.menu.Wants(t) {
		if _, err := r.menu.Handle(ctx, t, m.Body); err != nil {
			return err
		}
	}
	return nil
}

// filtered drops protocol noise and, when the group gate is on, group
// traffic.
func (r *Router) filtered(ctx context.Context, tenantID string, raw wap.RawMessage) bool {
	if raw.StubType != wap.StubNone {
		return true
	}
	if wap.IsBroadcastStatus(raw.ChatJID) {
		return true
	}
	if raw.Content.Kind == wap.KindProtocol {
		return true
	}
	if wap.IsGroupJID(raw.ChatJID) {
		skipGroups, err := r.flags.Enabled(ctx, tenantID, settings.KeyCheckMsgIsGroup)
		if err != nil {
			r.logger.Error("group gate lookup failed", slog.String("error", err.Error()))
			return false
		}
		return skipGroups
	}
	return false
}

// farewellEcho reports whether the event is the tenant's own farewell
// text reflected back on a fully read chat. Routing it would reopen the
// ticket the farewell just closed.
func (r *Router) farewellEcho(ctx context.Context, tenantID string, raw wap.RawMessage) bool {
	if raw.FromMe || raw.UnreadCount != 0 {
		return false
	}
	body, _ := message.ExtractBody(raw.Content)
	body = strings.TrimSpace(body)
	if body == "" {
		return false
	}
	tenant, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		r.logger.Error("tenant lookup failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return false
	}
	farewell := strings.TrimSpace(tenant.FarewellMessage)
	return farewell != "" && body == farewell
}

// outOfHours sends the tenant's closed-hours notice, debounced per
// ticket, and reports whether routing should stop here.
func (r *Router) outOfHours(ctx context.Context, tenantID string, t ticket.Ticket, isGroup bool) (bool, error) {
	if isGroup || t.Status == ticket.StatusOpen {
		return false, nil
	}
	schedule, err := r.flags.Value(ctx, tenantID, settings.KeyScheduleType)
	if err != nil {
		return false, err
	}
	if schedule == settings.ScheduleDisabled {
		return false, nil
	}
	tenant, err := r.tenants.Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if tenant.InsideWorkHours(r.now()) {
		return false, nil
	}
	if tenant.OutOfHoursMessage != "" {
		r.debouncer.Schedule(tenantID, t.ID, r.delay, func() {
			if err := r.texter.SendText(context.WithoutCancel(ctx), t, tenant.OutOfHoursMessage); err != nil {
				r.logger.Error("out-of-hours notice failed",
					slog.String("tenant_id", tenantID),
					slog.String("ticket_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return true, nil
}

// handleCall auto-rejects inbound calls when the tenant disabled them,
// telling the caller why.
func (r *Router) handleCall(ctx context.Context, tenantID string, client wap.Client, call wap.CallOffer) {
	allowed, err := r.flags.Enabled(ctx, tenantID, settings.KeyCall)
	if err != nil {
		r.logger.Error("call flag lookup failed", slog.String("error", err.Error()))
		return
	}
	if allowed {
		return
	}
	if err := client.RejectCall(ctx, call.CallID, call.FromJID); err != nil {
		r.logger.Error("call rejection failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return
	}
	notice := message.Sentinel + "We do not take voice or video calls on this number. Please send a message instead."
	if _, err := client.SendText(ctx, call.FromJID, notice); err != nil {
		r.logger.Error("call notice failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
}

func unreadDelta(raw wap.RawMessage) int {
	if raw.FromMe {
		return 0
	}
	if raw.UnreadCount > 0 {
		return raw.UnreadCount
	}
	return 1
}
