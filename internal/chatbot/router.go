// Package chatbot routes unassigned tickets: it presents the queue menu
// to the contact, interprets selections, and walks queue sub-options.
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/debounce"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// ButtonCeiling is the largest menu rendered as native buttons; larger
// menus in button mode fall back to plain text.
const ButtonCeiling = 4

// BackCommand returns the contact to the top-level queue menu.
const BackCommand = "#"

// Sender delivers menu prompts on a ticket.
type Sender interface {
	SendText(ctx context.Context, t ticket.Ticket, text string) error
	SendButtons(ctx context.Context, t ticket.Ticket, text string, buttons []wap.Button) error
	SendList(ctx context.Context, t ticket.Ticket, text, buttonLabel string, sections []wap.ListSection) error
}

// Router drives queue/menu selection for tickets without a queue or
// agent, and sub-option navigation while the bot flag is set.
type Router struct {
	queues    ticket.QueueStore
	tickets   ticket.Store
	tenants   session.Store
	flags     *settings.Service
	sender    Sender
	debouncer *debounce.Dispatcher
	delay     time.Duration
	logger    *slog.Logger
}

// NewRouter creates the chatbot router.
func NewRouter(
	log *slog.Logger,
	cfg config.WhatsAppConfig,
	queues ticket.QueueStore,
	tickets ticket.Store,
	tenants session.Store,
	flags *settings.Service,
	sender Sender,
	debouncer *debounce.Dispatcher,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		queues:    queues,
		tickets:   tickets,
		tenants:   tenants,
		flags:     flags,
		sender:    sender,
		debouncer: debouncer,
		delay:     cfg.DebounceDelay(),
		logger:    log.With(slog.String("service", "chatbot")),
	}
}

// Wants reports whether the router should see a message on this ticket.
func (r *Router) Wants(t ticket.Ticket) bool {
	if t.IsGroup || t.Status == ticket.StatusClosed {
		return false
	}
	if t.QueueID == "" && t.AgentID == "" {
		return true
	}
	return t.IsBot
}

// Handle interprets one contact message on an unassigned or bot-driven
// ticket and returns the possibly-updated ticket.
func (r *Router) Handle(ctx context.Context, t ticket.Ticket, body string) (ticket.Ticket, error) {
	autoSend, err := r.flags.Enabled(ctx, t.TenantID, settings.KeyMsgAuto)
	if err != nil {
		return t, err
	}
	if t.QueueID == "" && t.AgentID == "" {
		return r.selectQueue(ctx, t, body, autoSend)
	}
	if t.IsBot && t.QueueID != "" {
		return r.selectOption(ctx, t, body, autoSend)
	}
	return t, nil
}

func (r *Router) selectQueue(ctx context.Context, t ticket.Ticket, body string, autoSend bool) (ticket.Ticket, error) {
	queues, err := r.queues.ListQueues(ctx, t.TenantID)
	if err != nil {
		return t, fmt.Errorf("list queues: %w", err)
	}
	switch len(queues) {
	case 0:
		return t, nil
	case 1:
		// A single queue needs no menu.
		return r.assignQueue(ctx, t, queues[0], false, autoSend)
	}

	if idx, ok := menuIndex(body, len(queues)); ok {
		return r.assignQueue(ctx, t, queues[idx], true, autoSend)
	}

	// Unresolved selection: re-present the menu, coalesced so a burst of
	// messages yields a single prompt.
	if autoSend {
		r.debouncer.Schedule(t.TenantID, t.ID, r.delay, func() {
			r.presentQueueMenu(context.WithoutCancel(ctx), t, queues)
		})
	}
	return t, nil
}

func (r *Router) assignQueue(ctx context.Context, t ticket.Ticket, q ticket.Queue, present, autoSend bool) (ticket.Ticket, error) {
	r.debouncer.Cancel(t.ID)
	options, err := r.queues.ListOptions(ctx, q.ID)
	if err != nil {
		return t, fmt.Errorf("list queue options: %w", err)
	}

	t.QueueID = q.ID
	t.IsBot = len(options) > 0
	updated, err := r.tickets.Update(ctx, t)
	if err != nil {
		return t, fmt.Errorf("assign queue: %w", err)
	}
	r.logger.Info("queue selected",
		slog.String("tenant_id", t.TenantID),
		slog.String("ticket_id", t.ID),
		slog.String("queue_id", q.ID),
	)

	if !present || !autoSend {
		return updated, nil
	}
	if len(options) > 0 {
		r.presentOptionMenu(ctx, updated, q, options)
	} else if q.Greeting != "" {
		r.send(ctx, updated, q.Greeting)
	}
	return updated, nil
}

func (r *Router) selectOption(ctx context.Context, t ticket.Ticket, body string, autoSend bool) (ticket.Ticket, error) {
	if strings.TrimSpace(body) == BackCommand {
		return r.backToMainMenu(ctx, t, autoSend)
	}

	options, err := r.queues.ListOptions(ctx, t.QueueID)
	if err != nil {
		return t, fmt.Errorf("list queue options: %w", err)
	}
	if len(options) == 0 {
		t.IsBot = false
		return r.tickets.Update(ctx, t)
	}

	if idx, ok := menuIndex(body, len(options)); ok {
		option := options[idx]
		t.QueueOptionID = option.ID
		t.IsBot = false
		updated, err := r.tickets.Update(ctx, t)
		if err != nil {
			return t, fmt.Errorf("select option: %w", err)
		}
		r.debouncer.Cancel(t.ID)
		if autoSend && option.Message != "" {
			r.send(ctx, updated, option.Message)
		}
		return updated, nil
	}

	if autoSend {
		queue, err := r.queues.GetQueue(ctx, t.TenantID, t.QueueID)
		if err != nil {
			return t, fmt.Errorf("load queue: %w", err)
		}
		r.debouncer.Schedule(t.TenantID, t.ID, r.delay, func() {
			r.presentOptionMenu(context.WithoutCancel(ctx), t, queue, options)
		})
	}
	return t, nil
}

func (r *Router) backToMainMenu(ctx context.Context, t ticket.Ticket, autoSend bool) (ticket.Ticket, error) {
	t.QueueID = ""
	t.QueueOptionID = ""
	t.IsBot = false
	updated, err := r.tickets.Update(ctx, t)
	if err != nil {
		return t, fmt.Errorf("reset queue: %w", err)
	}
	queues, err := r.queues.ListQueues(ctx, t.TenantID)
	if err != nil {
		return updated, fmt.Errorf("list queues: %w", err)
	}
	if autoSend && len(queues) > 1 {
		r.presentQueueMenu(ctx, updated, queues)
	}
	return updated, nil
}

func (r *Router) presentQueueMenu(ctx context.Context, t ticket.Ticket, queues []ticket.Queue) {
	title := r.menuTitle(ctx, t.TenantID)
	items := make([]menuItem, len(queues))
	for i, q := range queues {
		items[i] = menuItem{Name: q.Name}
	}
	r.present(ctx, t, title, items)
}

func (r *Router) presentOptionMenu(ctx context.Context, t ticket.Ticket, q ticket.Queue, options []ticket.QueueOption) {
	title := q.Greeting
	if title == "" {
		title = fmt.Sprintf("%s, how can we help?", q.Name)
	}
	items := make([]menuItem, len(options))
	for i, o := range options {
		items[i] = menuItem{Name: o.Name}
	}
	r.present(ctx, t, title+"\n\nSend "+BackCommand+" to return to the main menu.", items)
}

type menuItem struct {
	Name string
}

func (r *Router) present(ctx context.Context, t ticket.Ticket, title string, items []menuItem) {
	mode, err := r.flags.Value(ctx, t.TenantID, settings.KeyChatBotType)
	if err != nil {
		r.logger.Error("chatbot mode lookup failed", slog.String("error", err.Error()))
		mode = settings.ChatBotText
	}
	// Interactive modes degrade to plain text when the send fails or the
	// button ceiling is exceeded.
	switch mode {
	case settings.ChatBotButton:
		if len(items) <= ButtonCeiling {
			buttons := make([]wap.Button, len(items))
			for i, item := range items {
				buttons[i] = wap.Button{ID: strconv.Itoa(i + 1), Label: item.Name}
			}
			if err := r.sender.SendButtons(ctx, t, title, buttons); err == nil {
				return
			}
		}
	case settings.ChatBotList:
		rows := make([]wap.ListRow, len(items))
		for i, item := range items {
			rows[i] = wap.ListRow{ID: strconv.Itoa(i + 1), Title: item.Name}
		}
		sections := []wap.ListSection{{Title: "Options", Rows: rows}}
		if err := r.sender.SendList(ctx, t, title, "Choose", sections); err == nil {
			return
		}
	}

	var b strings.Builder
	b.WriteString(title)
	for i, item := range items {
		fmt.Fprintf(&b, "\n*[ %d ]* %s", i+1, item.Name)
	}
	r.send(ctx, t, b.String())
}

func (r *Router) menuTitle(ctx context.Context, tenantID string) string {
	tenant, err := r.tenants.Get(ctx, tenantID)
	if err == nil && tenant.GreetingMessage != "" {
		return tenant.GreetingMessage
	}
	return "Hi! Choose the team you want to talk to:"
}

func (r *Router) send(ctx context.Context, t ticket.Ticket, text string) {
	if err := r.sender.SendText(ctx, t, text); err != nil {
		r.logger.Error("menu send failed",
			slog.String("tenant_id", t.TenantID),
			slog.String("ticket_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

// menuIndex parses a 1-based menu selection, returning the 0-based index.
func menuIndex(body string, size int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || idx < 1 || idx > size {
		return 0, false
	}
	return idx - 1, true
}
