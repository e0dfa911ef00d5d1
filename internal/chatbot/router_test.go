package chatbot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/debounce"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

type fakeTicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticket.Ticket
}

func (f *fakeTicketStore) Get(ctx context.Context, tenantID, ticketID string) (ticket.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return ticket.Ticket{}, ticket.ErrNotFound
	}
	return t, nil
}

func (f *fakeTicketStore) FindActiveByContact(ctx context.Context, tenantID, contactID string) (ticket.Ticket, error) {
	return ticket.Ticket{}, ticket.ErrNotFound
}

func (f *fakeTicketStore) FindLatestByContact(ctx context.Context, tenantID, contactID string) (ticket.Ticket, error) {
	return ticket.Ticket{}, ticket.ErrNotFound
}

func (f *fakeTicketStore) Create(ctx context.Context, t ticket.Ticket) (ticket.Ticket, error) {
	return t, nil
}

func (f *fakeTicketStore) Update(ctx context.Context, t ticket.Ticket) (ticket.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickets == nil {
		f.tickets = map[string]ticket.Ticket{}
	}
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeTicketStore) SetPreview(ctx context.Context, tenantID, ticketID, lastMessage string, unread int) error {
	return nil
}

func (f *fakeTicketStore) CreateTracking(ctx context.Context, tr ticket.Tracking) (ticket.Tracking, error) {
	return tr, nil
}

func (f *fakeTicketStore) LatestTracking(ctx context.Context, ticketID string) (ticket.Tracking, error) {
	return ticket.Tracking{}, ticket.ErrNotFound
}

func (f *fakeTicketStore) UpdateTracking(ctx context.Context, tr ticket.Tracking) error {
	return nil
}

type fakeQueueStore struct {
	queues  []ticket.Queue
	options map[string][]ticket.QueueOption
}

func (f *fakeQueueStore) ListQueues(ctx context.Context, tenantID string) ([]ticket.Queue, error) {
	return f.queues, nil
}

func (f *fakeQueueStore) GetQueue(ctx context.Context, tenantID, queueID string) (ticket.Queue, error) {
	for _, q := range f.queues {
		if q.ID == queueID {
			return q, nil
		}
	}
	return ticket.Queue{}, ticket.ErrNotFound
}

func (f *fakeQueueStore) ListOptions(ctx context.Context, queueID string) ([]ticket.QueueOption, error) {
	return f.options[queueID], nil
}

func (f *fakeQueueStore) GetOption(ctx context.Context, optionID string) (ticket.QueueOption, error) {
	for _, opts := range f.options {
		for _, o := range opts {
			if o.ID == optionID {
				return o, nil
			}
		}
	}
	return ticket.QueueOption{}, ticket.ErrNotFound
}

func (f *fakeQueueStore) GetAgent(ctx context.Context, tenantID, agentID string) (ticket.Agent, error) {
	return ticket.Agent{}, ticket.ErrNotFound
}

type fakeTenants struct {
	tenant session.Tenant
}

func (f *fakeTenants) Get(ctx context.Context, tenantID string) (session.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeTenants) List(ctx context.Context) ([]session.Tenant, error) {
	return []session.Tenant{f.tenant}, nil
}

func (f *fakeTenants) UpdateStatus(ctx context.Context, tenantID string, status session.Status, pairingCode string, pairingRetries int) error {
	return nil
}

func (f *fakeTenants) SaveCredentials(ctx context.Context, tenantID string, blob []byte) error {
	return nil
}

func (f *fakeTenants) Wipe(ctx context.Context, tenantID string) error { return nil }

type fakeFlagStore struct {
	values map[string]string
}

func (f *fakeFlagStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (f *fakeFlagStore) Upsert(ctx context.Context, tenantID, key, value string) error {
	return nil
}

type sentPrompt struct {
	kind string
	text string
}

type fakeSender struct {
	mu      sync.Mutex
	prompts []sentPrompt
}

func (f *fakeSender) SendText(ctx context.Context, t ticket.Ticket, text string) error {
	f.record("text", text)
	return nil
}

func (f *fakeSender) SendButtons(ctx context.Context, t ticket.Ticket, text string, buttons []wap.Button) error {
	f.record("buttons", text)
	return nil
}

func (f *fakeSender) SendList(ctx context.Context, t ticket.Ticket, text, buttonLabel string, sections []wap.ListSection) error {
	f.record("list", text)
	return nil
}

func (f *fakeSender) record(kind, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, sentPrompt{kind: kind, text: text})
}

func (f *fakeSender) sent() []sentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPrompt(nil), f.prompts...)
}

type bench struct {
	store  *fakeTicketStore
	queues *fakeQueueStore
	sender *fakeSender
	router *Router
}

func newBench(flags map[string]string, queues []ticket.Queue) *bench {
	if flags == nil {
		flags = map[string]string{}
	}
	if _, ok := flags[settings.KeyMsgAuto]; !ok {
		flags[settings.KeyMsgAuto] = settings.ValueEnabled
	}
	b := &bench{
		store:  &fakeTicketStore{},
		queues: &fakeQueueStore{queues: queues, options: map[string][]ticket.QueueOption{}},
		sender: &fakeSender{},
	}
	cfg := config.WhatsAppConfig{DebounceDelayMs: 10}
	b.router = NewRouter(nil, cfg, b.queues, b.store, &fakeTenants{tenant: session.Tenant{ID: "tenant-1"}},
		settings.NewService(nil, &fakeFlagStore{values: flags}), b.sender, debounce.NewDispatcher())
	return b
}

func pendingTicket() ticket.Ticket {
	return ticket.Ticket{ID: "ticket-1", TenantID: "tenant-1", ContactID: "contact-1", Status: ticket.StatusPending}
}

func twoQueues() []ticket.Queue {
	return []ticket.Queue{
		{ID: "queue-1", TenantID: "tenant-1", Name: "Support", Greeting: "Welcome to Support!"},
		{ID: "queue-2", TenantID: "tenant-1", Name: "Sales"},
	}
}

func waitPrompts(t *testing.T, sender *fakeSender, want int) []sentPrompt {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := sender.sent(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d prompts, got %v", want, sender.sent())
	return nil
}

func TestValidSelectionAssignsQueue(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	updated, err := b.router.Handle(context.Background(), pendingTicket(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "queue-1" {
		t.Fatalf("expected queue-1, got %q", updated.QueueID)
	}

	prompts := waitPrompts(t, b.sender, 1)
	if len(prompts) != 1 || !strings.Contains(prompts[0].text, "Welcome to Support") {
		t.Fatalf("expected the queue greeting only, got %v", prompts)
	}

	// No menu re-prompt may fire later.
	time.Sleep(30 * time.Millisecond)
	if got := b.sender.sent(); len(got) != 1 {
		t.Fatalf("selection must not re-prompt, got %v", got)
	}
}

func TestInvalidSelectionRepresentsMenu(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	updated, err := b.router.Handle(context.Background(), pendingTicket(), "9")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "" {
		t.Fatalf("unresolved selection must leave the queue unset, got %q", updated.QueueID)
	}

	prompts := waitPrompts(t, b.sender, 1)
	if !strings.Contains(prompts[0].text, "Support") || !strings.Contains(prompts[0].text, "Sales") {
		t.Fatalf("menu must list every queue, got %q", prompts[0].text)
	}
}

func TestSingleQueueAutoAssignsSilently(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues()[:1])
	updated, err := b.router.Handle(context.Background(), pendingTicket(), "anything at all")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "queue-1" {
		t.Fatalf("expected auto-assignment, got %q", updated.QueueID)
	}

	time.Sleep(30 * time.Millisecond)
	if got := b.sender.sent(); len(got) != 0 {
		t.Fatalf("single-queue tenants get zero prompts, got %v", got)
	}
}

func TestBurstYieldsOneMenuPrompt(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	for range 5 {
		if _, err := b.router.Handle(context.Background(), pendingTicket(), "???"); err != nil {
			t.Fatal(err)
		}
	}

	waitPrompts(t, b.sender, 1)
	time.Sleep(30 * time.Millisecond)
	if got := b.sender.sent(); len(got) != 1 {
		t.Fatalf("burst must coalesce to one prompt, got %d", len(got))
	}
}

func TestButtonModeRespectsCeiling(t *testing.T) {
	t.Parallel()

	queues := []ticket.Queue{
		{ID: "q1", Name: "A"}, {ID: "q2", Name: "B"},
		{ID: "q3", Name: "C"}, {ID: "q4", Name: "D"},
	}
	b := newBench(map[string]string{settings.KeyChatBotType: settings.ChatBotButton}, queues)
	if _, err := b.router.Handle(context.Background(), pendingTicket(), "nope"); err != nil {
		t.Fatal(err)
	}
	prompts := waitPrompts(t, b.sender, 1)
	if prompts[0].kind != "buttons" {
		t.Fatalf("4 options fit the button ceiling, got %q", prompts[0].kind)
	}
}

func TestButtonModeFallsBackToText(t *testing.T) {
	t.Parallel()

	queues := []ticket.Queue{
		{ID: "q1", Name: "A"}, {ID: "q2", Name: "B"}, {ID: "q3", Name: "C"},
		{ID: "q4", Name: "D"}, {ID: "q5", Name: "E"},
	}
	b := newBench(map[string]string{settings.KeyChatBotType: settings.ChatBotButton}, queues)
	if _, err := b.router.Handle(context.Background(), pendingTicket(), "nope"); err != nil {
		t.Fatal(err)
	}
	prompts := waitPrompts(t, b.sender, 1)
	if prompts[0].kind != "text" {
		t.Fatalf("5 options exceed the button ceiling, got %q", prompts[0].kind)
	}
}

func TestListModeIgnoresCount(t *testing.T) {
	t.Parallel()

	queues := []ticket.Queue{
		{ID: "q1", Name: "A"}, {ID: "q2", Name: "B"}, {ID: "q3", Name: "C"},
		{ID: "q4", Name: "D"}, {ID: "q5", Name: "E"}, {ID: "q6", Name: "F"},
	}
	b := newBench(map[string]string{settings.KeyChatBotType: settings.ChatBotList}, queues)
	if _, err := b.router.Handle(context.Background(), pendingTicket(), "nope"); err != nil {
		t.Fatal(err)
	}
	prompts := waitPrompts(t, b.sender, 1)
	if prompts[0].kind != "list" {
		t.Fatalf("list mode renders lists regardless of count, got %q", prompts[0].kind)
	}
}

func TestQueueWithOptionsPresentsSubMenu(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	b.queues.options["queue-1"] = []ticket.QueueOption{
		{ID: "opt-1", QueueID: "queue-1", Name: "Invoices", Message: "Send us the invoice number."},
		{ID: "opt-2", QueueID: "queue-1", Name: "Refunds", Message: "Tell us your order id."},
	}

	updated, err := b.router.Handle(context.Background(), pendingTicket(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if !updated.IsBot {
		t.Fatal("tickets entering a sub-menu must keep the bot flag")
	}
	prompts := waitPrompts(t, b.sender, 1)
	if !strings.Contains(prompts[0].text, "Invoices") || !strings.Contains(prompts[0].text, "Refunds") {
		t.Fatalf("sub-menu must list the options, got %q", prompts[0].text)
	}
}

func TestSubOptionSelection(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	b.queues.options["queue-1"] = []ticket.QueueOption{
		{ID: "opt-1", QueueID: "queue-1", Name: "Invoices", Message: "Send us the invoice number."},
		{ID: "opt-2", QueueID: "queue-1", Name: "Refunds", Message: "Tell us your order id."},
	}
	t1 := pendingTicket()
	t1.QueueID = "queue-1"
	t1.IsBot = true

	updated, err := b.router.Handle(context.Background(), t1, "2")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueOptionID != "opt-2" {
		t.Fatalf("expected opt-2, got %q", updated.QueueOptionID)
	}
	if updated.IsBot {
		t.Fatal("a resolved option ends the bot flow")
	}
	prompts := waitPrompts(t, b.sender, 1)
	if !strings.Contains(prompts[0].text, "order id") {
		t.Fatalf("expected the option message, got %q", prompts[0].text)
	}
}

func TestBackCommandReturnsToMainMenu(t *testing.T) {
	t.Parallel()

	b := newBench(nil, twoQueues())
	b.queues.options["queue-1"] = []ticket.QueueOption{{ID: "opt-1", Name: "Invoices"}}
	t1 := pendingTicket()
	t1.QueueID = "queue-1"
	t1.IsBot = true

	updated, err := b.router.Handle(context.Background(), t1, "#")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "" || updated.IsBot {
		t.Fatalf("back command must reset the queue, got %+v", updated)
	}
	prompts := waitPrompts(t, b.sender, 1)
	if !strings.Contains(prompts[0].text, "Support") || !strings.Contains(prompts[0].text, "Sales") {
		t.Fatalf("expected the main menu, got %q", prompts[0].text)
	}
}

func TestMsgAutoDisabledAssignsSilently(t *testing.T) {
	t.Parallel()

	b := newBench(map[string]string{settings.KeyMsgAuto: settings.ValueDisabled}, twoQueues())
	updated, err := b.router.Handle(context.Background(), pendingTicket(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "queue-2" {
		t.Fatalf("selection must still assign, got %q", updated.QueueID)
	}
	time.Sleep(30 * time.Millisecond)
	if got := b.sender.sent(); len(got) != 0 {
		t.Fatalf("msg_auto disabled means no prompts, got %v", got)
	}
}
