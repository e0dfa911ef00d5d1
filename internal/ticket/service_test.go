package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zapdesk/zapdesk/internal/event"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
)

type fakeStore struct {
	mu        sync.Mutex
	seq       int
	tickets   map[string]Ticket
	trackings map[string][]Tracking
}

func newFakeStore() *fakeStore {
	return &fakeStore{tickets: map[string]Ticket{}, trackings: map[string][]Tracking{}}
}

func (f *fakeStore) Get(ctx context.Context, tenantID, ticketID string) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok || t.TenantID != tenantID {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) FindActiveByContact(ctx context.Context, tenantID, contactID string) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.TenantID == tenantID && t.ContactID == contactID && t.Active() {
			return t, nil
		}
	}
	return Ticket{}, ErrNotFound
}

func (f *fakeStore) FindLatestByContact(ctx context.Context, tenantID, contactID string) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest Ticket
	found := false
	for _, t := range f.tickets {
		if t.TenantID == tenantID && t.ContactID == contactID {
			if !found || t.UpdatedAt.After(latest.UpdatedAt) {
				latest = t
				found = true
			}
		}
	}
	if !found {
		return Ticket{}, ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) Create(ctx context.Context, t Ticket) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t.ID = fmt.Sprintf("ticket-%d", f.seq)
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeStore) Update(ctx context.Context, t Ticket) (Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tickets[t.ID]; !ok {
		return Ticket{}, ErrNotFound
	}
	t.UpdatedAt = time.Now()
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeStore) SetPreview(ctx context.Context, tenantID, ticketID, lastMessage string, unread int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	t.LastMessage = lastMessage
	t.Unread = unread
	f.tickets[ticketID] = t
	return nil
}

func (f *fakeStore) CreateTracking(ctx context.Context, tr Tracking) (Tracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	tr.ID = fmt.Sprintf("tracking-%d", f.seq)
	tr.CreatedAt = time.Now()
	f.trackings[tr.TicketID] = append(f.trackings[tr.TicketID], tr)
	return tr, nil
}

func (f *fakeStore) LatestTracking(ctx context.Context, ticketID string) (Tracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	episodes := f.trackings[ticketID]
	if len(episodes) == 0 {
		return Tracking{}, ErrNotFound
	}
	return episodes[len(episodes)-1], nil
}

func (f *fakeStore) UpdateTracking(ctx context.Context, tr Tracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	episodes := f.trackings[tr.TicketID]
	for i := range episodes {
		if episodes[i].ID == tr.ID {
			episodes[i] = tr
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) ticketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

type fakeQueueStore struct {
	queues  []Queue
	options map[string][]QueueOption
	agents  map[string]Agent
}

func (f *fakeQueueStore) ListQueues(ctx context.Context, tenantID string) ([]Queue, error) {
	return f.queues, nil
}

func (f *fakeQueueStore) GetQueue(ctx context.Context, tenantID, queueID string) (Queue, error) {
	for _, q := range f.queues {
		if q.ID == queueID {
			return q, nil
		}
	}
	return Queue{}, ErrNotFound
}

func (f *fakeQueueStore) ListOptions(ctx context.Context, queueID string) ([]QueueOption, error) {
	return f.options[queueID], nil
}

func (f *fakeQueueStore) GetOption(ctx context.Context, optionID string) (QueueOption, error) {
	for _, opts := range f.options {
		for _, o := range opts {
			if o.ID == optionID {
				return o, nil
			}
		}
	}
	return QueueOption{}, ErrNotFound
}

func (f *fakeQueueStore) GetAgent(ctx context.Context, tenantID, agentID string) (Agent, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

type fakeTenantStore struct {
	tenant session.Tenant
}

func (f *fakeTenantStore) Get(ctx context.Context, tenantID string) (session.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeTenantStore) List(ctx context.Context) ([]session.Tenant, error) {
	return []session.Tenant{f.tenant}, nil
}

func (f *fakeTenantStore) UpdateStatus(ctx context.Context, tenantID string, status session.Status, pairingCode string, pairingRetries int) error {
	return nil
}

func (f *fakeTenantStore) SaveCredentials(ctx context.Context, tenantID string, blob []byte) error {
	return nil
}

func (f *fakeTenantStore) Wipe(ctx context.Context, tenantID string) error { return nil }

type fakeSettingsStore struct {
	values map[string]string
}

func (f *fakeSettingsStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (f *fakeSettingsStore) Upsert(ctx context.Context, tenantID, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) NotifyContact(ctx context.Context, t Ticket, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capturePublisher) Publish(evt event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *capturePublisher) byAction(action string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store     *fakeStore
	queues    *fakeQueueStore
	notifier  *fakeNotifier
	publisher *capturePublisher
	flags     *fakeSettingsStore
	svc       *Service
}

func newFixture(tenant session.Tenant, flagValues map[string]string) *fixture {
	f := &fixture{
		store:     newFakeStore(),
		queues:    &fakeQueueStore{agents: map[string]Agent{}, options: map[string][]QueueOption{}},
		notifier:  &fakeNotifier{},
		publisher: &capturePublisher{},
		flags:     &fakeSettingsStore{values: flagValues},
	}
	f.svc = NewService(nil, f.store, f.queues, &fakeTenantStore{tenant: tenant},
		settings.NewService(nil, f.flags), f.notifier, f.publisher)
	return f
}

func seedTicket(t *testing.T, f *fixture, ticket Ticket, tr Tracking) Ticket {
	t.Helper()
	created, err := f.store.Create(context.Background(), ticket)
	if err != nil {
		t.Fatal(err)
	}
	tr.TicketID = created.ID
	tr.TenantID = created.TenantID
	if _, err := f.store.CreateTracking(context.Background(), tr); err != nil {
		t.Fatal(err)
	}
	return created
}

func strPtr(s string) *string { return &s }

func statusPtr(s Status) *Status { return &s }

func TestOpenStampsTrackingAndIntroduces(t *testing.T) {
	t.Parallel()

	f := newFixture(
		session.Tenant{ID: "tenant-1", GreetingMessage: "Welcome, an agent will be right with you."},
		map[string]string{settings.KeyMsgAuto: settings.ValueEnabled},
	)
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusPending}, Tracking{})

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusOpen),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusOpen {
		t.Fatalf("expected open, got %s", updated.Status)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.StartedAt.IsZero() {
		t.Fatal("started_at not stamped")
	}
	if sent := f.notifier.sent(); len(sent) != 1 || !strings.Contains(sent[0], "Welcome") {
		t.Fatalf("expected greeting send, got %v", sent)
	}
}

func TestOpenWithoutMsgAutoSendsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1", GreetingMessage: "Welcome"}, nil)
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusPending}, Tracking{})

	if _, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusOpen),
	}); err != nil {
		t.Fatal(err)
	}
	if sent := f.notifier.sent(); len(sent) != 0 {
		t.Fatalf("automated sends are gated by msg_auto, got %v", sent)
	}
}

func TestCloseDefersForRating(t *testing.T) {
	t.Parallel()

	f := newFixture(
		session.Tenant{ID: "tenant-1"},
		map[string]string{
			settings.KeyUserRating: settings.ValueEnabled,
			settings.KeyMsgAuto:    settings.ValueEnabled,
		},
	)
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen}, Tracking{StartedAt: time.Now()})

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusClosed),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusOpen {
		t.Fatalf("close must defer until the rating arrives, got %s", updated.Status)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.RatingAt.IsZero() {
		t.Fatal("rating_at not stamped")
	}
	if sent := f.notifier.sent(); len(sent) != 1 || !strings.Contains(sent[0], "*1*") {
		t.Fatalf("expected rating prompt, got %v", sent)
	}
}

func TestCloseWithoutRatingFinishes(t *testing.T) {
	t.Parallel()

	f := newFixture(
		session.Tenant{ID: "tenant-1", CompletionMessage: "Thanks for reaching out!"},
		map[string]string{settings.KeyMsgAuto: settings.ValueEnabled},
	)
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen, Unread: 3}, Tracking{StartedAt: time.Now()})

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusClosed),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusClosed {
		t.Fatalf("expected closed, got %s", updated.Status)
	}
	if updated.Unread != 0 {
		t.Fatalf("closing must clear unread, got %d", updated.Unread)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.FinishedAt.IsZero() {
		t.Fatal("finished_at not stamped")
	}
	if sent := f.notifier.sent(); len(sent) != 1 || !strings.Contains(sent[0], "Thanks") {
		t.Fatalf("expected completion message, got %v", sent)
	}
}

func TestStatusChangeLeavesOldRoom(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, nil)
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusPending}, Tracking{})

	if _, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusOpen),
	}); err != nil {
		t.Fatal(err)
	}
	removed := f.publisher.byAction(event.ActionDelete)
	if len(removed) != 1 || !removed[0].InRoom(string(StatusPending)) {
		t.Fatalf("expected removal from the pending room, got %+v", removed)
	}
}

func TestQueueTransferNotice(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, map[string]string{settings.KeyMsgAuto: settings.ValueEnabled})
	f.queues.queues = []Queue{{ID: "queue-1", TenantID: "tenant-1", Name: "Billing"}}
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusPending}, Tracking{})

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, QueueID: strPtr("queue-1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.QueueID != "queue-1" {
		t.Fatalf("queue not assigned: %q", updated.QueueID)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.QueuedAt.IsZero() {
		t.Fatal("queued_at not stamped")
	}
	if sent := f.notifier.sent(); len(sent) != 1 || !strings.Contains(sent[0], "Billing") {
		t.Fatalf("expected transfer notice naming the queue, got %v", sent)
	}
}

func TestAgentHandoffNotice(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, map[string]string{settings.KeyMsgAuto: settings.ValueEnabled})
	f.queues.agents["agent-1"] = Agent{ID: "agent-1", TenantID: "tenant-1", Name: "Ana"}
	seeded := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen}, Tracking{StartedAt: time.Now()})

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, AgentID: strPtr("agent-1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.AgentID != "agent-1" {
		t.Fatalf("agent not assigned: %q", updated.AgentID)
	}
	if sent := f.notifier.sent(); len(sent) != 1 || !strings.Contains(sent[0], "Ana") {
		t.Fatalf("expected hand-off notice naming the agent, got %v", sent)
	}
}

func TestPendingClearsAgentAndStart(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, nil)
	seeded := seedTicket(t, f,
		Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen, AgentID: "agent-1"},
		Tracking{StartedAt: time.Now()},
	)

	updated, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: seeded.ID, Status: statusPtr(StatusPending),
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.AgentID != "" {
		t.Fatalf("pending tickets cannot hold an agent, got %q", updated.AgentID)
	}
	tr, err := f.store.LatestTracking(context.Background(), seeded.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.StartedAt.IsZero() {
		t.Fatal("pending tickets cannot have started_at")
	}
}

func TestReopenRejectsWhenContactHasActiveTicket(t *testing.T) {
	t.Parallel()

	f := newFixture(session.Tenant{ID: "tenant-1"}, nil)
	f.queues.queues = []Queue{{ID: "queue-1", TenantID: "tenant-1", Name: "Billing"}}
	closed := seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusClosed}, Tracking{})
	seedTicket(t, f, Ticket{TenantID: "tenant-1", ContactID: "contact-1", Status: StatusOpen, QueueID: "queue-1"}, Tracking{})

	_, err := f.svc.Update(context.Background(), UpdateInput{
		TenantID: "tenant-1", TicketID: closed.ID, Status: statusPtr(StatusOpen),
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflict.QueueName != "Billing" {
		t.Fatalf("conflict should name the holding queue, got %q", conflict.QueueName)
	}
}
