// Package ticket owns the conversation ticket lifecycle: resolution of
// inbound messages to their owning ticket, the status state machine, and
// the rating flow that closes an episode.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
)

// ErrNotFound indicates the ticket does not exist.
var ErrNotFound = errors.New("ticket not found")

// ConflictError reports that the contact already has an active ticket,
// naming where it currently sits so the caller can surface it.
type ConflictError struct {
	TicketID  string
	QueueName string
	AgentName string
}

func (e *ConflictError) Error() string {
	switch {
	case e.AgentName != "":
		return fmt.Sprintf("contact already has an active ticket with agent %s", e.AgentName)
	case e.QueueName != "":
		return fmt.Sprintf("contact already has an active ticket in queue %s", e.QueueName)
	default:
		return "contact already has an active ticket"
	}
}

// Ticket is one customer-support conversation episode.
type Ticket struct {
	ID            string
	TenantID      string
	ContactID     string
	QueueID       string
	AgentID       string
	Channel       string
	Status        Status
	IsGroup       bool
	IsBot         bool
	QueueOptionID string
	Unread        int
	LastMessage   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the ticket occupies the contact's single
// open-or-pending slot.
func (t Ticket) Active() bool {
	return t.Status == StatusOpen || t.Status == StatusPending
}

// Tracking records one ticket episode's milestones. A reopen starts a
// fresh row; the old episode keeps its stamps.
type Tracking struct {
	ID         string
	TicketID   string
	TenantID   string
	AgentID    string
	QueuedAt   time.Time
	StartedAt  time.Time
	RatingAt   time.Time
	Rated      bool
	FinishedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AwaitingRating reports whether the episode sent a rating prompt that
// has not been answered yet.
func (tr Tracking) AwaitingRating() bool {
	return !tr.RatingAt.IsZero() && !tr.Rated
}

// Queue is a routing target, read-only from this engine's perspective.
type Queue struct {
	ID       string
	TenantID string
	Name     string
	Greeting string
	Position int
}

// QueueOption is one chatbot menu entry under a queue.
type QueueOption struct {
	ID       string
	QueueID  string
	Name     string
	Message  string
	Position int
}

// Agent is a human operator tickets can be assigned to.
type Agent struct {
	ID       string
	TenantID string
	Name     string
	Email    string
}

// Store persists tickets and their tracking rows.
type Store interface {
	Get(ctx context.Context, tenantID, ticketID string) (Ticket, error)
	// FindActiveByContact returns the contact's open-or-pending ticket.
	FindActiveByContact(ctx context.Context, tenantID, contactID string) (Ticket, error)
	// FindLatestByContact returns the contact's most recent ticket in any status.
	FindLatestByContact(ctx context.Context, tenantID, contactID string) (Ticket, error)
	Create(ctx context.Context, t Ticket) (Ticket, error)
	Update(ctx context.Context, t Ticket) (Ticket, error)
	// SetPreview updates the last-message preview and unread counter.
	SetPreview(ctx context.Context, tenantID, ticketID, lastMessage string, unread int) error

	CreateTracking(ctx context.Context, tr Tracking) (Tracking, error)
	// LatestTracking returns the current episode's tracking row.
	LatestTracking(ctx context.Context, ticketID string) (Tracking, error)
	UpdateTracking(ctx context.Context, tr Tracking) error
}

// QueueStore reads the tenant's routing configuration, managed elsewhere.
type QueueStore interface {
	ListQueues(ctx context.Context, tenantID string) ([]Queue, error)
	GetQueue(ctx context.Context, tenantID, queueID string) (Queue, error)
	ListOptions(ctx context.Context, queueID string) ([]QueueOption, error)
	GetOption(ctx context.Context, optionID string) (QueueOption, error)
	GetAgent(ctx context.Context, tenantID, agentID string) (Agent, error)
}

// Notifier delivers automated texts to the ticket's contact through the
// tenant's live session, recording them as outbound messages.
type Notifier interface {
	NotifyContact(ctx context.Context, t Ticket, text string) error
}
