// Package message is the normalization pipeline: it converts raw protocol
// events into persisted Message records, deduplicates redeliveries, fetches
// attachments, and tracks delivery acks.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zapdesk/zapdesk/internal/wap"
)

// Sentinel prefixes every automated text this engine sends, so its own
// messages can be told apart from ones an agent typed on the paired
// device. It renders as a zero-width character.
const Sentinel = "‎"

// ErrNotFound indicates the message does not exist.
var ErrNotFound = errors.New("message not found")

// Message is one canonical, persisted protocol message.
type Message struct {
	ID          string
	ExternalID  string
	TenantID    string
	TicketID    string
	ContactID   string
	Body        string
	FromMe      bool
	Read        bool
	Ack         wap.Ack
	MediaURL    string
	MediaType   string
	QuotedMsgID string
	RemoteJID   string
	Participant string
	RawPayload  json.RawMessage
	CreatedAt   time.Time
}

// Automated reports whether the message was sent by this engine rather
// than typed by a human on the paired device.
func (m Message) Automated() bool {
	return m.FromMe && len(m.Body) >= len(Sentinel) && m.Body[:len(Sentinel)] == Sentinel
}

// Store persists messages. Create must be idempotent on
// (tenant, external id): redelivered duplicates return the existing row
// with created=false.
type Store interface {
	GetByExternalID(ctx context.Context, tenantID, externalID string) (Message, error)
	Create(ctx context.Context, m Message) (created Message, inserted bool, err error)
	UpdateAck(ctx context.Context, tenantID, externalID string, ack wap.Ack) (Message, error)
	ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]Message, error)
}

// TicketPreview is the slice of the ticket store the normalizer touches:
// the last-message preview and unread counter.
type TicketPreview interface {
	SetPreview(ctx context.Context, tenantID, ticketID, lastMessage string, unread int) error
}
