// Package event carries the realtime notifications this engine emits for
// UI consumers: session, ticket, and message updates scoped by tenant and
// by ticket-status room.
package event

import (
	"log/slog"
	"sync"
)

// Event names.
const (
	NameSession = "session"
	NameTicket  = "ticket"
	NameMessage = "message"
)

// Event actions.
const (
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Well-known rooms. Tickets additionally use their status ("pending",
// "open", "closed") and their id as rooms.
const (
	RoomNotification = "notification"
)

// Event is a single realtime notification.
type Event struct {
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Action   string   `json:"action"`
	Rooms    []string `json:"rooms,omitempty"`
	Payload  any      `json:"payload,omitempty"`
}

// InRoom reports whether the event targets the given room. An event with no
// rooms is tenant-wide.
func (e Event) InRoom(room string) bool {
	if len(e.Rooms) == 0 {
		return true
	}
	for _, r := range e.Rooms {
		if r == room {
			return true
		}
	}
	return false
}

// Publisher is the write side of the hub, consumed by the session, ticket,
// and message services.
type Publisher interface {
	Publish(evt Event)
}

// Subscription is one consumer's buffered event feed.
type Subscription struct {
	C      chan Event
	tenant string
	hub    *Hub
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans events out to websocket subscribers. Slow subscribers are
// dropped-from rather than blocked-on: realtime updates are best-effort and
// the persistence layer remains the source of truth.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub creates an event hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger: log.With(slog.String("component", "event-hub")),
		subs:   map[*Subscription]struct{}{},
	}
}

// Subscribe registers a consumer for one tenant's events. An empty tenant id
// subscribes to all tenants.
func (h *Hub) Subscribe(tenantID string) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, 64),
		tenant: tenantID,
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.C)
	}
	h.mu.Unlock()
}

// Publish delivers the event to every matching subscription.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.tenant != "" && sub.tenant != evt.TenantID {
			continue
		}
		select {
		case sub.C <- evt:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				slog.String("tenant_id", evt.TenantID),
				slog.String("name", evt.Name),
			)
		}
	}
}
