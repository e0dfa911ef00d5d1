// Package contact maintains the per-tenant contact directory keyed by
// protocol address.
package contact

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the contact does not exist.
var ErrNotFound = errors.New("contact not found")

// Contact is one chat peer of a tenant, person or group.
type Contact struct {
	ID        string
	TenantID  string
	JID       string
	Name      string
	AvatarURL string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists contacts. Upsert is keyed on (tenant, jid) and must be
// idempotent: repeated calls refresh the profile fields in place.
type Store interface {
	GetByJID(ctx context.Context, tenantID, jid string) (Contact, error)
	Get(ctx context.Context, tenantID, contactID string) (Contact, error)
	Upsert(ctx context.Context, c Contact) (Contact, error)
}
