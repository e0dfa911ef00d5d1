// Package session owns the per-tenant protocol session lifecycle: the
// in-process registry of live connections and the supervisor that
// establishes, resumes, and tears them down.
package session

import (
	"context"
	"errors"
	"time"
)

// Status is the persisted connection status of a tenant session.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusPairing       Status = "pairing"
	StatusConnected     Status = "connected"
	StatusRetrying      Status = "disconnected-retrying"
	StatusTerminal      Status = "disconnected-terminal"
)

// ErrNotFound indicates the tenant does not exist.
var ErrNotFound = errors.New("tenant not found")

// ErrNotInitialized indicates no live session is registered for the tenant.
var ErrNotInitialized = errors.New("session not initialized")

// Tenant is one support-desk number: its session state plus the message
// templates the routing engine sends on its behalf.
type Tenant struct {
	ID             string
	Name           string
	Number         string
	Status         Status
	PairingCode    string
	PairingRetries int
	Credentials    []byte

	GreetingMessage   string
	FarewellMessage   string
	CompletionMessage string
	RatingMessage     string
	OutOfHoursMessage string
	WorkStartHour     int
	WorkEndHour       int

	UpdatedAt time.Time
}

// InsideWorkHours reports whether the given time falls in the tenant's
// working window. A zero-width window means always open.
func (t Tenant) InsideWorkHours(now time.Time) bool {
	if t.WorkStartHour == t.WorkEndHour {
		return true
	}
	hour := now.Hour()
	if t.WorkStartHour < t.WorkEndHour {
		return hour >= t.WorkStartHour && hour < t.WorkEndHour
	}
	// Window crosses midnight.
	return hour >= t.WorkStartHour || hour < t.WorkEndHour
}

// Store persists tenant session state. The credential blob is owned
// exclusively by the supervisor; no other component writes it.
type Store interface {
	Get(ctx context.Context, tenantID string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status Status, pairingCode string, pairingRetries int) error
	SaveCredentials(ctx context.Context, tenantID string, blob []byte) error
	// Wipe clears the credential blob, pairing code, and bound number,
	// forcing a fresh pairing on the next start.
	Wipe(ctx context.Context, tenantID string) error
}
