package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/event"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// InboundHandler receives the protocol events the supervisor does not
// consume itself: message batches, ack updates, and call offers.
type InboundHandler interface {
	HandleSessionEvent(ctx context.Context, tenantID string, client wap.Client, evt wap.Event)
}

// Canceller invalidates queued per-tenant work when a session dies for
// good. The dispatch debouncer implements it.
type Canceller interface {
	CancelTenant(tenantID string)
}

// Supervisor drives the per-tenant session state machine: it dials
// connections, persists rotated credentials, enforces the pairing retry
// ceiling, and applies the disconnect restart policy.
type Supervisor struct {
	logger    *slog.Logger
	dialer    wap.Dialer
	store     Store
	registry  *Registry
	publisher event.Publisher
	canceller Canceller

	backoff      time.Duration
	pairingLimit int

	mu       sync.Mutex
	starting map[string]bool
	retries  map[string]int
	timers   map[string]*time.Timer

	handlerMu sync.RWMutex
	handler   InboundHandler
}

// NewSupervisor creates the session supervisor.
func NewSupervisor(
	log *slog.Logger,
	cfg config.WhatsAppConfig,
	dialer wap.Dialer,
	store Store,
	registry *Registry,
	publisher event.Publisher,
	canceller Canceller,
) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		logger:       log.With(slog.String("service", "session")),
		dialer:       dialer,
		store:        store,
		registry:     registry,
		publisher:    publisher,
		canceller:    canceller,
		backoff:      cfg.ReconnectBackoff(),
		pairingLimit: cfg.PairingRetryLimit,
		starting:     map[string]bool{},
		retries:      map[string]int{},
		timers:       map[string]*time.Timer{},
	}
}

// SetHandler wires the inbound pipeline. Called once during assembly,
// before any session starts.
func (s *Supervisor) SetHandler(h InboundHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// StartSession establishes the tenant's connection and begins consuming
// its events. Calling it for a tenant that already has a live or
// starting session is a no-op.
func (s *Supervisor) StartSession(ctx context.Context, tenantID string) error {
	if _, err := s.registry.Get(tenantID); err == nil {
		return nil
	}

	s.mu.Lock()
	if s.starting[tenantID] {
		s.mu.Unlock()
		return nil
	}
	s.starting[tenantID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.starting, tenantID)
		s.mu.Unlock()
	}()

	tenant, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}

	client, events, err := s.dialer.Dial(ctx, tenantID, tenant.Credentials)
	if err != nil {
		s.logger.Error("dial failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("dial session: %w", err)
	}

	s.registry.Put(&Active{TenantID: tenantID, Client: client})
	s.logger.Info("session starting", slog.String("tenant_id", tenantID))

	go s.run(context.WithoutCancel(ctx), tenantID, client, events)
	return nil
}

// Restore starts sessions for every tenant that was connected or
// mid-retry when the process last stopped.
func (s *Supervisor) Restore(ctx context.Context) error {
	tenants, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	for _, tenant := range tenants {
		if tenant.Status != StatusConnected && tenant.Status != StatusRetrying {
			continue
		}
		if err := s.StartSession(ctx, tenant.ID); err != nil {
			s.logger.Error("restore failed",
				slog.String("tenant_id", tenant.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Logout ends the tenant's session for good: the remote pairing is
// revoked when a client is live, credentials are wiped, queued work is
// cancelled, and any pending restart is disarmed. It works in every
// session state, including the backoff window between a transient
// disconnect and the redial. The tenant must pair again to reconnect.
func (s *Supervisor) Logout(ctx context.Context, tenantID string) error {
	if _, err := s.store.Get(ctx, tenantID); err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	if active, err := s.registry.Get(tenantID); err == nil {
		if err := active.Client.Logout(ctx); err != nil {
			s.logger.Warn("remote logout failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
		_ = active.Client.Close()
	}
	s.terminate(ctx, tenantID)
	return nil
}

// Shutdown closes every live connection without touching persisted state,
// so sessions resume on the next start.
func (s *Supervisor) Shutdown(ctx context.Context) {
	tenants, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("shutdown list tenants", slog.String("error", err.Error()))
		return
	}
	for _, tenant := range tenants {
		if active, err := s.registry.Get(tenant.ID); err == nil {
			_ = active.Client.Close()
			s.registry.Remove(tenant.ID)
		}
	}
}

func (s *Supervisor) run(ctx context.Context, tenantID string, client wap.Client, events <-chan wap.Event) {
	for evt := range events {
		switch e := evt.(type) {
		case wap.CredentialsUpdate:
			if err := s.store.SaveCredentials(ctx, tenantID, e.Blob); err != nil {
				s.logger.Error("persist credentials",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
			}

		case wap.ConnectionUpdate:
			if done := s.handleConnection(ctx, tenantID, client, e); done {
				return
			}

		default:
			s.handlerMu.RLock()
			handler := s.handler
			s.handlerMu.RUnlock()
			if handler != nil {
				handler.HandleSessionEvent(ctx, tenantID, client, evt)
			}
		}
	}
	// Channel closed without a closed-connection update. If the session is
	// still registered nobody handled the teardown, so treat it as a lost
	// link; otherwise it was closed deliberately.
	active, err := s.registry.Get(tenantID)
	if err != nil || active.Client != client {
		return
	}
	s.logger.Warn("event stream ended", slog.String("tenant_id", tenantID))
	s.registry.Remove(tenantID)
	s.updateStatus(ctx, tenantID, StatusRetrying, "", 0)
	s.scheduleRestart(ctx, tenantID)
}

// handleConnection applies the lifecycle policy. It returns true when the
// event loop must stop (the connection is gone, restarting or not).
func (s *Supervisor) handleConnection(ctx context.Context, tenantID string, client wap.Client, upd wap.ConnectionUpdate) bool {
	switch upd.State {
	case wap.ConnOpen:
		s.mu.Lock()
		s.retries[tenantID] = 0
		s.mu.Unlock()
		s.updateStatus(ctx, tenantID, StatusConnected, "", 0)
		s.logger.Info("session connected", slog.String("tenant_id", tenantID))
		return false

	case wap.ConnPairing:
		s.mu.Lock()
		s.retries[tenantID]++
		attempt := s.retries[tenantID]
		s.mu.Unlock()
		if attempt > s.pairingLimit {
			s.logger.Warn("pairing retry ceiling reached",
				slog.String("tenant_id", tenantID),
				slog.Int("attempts", attempt-1),
			)
			_ = client.Close()
			s.terminate(ctx, tenantID)
			return true
		}
		s.updateStatus(ctx, tenantID, StatusPairing, upd.PairingCode, attempt)
		s.logger.Info("pairing code issued",
			slog.String("tenant_id", tenantID),
			slog.Int("attempt", attempt),
		)
		return false

	case wap.ConnClosed:
		s.registry.Remove(tenantID)
		switch upd.Cause {
		case wap.CauseLoggedOut, wap.CauseForbidden:
			s.logger.Warn("session ended remotely",
				slog.String("tenant_id", tenantID),
				slog.String("cause", string(upd.Cause)),
			)
			s.terminate(ctx, tenantID)
		default:
			s.logger.Warn("session dropped, restarting",
				slog.String("tenant_id", tenantID),
				slog.String("cause", string(upd.Cause)),
			)
			s.updateStatus(ctx, tenantID, StatusRetrying, "", 0)
			s.scheduleRestart(ctx, tenantID)
		}
		return true
	}
	return false
}

// terminate is the no-restart teardown: credentials wiped, queued work
// cancelled, any armed restart timer stopped, status terminal.
func (s *Supervisor) terminate(ctx context.Context, tenantID string) {
	s.registry.Remove(tenantID)
	s.mu.Lock()
	delete(s.retries, tenantID)
	if timer, ok := s.timers[tenantID]; ok {
		timer.Stop()
		delete(s.timers, tenantID)
	}
	s.mu.Unlock()
	if s.canceller != nil {
		s.canceller.CancelTenant(tenantID)
	}
	if err := s.store.Wipe(ctx, tenantID); err != nil {
		s.logger.Error("wipe credentials",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	s.updateStatus(ctx, tenantID, StatusTerminal, "", 0)
}

// scheduleRestart arms the backoff redial for a dropped session. The
// timer is tracked per tenant so terminate can disarm it; if the timer
// fires anyway the status check keeps a logged-out tenant down.
func (s *Supervisor) scheduleRestart(ctx context.Context, tenantID string) {
	s.mu.Lock()
	if timer, ok := s.timers[tenantID]; ok {
		timer.Stop()
	}
	s.timers[tenantID] = time.AfterFunc(s.backoff, func() {
		s.mu.Lock()
		delete(s.timers, tenantID)
		s.mu.Unlock()

		tenant, err := s.store.Get(ctx, tenantID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Error("restart lookup failed",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		if tenant.Status != StatusRetrying {
			return
		}
		if err := s.StartSession(ctx, tenantID); err != nil {
			s.logger.Error("restart failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
			s.updateStatus(ctx, tenantID, StatusTerminal, "", 0)
		}
	})
	s.mu.Unlock()
}

func (s *Supervisor) updateStatus(ctx context.Context, tenantID string, status Status, pairingCode string, retries int) {
	if err := s.store.UpdateStatus(ctx, tenantID, status, pairingCode, retries); err != nil {
		s.logger.Error("update status",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	s.publisher.Publish(event.Event{
		TenantID: tenantID,
		Name:     event.NameSession,
		Action:   event.ActionUpdate,
		Payload: map[string]any{
			"tenant_id":    tenantID,
			"status":       status,
			"pairing_code": pairingCode,
		},
	})
}
