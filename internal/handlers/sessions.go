package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/session"
)

// SessionController starts and ends tenant protocol sessions.
type SessionController interface {
	StartSession(ctx context.Context, tenantID string) error
	Logout(ctx context.Context, tenantID string) error
}

// SessionsHandler controls the tenant's protocol session over HTTP.
type SessionsHandler struct {
	supervisor SessionController
	tenants    session.Store
	logger     *slog.Logger
}

func NewSessionsHandler(log *slog.Logger, supervisor SessionController, tenants session.Store) *SessionsHandler {
	return &SessionsHandler{
		supervisor: supervisor,
		tenants:    tenants,
		logger:     log.With(slog.String("handler", "sessions")),
	}
}

func (h *SessionsHandler) Register(e *echo.Echo) {
	g := e.Group("/tenants/:tenant_id/session")
	g.GET("", h.Status)
	g.POST("/start", h.Start)
	g.POST("/logout", h.Logout)
}

type sessionStatusResponse struct {
	TenantID       string `json:"tenant_id"`
	Name           string `json:"name"`
	Number         string `json:"number,omitempty"`
	Status         string `json:"status"`
	PairingCode    string `json:"pairing_code,omitempty"`
	PairingRetries int    `json:"pairing_retries,omitempty"`
}

// Status reports the session state, including the pairing code while the
// tenant is mid-pairing.
func (h *SessionsHandler) Status(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	tenant, err := h.tenants.Get(c.Request().Context(), tenantID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sessionStatusResponse{
		TenantID:       tenant.ID,
		Name:           tenant.Name,
		Number:         tenant.Number,
		Status:         string(tenant.Status),
		PairingCode:    tenant.PairingCode,
		PairingRetries: tenant.PairingRetries,
	})
}

// Start establishes the tenant's connection. Starting an already-live
// session is a no-op and still returns 202.
func (h *SessionsHandler) Start(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	if err := h.supervisor.StartSession(c.Request().Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "starting"})
}

// Logout revokes the remote pairing and wipes the stored credentials.
// It also works mid-retry: a disconnected session is torn down for good
// instead of coming back on the next redial.
func (h *SessionsHandler) Logout(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	if err := h.supervisor.Logout(c.Request().Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "tenant not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}
