package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/settings"
)

// SettingsHandler exposes the tenant flags the routing engine dispatches on.
type SettingsHandler struct {
	settings *settings.Service
	logger   *slog.Logger
}

func NewSettingsHandler(log *slog.Logger, svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{
		settings: svc,
		logger:   log.With(slog.String("handler", "settings")),
	}
}

func (h *SettingsHandler) Register(e *echo.Echo) {
	g := e.Group("/tenants/:tenant_id/settings")
	g.GET("/:key", h.Get)
	g.PUT("/:key", h.Set)
}

func (h *SettingsHandler) Get(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	key := strings.TrimSpace(c.Param("key"))
	if settings.Default(key) == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown setting")
	}
	value, err := h.settings.Value(c.Request().Context(), tenantID, key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"key": key, "value": value})
}

type setSettingRequest struct {
	Value string `json:"value"`
}

func (h *SettingsHandler) Set(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	key := strings.TrimSpace(c.Param("key"))
	if settings.Default(key) == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown setting")
	}
	var req setSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Value) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	if err := h.settings.Set(c.Request().Context(), tenantID, key, req.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
