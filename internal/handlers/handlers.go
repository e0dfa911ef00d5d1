package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/auth"
)

// ErrorResponse is the JSON error body for non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// tenantParam extracts the tenant id from the route and checks the token is
// scoped to it.
func tenantParam(c echo.Context) (string, error) {
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	if tenantID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "tenant id is required")
	}
	if err := auth.RequireTenant(c, tenantID); err != nil {
		return "", err
	}
	return tenantID, nil
}
