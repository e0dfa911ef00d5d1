package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/ticket"
)

// TicketService is the ticket state machine as the HTTP layer sees it.
type TicketService interface {
	Get(ctx context.Context, tenantID, ticketID string) (ticket.Ticket, error)
	Update(ctx context.Context, in ticket.UpdateInput) (ticket.Ticket, error)
}

// TicketsHandler exposes ticket reads and status transitions.
type TicketsHandler struct {
	tickets TicketService
	logger  *slog.Logger
}

func NewTicketsHandler(log *slog.Logger, tickets TicketService) *TicketsHandler {
	return &TicketsHandler{
		tickets: tickets,
		logger:  log.With(slog.String("handler", "tickets")),
	}
}

func (h *TicketsHandler) Register(e *echo.Echo) {
	g := e.Group("/tenants/:tenant_id/tickets")
	g.GET("/:ticket_id", h.Get)
	g.PUT("/:ticket_id", h.Update)
}

type ticketResponse struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ContactID     string    `json:"contact_id"`
	QueueID       string    `json:"queue_id,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	QueueOptionID string    `json:"queue_option_id,omitempty"`
	Channel       string    `json:"channel"`
	Status        string    `json:"status"`
	IsGroup       bool      `json:"is_group"`
	IsBot         bool      `json:"is_bot"`
	Unread        int       `json:"unread"`
	LastMessage   string    `json:"last_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toTicketResponse(t ticket.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		TenantID:      t.TenantID,
		ContactID:     t.ContactID,
		QueueID:       t.QueueID,
		AgentID:       t.AgentID,
		QueueOptionID: t.QueueOptionID,
		Channel:       t.Channel,
		Status:        string(t.Status),
		IsGroup:       t.IsGroup,
		IsBot:         t.IsBot,
		Unread:        t.Unread,
		LastMessage:   t.LastMessage,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (h *TicketsHandler) Get(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	t, err := h.tickets.Get(c.Request().Context(), tenantID, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

type updateTicketRequest struct {
	Status  *string `json:"status"`
	QueueID *string `json:"queue_id"`
	AgentID *string `json:"agent_id"`
}

// Update drives the ticket state machine: open, close, queue transfer,
// agent handoff. Reopening a contact who already has another active ticket
// yields 409 with the blocking queue or agent named.
func (h *TicketsHandler) Update(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}

	var req updateTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := ticket.UpdateInput{
		TenantID: tenantID,
		TicketID: ticketID,
		QueueID:  req.QueueID,
		AgentID:  req.AgentID,
	}
	if req.Status != nil {
		status := ticket.Status(strings.TrimSpace(*req.Status))
		switch status {
		case ticket.StatusPending, ticket.StatusOpen, ticket.StatusClosed:
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		in.Status = &status
	}

	updated, err := h.tickets.Update(c.Request().Context(), in)
	if err != nil {
		var conflict *ticket.ConflictError
		if errors.As(err, &conflict) {
			return echo.NewHTTPError(http.StatusConflict, conflict.Error())
		}
		if errors.Is(err, ticket.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toTicketResponse(updated))
}
