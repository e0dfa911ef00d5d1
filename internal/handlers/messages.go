package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

// MessageLister reads a ticket's message history.
type MessageLister interface {
	ListByTicket(ctx context.Context, tenantID, ticketID string, limit int) ([]message.Message, error)
}

// TicketSender delivers agent-originated content on a ticket through the
// tenant's live session.
type TicketSender interface {
	SendText(ctx context.Context, t ticket.Ticket, text string) error
	SendMedia(ctx context.Context, t ticket.Ticket, media wap.MediaPayload) error
}

// MessagesHandler exposes message history and agent sends.
type MessagesHandler struct {
	messages MessageLister
	tickets  TicketService
	sender   TicketSender
	logger   *slog.Logger
}

func NewMessagesHandler(log *slog.Logger, messages MessageLister, tickets TicketService, sender TicketSender) *MessagesHandler {
	return &MessagesHandler{
		messages: messages,
		tickets:  tickets,
		sender:   sender,
		logger:   log.With(slog.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	g := e.Group("/tenants/:tenant_id/tickets/:ticket_id/messages")
	g.GET("", h.List)
	g.POST("", h.Send)
}

type messageResponse struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	TicketID    string    `json:"ticket_id"`
	ContactID   string    `json:"contact_id"`
	Body        string    `json:"body"`
	FromMe      bool      `json:"from_me"`
	Read        bool      `json:"read"`
	Ack         int       `json:"ack"`
	MediaURL    string    `json:"media_url,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	QuotedMsgID string    `json:"quoted_msg_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageResponse(m message.Message) messageResponse {
	return messageResponse{
		ID:          m.ID,
		ExternalID:  m.ExternalID,
		TicketID:    m.TicketID,
		ContactID:   m.ContactID,
		Body:        m.Body,
		FromMe:      m.FromMe,
		Read:        m.Read,
		Ack:         int(m.Ack),
		MediaURL:    m.MediaURL,
		MediaType:   m.MediaType,
		QuotedMsgID: m.QuotedMsgID,
		CreatedAt:   m.CreatedAt,
	}
}

// List returns the ticket's messages, newest first.
func (h *MessagesHandler) List(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}

	limit := 40
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	msgs, err := h.messages.ListByTicket(c.Request().Context(), tenantID, ticketID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	items := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		items[i] = toMessageResponse(m)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

type sendMessageRequest struct {
	Body     string `json:"body"`
	Media    []byte `json:"media,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// Send delivers an agent message on the ticket. The send is recorded
// through the same pipeline as inbound traffic, so it shows up in List.
func (h *MessagesHandler) Send(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Body) == "" && len(req.Media) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "body or media is required")
	}

	t, err := h.tickets.Get(c.Request().Context(), tenantID, ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if t.Status == ticket.StatusClosed {
		return echo.NewHTTPError(http.StatusConflict, "ticket is closed")
	}

	if len(req.Media) > 0 {
		err = h.sender.SendMedia(c.Request().Context(), t, wap.MediaPayload{
			Data:     req.Media,
			MimeType: req.MimeType,
			FileName: req.FileName,
			Caption:  req.Body,
		})
	} else {
		err = h.sender.SendText(c.Request().Context(), t, req.Body)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "sent"})
}
