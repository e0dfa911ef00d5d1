package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/zapdesk/zapdesk/internal/event"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 25 * time.Second
)

// EventsHandler streams the tenant's realtime events over a websocket.
// Clients authenticate with the query-token JWT lookup since websocket
// handshakes cannot carry headers from browsers.
type EventsHandler struct {
	hub      *event.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewEventsHandler(log *slog.Logger, hub *event.Hub) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Token auth already gates the endpoint.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "events")),
	}
}

func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/tenants/:tenant_id/events", h.Stream)
}

// Stream upgrades the connection and forwards hub events until the client
// goes away. An optional rooms query param narrows the feed.
func (h *EventsHandler) Stream(c echo.Context) error {
	tenantID, err := tenantParam(c)
	if err != nil {
		return err
	}
	var rooms []string
	if raw := strings.TrimSpace(c.QueryParam("rooms")); raw != "" {
		for _, room := range strings.Split(raw, ",") {
			if room = strings.TrimSpace(room); room != "" {
				rooms = append(rooms, room)
			}
		}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	sub := h.hub.Subscribe(tenantID)

	// Reader exists only to process control frames and notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		conn.Close()
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return nil
			}
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !wantsEvent(evt, rooms) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("event write failed",
					slog.String("tenant_id", tenantID),
					slog.String("error", err.Error()),
				)
				return nil
			}
		}
	}
}

func wantsEvent(evt event.Event, rooms []string) bool {
	if len(rooms) == 0 {
		return true
	}
	for _, room := range rooms {
		if evt.InRoom(room) {
			return true
		}
	}
	return false
}
