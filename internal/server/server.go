// Package server assembles the echo HTTP surface: middleware, JWT auth,
// handler registration, and static media serving.
package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/zapdesk/zapdesk/internal/auth"
	"github.com/zapdesk/zapdesk/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(
	log *slog.Logger,
	addr string,
	jwtSecret string,
	mediaDir string,
	pingHandler *handlers.PingHandler,
	sessionsHandler *handlers.SessionsHandler,
	ticketsHandler *handlers.TicketsHandler,
	messagesHandler *handlers.MessagesHandler,
	settingsHandler *handlers.SettingsHandler,
	eventsHandler *handlers.EventsHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	if log == nil {
		log = slog.Default()
	}
	requests := log.With(slog.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				requests.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
				return nil
			}
			requests.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == "/ping" || path == "/health"
	}))

	if mediaDir != "" {
		e.Static("/media", mediaDir)
	}

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if sessionsHandler != nil {
		sessionsHandler.Register(e)
	}
	if ticketsHandler != nil {
		ticketsHandler.Register(e)
	}
	if messagesHandler != nil {
		messagesHandler.Register(e)
	}
	if settingsHandler != nil {
		settingsHandler.Register(e)
	}
	if eventsHandler != nil {
		eventsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
