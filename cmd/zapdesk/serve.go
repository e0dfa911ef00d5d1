package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/zapdesk/zapdesk/internal/chatbot"
	"github.com/zapdesk/zapdesk/internal/config"
	"github.com/zapdesk/zapdesk/internal/contact"
	"github.com/zapdesk/zapdesk/internal/db"
	"github.com/zapdesk/zapdesk/internal/debounce"
	"github.com/zapdesk/zapdesk/internal/event"
	"github.com/zapdesk/zapdesk/internal/handlers"
	"github.com/zapdesk/zapdesk/internal/inbound"
	"github.com/zapdesk/zapdesk/internal/message"
	"github.com/zapdesk/zapdesk/internal/outbound"
	"github.com/zapdesk/zapdesk/internal/server"
	"github.com/zapdesk/zapdesk/internal/session"
	"github.com/zapdesk/zapdesk/internal/settings"
	"github.com/zapdesk/zapdesk/internal/ticket"
	"github.com/zapdesk/zapdesk/internal/wap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: session supervisor, routing pipeline, HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideTenantStore,
			provideContactStore,
			provideTicketStore,
			provideQueueStore,
			provideMessageStore,
			provideSettingsStore,
			provideFileStore,
			provideTicketPreview,
			provideDialer,
			providePublisher,
			provideCanceller,
			provideNotifier,
			provideMenuSender,
			provideTexter,
			provideTicketSender,
			debounce.NewDispatcher,
			event.NewHub,
			session.NewRegistry,
			provideSupervisor,
			provideContactService,
			provideSettingsService,
			provideFetcher,
			provideMessageService,
			provideOutboundService,
			provideTicketResolver,
			provideTicketService,
			provideChatbotRouter,
			provideInboundRouter,
			providePingHandler,
			provideSessionsHandler,
			provideTicketsHandler,
			provideMessagesHandler,
			provideSettingsHandler,
			provideEventsHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			wireInbound,
			startSupervisor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideTenantStore(pool *pgxpool.Pool) session.Store     { return session.NewPGStore(pool) }
func provideContactStore(pool *pgxpool.Pool) contact.Store    { return contact.NewPGStore(pool) }
func provideTicketStore(pool *pgxpool.Pool) ticket.Store      { return ticket.NewPGStore(pool) }
func provideQueueStore(pool *pgxpool.Pool) ticket.QueueStore  { return ticket.NewPGQueueStore(pool) }
func provideMessageStore(pool *pgxpool.Pool) message.Store    { return message.NewPGStore(pool) }
func provideSettingsStore(pool *pgxpool.Pool) settings.Store  { return settings.NewPGStore(pool) }
func provideFileStore(cfg config.Config) message.FileStore    { return message.NewLocalFileStore(cfg.Media) }
func provideTicketPreview(ts ticket.Store) message.TicketPreview { return ts }

func provideDialer(log *slog.Logger, cfg config.Config) wap.Dialer {
	return wap.NewGatewayDialer(log, cfg.WhatsApp.GatewayURL)
}

func providePublisher(hub *event.Hub) event.Publisher { return hub }

func provideCanceller(d *debounce.Dispatcher) session.Canceller { return d }

func provideNotifier(o *outbound.Service) ticket.Notifier { return o }

func provideMenuSender(o *outbound.Service) chatbot.Sender { return o }

func provideTexter(o *outbound.Service) inbound.Texter { return o }

func provideTicketSender(o *outbound.Service) handlers.TicketSender { return o }

func provideSupervisor(
	log *slog.Logger,
	cfg config.Config,
	dialer wap.Dialer,
	tenants session.Store,
	registry *session.Registry,
	publisher event.Publisher,
	canceller session.Canceller,
) *session.Supervisor {
	return session.NewSupervisor(log, cfg.WhatsApp, dialer, tenants, registry, publisher, canceller)
}

func provideContactService(log *slog.Logger, store contact.Store) *contact.Service {
	return contact.NewService(log, store)
}

func provideSettingsService(log *slog.Logger, store settings.Store) *settings.Service {
	return settings.NewService(log, store)
}

func provideFetcher(log *slog.Logger, cfg config.Config, files message.FileStore) *message.Fetcher {
	return message.NewFetcher(log, cfg.WhatsApp, files)
}

func provideMessageService(
	log *slog.Logger,
	store message.Store,
	preview message.TicketPreview,
	fetcher *message.Fetcher,
	publisher event.Publisher,
) *message.Service {
	return message.NewService(log, store, preview, fetcher, publisher)
}

func provideOutboundService(
	log *slog.Logger,
	registry *session.Registry,
	contacts contact.Store,
	messages *message.Service,
) *outbound.Service {
	return outbound.NewService(log, registry, contacts, messages)
}

func provideTicketResolver(log *slog.Logger, store ticket.Store) *ticket.Resolver {
	return ticket.NewResolver(log, store)
}

func provideTicketService(
	log *slog.Logger,
	store ticket.Store,
	queues ticket.QueueStore,
	tenants session.Store,
	flags *settings.Service,
	notifier ticket.Notifier,
	publisher event.Publisher,
) *ticket.Service {
	return ticket.NewService(log, store, queues, tenants, flags, notifier, publisher)
}

func provideChatbotRouter(
	log *slog.Logger,
	cfg config.Config,
	queues ticket.QueueStore,
	tickets ticket.Store,
	tenants session.Store,
	flags *settings.Service,
	sender chatbot.Sender,
	debouncer *debounce.Dispatcher,
) *chatbot.Router {
	return chatbot.NewRouter(log, cfg.WhatsApp, queues, tickets, tenants, flags, sender, debouncer)
}

func provideInboundRouter(
	log *slog.Logger,
	cfg config.Config,
	tenants session.Store,
	contacts *contact.Service,
	resolver *ticket.Resolver,
	tickets *ticket.Service,
	messages *message.Service,
	menu *chatbot.Router,
	texter inbound.Texter,
	flags *settings.Service,
	debouncer *debounce.Dispatcher,
) *inbound.Router {
	return inbound.NewRouter(log, cfg.WhatsApp, tenants, contacts, resolver, tickets, messages, menu, texter, flags, debouncer)
}

func providePingHandler(log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(log)
}

func provideSessionsHandler(log *slog.Logger, supervisor *session.Supervisor, tenants session.Store) *handlers.SessionsHandler {
	return handlers.NewSessionsHandler(log, supervisor, tenants)
}

func provideTicketsHandler(log *slog.Logger, tickets *ticket.Service) *handlers.TicketsHandler {
	return handlers.NewTicketsHandler(log, tickets)
}

func provideMessagesHandler(log *slog.Logger, messages *message.Service, tickets *ticket.Service, sender handlers.TicketSender) *handlers.MessagesHandler {
	return handlers.NewMessagesHandler(log, messages, tickets, sender)
}

func provideSettingsHandler(log *slog.Logger, svc *settings.Service) *handlers.SettingsHandler {
	return handlers.NewSettingsHandler(log, svc)
}

func provideEventsHandler(log *slog.Logger, hub *event.Hub) *handlers.EventsHandler {
	return handlers.NewEventsHandler(log, hub)
}

func provideServer(
	log *slog.Logger,
	cfg config.Config,
	ping *handlers.PingHandler,
	sessions *handlers.SessionsHandler,
	tickets *handlers.TicketsHandler,
	messages *handlers.MessagesHandler,
	flags *handlers.SettingsHandler,
	events *handlers.EventsHandler,
) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, cfg.Media.Dir, ping, sessions, tickets, messages, flags, events)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database schema up to date")
	return nil
}

// wireInbound closes the supervisor-to-pipeline loop after both sides exist.
func wireInbound(supervisor *session.Supervisor, router *inbound.Router) {
	supervisor.SetHandler(router)
}

func startSupervisor(lc fx.Lifecycle, log *slog.Logger, supervisor *session.Supervisor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := supervisor.Restore(context.Background()); err != nil {
					log.Error("session restore failed", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			supervisor.Shutdown(ctx)
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
