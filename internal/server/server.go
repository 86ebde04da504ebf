package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farellandr/lunchticket/config"
	"github.com/farellandr/lunchticket/internal/cache"
	"github.com/farellandr/lunchticket/internal/discord"
	"github.com/farellandr/lunchticket/internal/events"
	"github.com/farellandr/lunchticket/internal/handlers"
	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/middleware"
	"github.com/farellandr/lunchticket/internal/monitoring"
	"github.com/farellandr/lunchticket/internal/store"
	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	kafkaConnectAttempts = 10
	kafkaConnectDelay    = 5 * time.Second
	shutdownTimeout      = 10 * time.Second
	sentryFlushTimeout   = 2 * time.Second
)

// Start wires the bot and the admin API and blocks until SIGINT/SIGTERM.
// Errors that stop the process are reported to Sentry before returning.
func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var sinks []io.Writer
	var fileErr error
	if cfg.LogFile != "" {
		var f io.WriteCloser
		if f, fileErr = logger.OpenLogFile(cfg.LogFile); fileErr == nil {
			defer f.Close()
			sinks = append(sinks, f)
		}
	}
	log := logger.New(cfg.Environment, cfg.LogLevel, sinks...)
	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", cfg.LogFile).Msg("file logging disabled")
	}

	reporter, err := monitoring.New(monitoring.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return err
	}
	defer reporter.Flush(sentryFlushTimeout)
	log = log.Hook(reporter.Hook())
	if reporter != nil {
		log.Info().Str("release", cfg.Release).Msg("error tracking enabled")
	}

	if err := run(cfg, log, reporter); err != nil {
		if discord.IsAuthFailure(err) {
			reporter.CaptureMessage("Invalid Discord token", sentry.LevelError)
		} else {
			reporter.CaptureError(err)
		}
		return err
	}
	return nil
}

func run(cfg *config.Config, log zerolog.Logger, reporter *monitoring.Reporter) error {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	ledger := store.New(db, func() (*gorm.DB, error) { return config.OpenDatabase(cfg) }, log)
	defer ledger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := ticket.Deps{
		Store:          ledger,
		Registry:       ticket.NewRegistry(),
		Currency:       cfg.Currency,
		PaymentAccount: cfg.PaymentAccount,
	}

	redisClient, err := config.InitRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Images = cache.NewImageSlots(redisClient, cache.DefaultImageTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("pending images stored in redis")
	} else {
		deps.Images = ticket.NewMemoryImageSlots()
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.Connect(cfg.KafkaBrokers, kafkaConnectAttempts, kafkaConnectDelay, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		deps.Events = publisher
	} else {
		deps.Events = ticket.NopPublisher{}
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	platform := discord.NewPlatform(session, cfg.TicketCategory)
	deps.Platform = platform

	bot := discord.NewBot(session, discord.BotDeps{
		Platform:   platform,
		Controller: ticket.NewController(deps),
		Reconciler: ticket.NewReconciler(deps),
		Prices:     ticket.NewPriceBook(cfg.LunchPrice),
		Images:     deps.Images,
		Reporter:   reporter,
		Logger:     log.With().Str("component", "discord").Logger(),
	})
	if err := bot.Open(session); err != nil {
		return err
	}
	defer session.Close()
	log.Info().Msg("bot is now running")

	r := gin.New()
	r.Use(gin.Recovery())
	setupRoutes(r, ledger, cfg, log)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("admin API failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRoutes(r *gin.Engine, ledger handlers.Ledger, cfg *config.Config, log zerolog.Logger) {
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.StoreMiddleware(ledger))

	r.GET("/healthz", handlers.Healthz)

	public := r.Group("/v1")
	{
		public.POST("/login", handlers.Login(handlers.AuthConfig{
			JWTSecret:         cfg.JWTSecret,
			AdminPasswordHash: cfg.AdminPasswordHash,
		}))
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		users := protected.Group("/users/:id")
		{
			users.GET("/balance", handlers.GetBalance)
			users.GET("/transactions", handlers.ListTransactions)
			users.POST("/confirm", handlers.ConfirmUser)
			users.DELETE("", handlers.ResetUser)
		}
		protected.POST("/transactions/:id/confirm", handlers.ConfirmTransaction)
		protected.GET("/tickets/active", handlers.ListActiveTickets)
	}
}
