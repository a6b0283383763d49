package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logging"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Warn("redis unavailable; rate limiting, caching and idempotency disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	inventory := repository.NewInventoryRepo(db)
	tickets := repository.NewTicketRepo(db)
	notifications := repository.NewNotificationRepo(db)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.Info("admin account created", zap.String("email", cfg.AdminEmail))
		}
	}

	var idem service.IdempotencyStore
	if rdb != nil {
		idem = repository.NewIdempotencyRepo(rdb, cfg.IdempotencyTTL, cfg.RequestTimeout*2)
	}

	var publisher service.Publisher
	if cfg.RabbitURL != "" {
		amqpPub := service.NewAMQPPublisher(cfg.RabbitURL, log)
		defer amqpPub.Close()
		go amqpPub.Run(ctx)
		publisher = amqpPub

		audit, err := openAudit(cfg.AuditLogPath)
		if err != nil {
			return err
		}
		defer audit.Close()
		go queue.NewConsumer(cfg.RabbitURL, notifications, audit, log).Run(ctx)
	} else {
		log.Info("RABBITMQ_URL not set; ticket events are not published")
	}

	proofs := service.NewProofIssuer(cfg.ProofSecret, cfg.ProofTTL)
	engine := service.NewEngine(events, inventory, tickets, proofs, log, service.DefaultEngineConfig())
	coordinator := service.NewCoordinator(engine, events, tickets, publisher, idem,
		service.Policy{BlockCreatorBooking: cfg.BlockCreatorBooking}, log)
	catalog := service.NewCatalog(events, inventory, log)

	if cfg.ReconcileInterval > 0 {
		go service.NewReconciler(inventory, cfg.ReconcileInterval, cfg.ReconcileGrace, log).Run(ctx)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.BodyLimit("1M"))

	router.RegisterRoutes(e, router.Handlers{
		Auth:          handler.NewAuthHandler(cfg, users, tokens, log),
		Events:        handler.NewEventHandler(catalog, tickets, log),
		Tickets:       handler.NewTicketHandler(coordinator, tickets, cfg.RequestTimeout, log),
		Notifications: handler.NewNotificationHandler(notifications, log),
		Analytics:     handler.NewAnalyticsHandler(repository.NewAnalyticsRepo(db), log),
		DB:            db,
	}, router.Options{
		JWTSecret:        cfg.JWTSecret,
		Redis:            rdb,
		RateLimit:        config.LoadRateLimitConfig(),
		BookingRateLimit: config.LoadBookingRateLimitConfig(),
		Cache:            config.LoadCacheConfig(),
		Log:              log,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openAudit(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return f, nil
}
