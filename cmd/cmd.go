package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mjolobid-backend/internal/config"
	"mjolobid-backend/internal/gateway"
	"mjolobid-backend/internal/handlers"
	"mjolobid-backend/internal/repository"
	"mjolobid-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

func Run() {
	configPath := os.Getenv("MJOLOBID_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log.Level)

	db, err := connectDB(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.MigrateOnBoot {
		if err := repository.Migrate(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied")
	}

	rules := cfg.Marketplace.Rules()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	bidRepo := repository.NewBidRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Outbound channels
	media, err := services.NewMediaService(context.Background(), cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create media service")
	}
	var push services.PushSender
	if cfg.APNs.Enabled {
		pusher, err := services.NewAPNsPusher(cfg.APNs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		push = pusher
	}
	gateways := gateway.NewRegistry(cfg.Gateways, nil)
	log.Info().Strs("gateways", gateways.Names()).Msg("Payment gateways enabled")

	// Services
	wsHub := services.NewWSHub()
	notificationService := services.NewNotificationService(notificationRepo, userRepo, wsHub, push, services.LogMailer{}, services.LogSMS{})
	broadcast := services.NewBroadcastQueue(
		notificationService,
		cfg.Workers.NotificationWorkers,
		cfg.Workers.NotificationQueue,
		cfg.Workers.NotificationParallel,
	)
	userService := services.NewUserService(userRepo, media, services.LogMailer{}, wsHub, rules, cfg.JWT.Secret, cfg.JWT.TTL)
	bidService := services.NewBidService(bidRepo, userRepo, categoryRepo, media, notificationService, wsHub, rules)
	offerService := services.NewOfferService(offerRepo, userRepo, categoryRepo, notificationService, broadcast, rules)
	paymentService := services.NewPaymentService(paymentRepo, userRepo, gateways, notificationService, rules, cfg.Server.SiteURL)
	messageService := services.NewMessageService(messageRepo, bidRepo, offerRepo, userRepo, media, wsHub, notificationService)
	adminService := services.NewAdminService(statsRepo, userRepo, paymentRepo, categoryRepo, notificationService, broadcast, rules)
	sweeper := services.NewSweeper(bidRepo, offerRepo, paymentRepo, notificationService, cfg.Marketplace.SweepInterval)

	// Background workers stop when workCtx is cancelled
	workCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	broadcast.Start(workCtx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(workCtx)
	}()

	// Handlers
	r := newRouter(routes{
		users:         handlers.NewUserHandler(userService),
		bids:          handlers.NewBidHandler(bidService),
		offers:        handlers.NewOfferHandler(offerService),
		payments:      handlers.NewPaymentHandler(paymentService),
		messages:      handlers.NewMessageHandler(messageService),
		notifications: handlers.NewNotificationHandler(notificationService),
		admin:         handlers.NewAdminHandler(adminService, paymentService),
		ws:            handlers.NewWebSocketHandler(wsHub, userService, messageService, notificationService),
		auth:          userService,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown
	wsHub.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	stopWorkers()
	broadcast.Wait()
	<-sweeperDone

	log.Info().Msg("Server exited")
}

// connectDB opens the pool and pings it, retrying while the database comes up
func connectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Database not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
