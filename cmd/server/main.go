// Command server runs the parking lot reservation API: HTTP handlers, the
// no-show sweeper and, when a broker is configured, the notification
// consumer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/booking"
	"github.com/iliyamo/parking-lot-reservation/internal/config"
	"github.com/iliyamo/parking-lot-reservation/internal/database"
	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/logging"
	"github.com/iliyamo/parking-lot-reservation/internal/metrics"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/notify"
	"github.com/iliyamo/parking-lot-reservation/internal/payment"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/router"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
	"github.com/iliyamo/parking-lot-reservation/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// run wires every component and blocks until SIGINT or SIGTERM. Returning
// an error instead of exiting lets deferred closes run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	// ctx ends on shutdown and stops the sweeper and the consumer with it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
		return err
	}
	defer db.Close()
	// Schema statements are idempotent; running them on every start keeps
	// deployments to a single step.
	if err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	users := repository.NewUserRepo(db)
	if cfg.AdminEmail != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		if created {
			logger.Info().Str("email", cfg.AdminEmail).Msg("admin account created")
		}
	}

	metrics.Register()

	// Redis is optional. Without it the API runs uncached and unthrottled.
	rdb := config.NewRedisClient(config.LoadRedisConfig(), *baseLogger)
	if rdb != nil {
		defer rdb.Close()
	}

	lots := repository.NewLotRepo(db, cfg.DB.Driver)
	slots := repository.NewSlotRepo(db)
	services := repository.NewServiceRepo(db)
	bookings := repository.NewBookingRepo(db, cfg.DB.Driver)
	tokens := repository.NewTokenRepo(db)

	notifier := service.NewNotifier(bookings, users, *baseLogger, senders(cfg, *baseLogger)...)
	events, conns := eventPublisher(ctx, cfg, notifier, *baseLogger)
	if conns != nil {
		defer conns.Close()
	}

	svc := service.NewBookingService(service.BookingDeps{
		DB:         db,
		Lots:       lots,
		Slots:      slots,
		Services:   services,
		Bookings:   bookings,
		Calculator: booking.NewCalculator(cfg.Booking.TaxPercent, cfg.Booking.Currency),
		Payments:   payment.NewSimulator(),
		Events:     events,
		Log:        *baseLogger,

		PublishTimeout: cfg.Booking.PublishTimeout,
	})

	go worker.NewSweeper(svc, cfg.Booking.SweepInterval, cfg.Booking.NoShowGrace, *baseLogger).Run(ctx)

	e := router.New(handlers(cfg, rdb, svc, users, tokens, lots, slots, services, bookings, *baseLogger), options(cfg, rdb, *baseLogger))

	// Serve in the background so the main goroutine can wait for a signal.
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.App.Environment).Msg("http server started")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// senders lists the notification channels. The log sender is always on;
// Telegram joins when a bot token is configured and the bot answers.
func senders(cfg config.Config, logger zerolog.Logger) []notify.Sender {
	out := []notify.Sender{notify.NewLog(logger)}
	if cfg.TelegramToken == "" {
		return out
	}
	tg, err := notify.NewTelegram(cfg.TelegramToken, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		return out
	}
	return append(out, tg)
}

// eventPublisher routes booking events through RabbitMQ when RABBITMQ_URL
// is set, with a consumer feeding the notifier. Without a broker events are
// handled in-process.
func eventPublisher(ctx context.Context, cfg config.Config, n *service.Notifier, logger zerolog.Logger) (service.EventPublisher, *queue.ConnectionManager) {
	if cfg.RabbitURL == "" {
		logger.Info().Msg("no broker configured; notifications are delivered in-process")
		return queue.Direct{Handle: n.Handle}, nil
	}
	conns := queue.NewConnectionManager(queue.Dial, logger)
	consumer := queue.NewConsumer(conns, cfg.RabbitURL, n.Handle, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("booking consumer stopped")
		}
	}()
	return queue.NewPublisher(conns, cfg.RabbitURL, logger), conns
}

// handlers builds the handler set the router mounts.
func handlers(cfg config.Config, rdb *redis.Client, svc *service.BookingService,
	users *repository.UserRepo, tokens *repository.TokenRepo, lots *repository.LotRepo, slots *repository.SlotRepo,
	services *repository.ServiceRepo, bookings *repository.BookingRepo, logger zerolog.Logger) router.Handlers {
	landlord := handler.NewLandlordHandler(lots, slots, services, bookings, svc, logger)
	if cacheCfg := config.LoadCacheConfig(); rdb != nil && cacheCfg.Enabled {
		landlord.Purge = func(ctx context.Context) error {
			return middleware.PurgeCache(ctx, cacheCfg, rdb)
		}
	}
	return router.Handlers{
		Health:   handler.NewHealthHandler(bookings.DB(), rdb),
		Auth:     handler.NewAuthHandler(cfg, users, tokens, logger),
		Public:   handler.NewPublicHandler(lots, slots, services, bookings, svc, logger),
		Bookings: handler.NewBookingHandler(svc, bookings, logger),
		Landlord: landlord,
		Admin:    handler.NewAdminHandler(users, bookings, svc, logger),
	}
}

// options carries the cross-cutting middleware settings to the router.
func options(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) router.Options {
	opt := router.Options{JWTSecret: cfg.JWTSecret, Log: logger}
	if rdb != nil {
		opt.Cache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
		opt.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	}
	return opt
}
