package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-parcel/internal/auth"
	"ms-parcel/internal/booking"
	bookingapi "ms-parcel/internal/booking/api"
	bookingdb "ms-parcel/internal/booking/db"
	bookingkafka "ms-parcel/internal/booking/kafka"
	"ms-parcel/internal/booking/pickup"
	bookingredis "ms-parcel/internal/booking/redis"
	"ms-parcel/internal/config"
	"ms-parcel/internal/database/migrations"
	"ms-parcel/internal/ledger"
	"ms-parcel/internal/logger"
	"ms-parcel/internal/payment"
	paymentapi "ms-parcel/internal/payment/api"
	"ms-parcel/internal/payout"
	payoutapi "ms-parcel/internal/payout/api"
	"ms-parcel/internal/scheduler"
	"ms-parcel/internal/settings"
	settingsapi "ms-parcel/internal/settings/api"
	"ms-parcel/internal/utils"
)

// payoutNotifier adapts the booking event producer to the payout engine.
type payoutNotifier struct {
	producer *bookingkafka.Producer
}

func (n *payoutNotifier) PublishPayoutCompleted(bookingID, travelerID string, amount int64) error {
	return n.producer.PublishBookingEvent(bookingkafka.BookingEvent{
		Type:      bookingkafka.EventPayoutCompleted,
		BookingID: bookingID,
		Actor:     travelerID,
		Amount:    amount,
	})
}

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()

	// --- PostgreSQL (bun) ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Migrations ---
	migrationOpts := migrations.DefaultOptions()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		migrationOpts.MigrationsDir = dir
	}
	runner := migrations.NewRunner(bunDB, migrationOpts)
	if migrationOpts.AutoMigrate {
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
	}

	// --- Platform settings ---
	settingsStore := settings.NewStore(bunDB)
	if err := settingsStore.Seed(context.Background(), cfg.Platform); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to seed platform settings: %v", err))
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Transaction ledger ---
	ledgerStore, err := ledger.NewPostgreSQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize transaction ledger: %v", err))
	}
	defer ledgerStore.Close()
	ledgerService := ledger.NewService(ledgerStore, log)

	// --- Payment providers ---
	httpClient := &http.Client{Timeout: cfg.Server.ReadTimeout}
	walletProvider := payment.NewWalletProvider(redisClient, log)
	cardProvider, err := payment.NewCardProvider(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize card provider: %v", err))
	}
	registry := payment.NewRegistry(
		payment.NewMTNMoMoProvider(cfg.Payment.MTNBaseURL, cfg.Payment.MTNAPIKey, cfg.Payment.MTNWebhookSecret, httpClient, log),
		payment.NewOrangeMoneyProvider(cfg.Payment.OrangeBaseURL, cfg.Payment.OrangeMerchantKey, cfg.Payment.OrangeWebhookSecret, cfg.Payment.OrangeReturnURL, httpClient, log),
		cardProvider,
		walletProvider,
	)

	// --- Kafka ---
	var notifier booking.Notifier
	var producer *bookingkafka.Producer
	if cfg.Kafka.Enabled {
		producer = bookingkafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents)
		defer producer.Close()
		notifier = producer
	}

	// --- Payout engine ---
	dbLayer := &bookingdb.DB{Bun: bunDB}
	payoutStore := payout.NewStore(bunDB)
	var payoutEvents payout.Notifier
	if producer != nil {
		payoutEvents = &payoutNotifier{producer: producer}
	}
	payoutService := payout.NewService(payoutStore, dbLayer, settingsStore,
		payout.NewWalletTransfer(walletProvider), payoutEvents, log)

	// --- Booking engine ---
	bookingService := booking.NewService(
		dbLayer,
		bookingredis.NewRedis(redisClient),
		notifier,
		ledgerService,
		registry,
		settingsStore,
		payoutService,
		pickup.NewQRGenerator(cfg.Payment.PickupQRSecret),
		log,
		utils.GeneratePickupCode,
	)

	// --- Scheduler ---
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if cfg.Scheduler.Enabled {
		sweeper := scheduler.New(bookingService, payoutService, cfg.Scheduler.SweepInterval, log)
		go sweeper.Run(schedulerCtx)
	}

	// --- Router ---
	bookingHandler := bookingapi.NewHandler(bookingService, log)
	payoutHandler := payoutapi.NewHandler(payoutService, log)
	settingsHandler := settingsapi.NewHandler(settingsStore, log)
	webhookHandler := paymentapi.NewWebhookHandler(registry, bookingService, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Provider callbacks authenticate with signatures, not bearer tokens.
	r.Route("/api/v1", func(r chi.Router) {
		webhookHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware())
			bookingHandler.RegisterRoutes(r)
			payoutHandler.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware())
			r.Use(auth.RequireRole("admin"))
			settingsHandler.RegisterRoutes(r)
			payoutHandler.RegisterAdminRoutes(r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := ledgerStore.HealthCheck(); err != nil {
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Booking engine listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received")

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("SERVER", fmt.Sprintf("Forced shutdown: %v", err))
	}
	log.Info("SERVER", "Server exited gracefully")
}
