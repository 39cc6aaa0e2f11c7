package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-venue-ticketing/internal/analytics"
	"ms-venue-ticketing/internal/api"
	"ms-venue-ticketing/internal/auth"
	"ms-venue-ticketing/internal/availability"
	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/config"
	"ms-venue-ticketing/internal/database"
	"ms-venue-ticketing/internal/database/migrations"
	"ms-venue-ticketing/internal/holds"
	holdredis "ms-venue-ticketing/internal/holds/redis"
	"ms-venue-ticketing/internal/inventory"
	invdb "ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/kafka"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/notify"
	"ms-venue-ticketing/internal/order"
	"ms-venue-ticketing/internal/schedule"
	"ms-venue-ticketing/internal/sse"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
	"ms-venue-ticketing/internal/tickets/qr"
)

// prepareSchema brings the database up to date: SQL migrations on Postgres,
// schema straight from the models on SQLite.
func prepareSchema(ctx context.Context, db *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) error {
	if cfg.Driver == "sqlite" {
		if err := database.CreateSchema(ctx, db); err != nil {
			return err
		}
		log.LogDatabase("CREATE", "schema", fmt.Sprintf("%d tables created from models", len(database.Models())))
		return nil
	}
	runner := migrations.NewRunner(db, migrations.MigrateOptions{
		MigrationsDir: cfg.MigrationsDir,
		AutoMigrate:   cfg.AutoMigrate,
	}, log)
	defer runner.Close()
	return runner.RunMigrations()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.OIDCIssuer))
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	case cfg.JWTSecret != "":
		log.Warn("AUTH", "OIDC_ISSUER not set, accepting HS256 tokens signed with AUTH_JWT_SECRET")
		return auth.NewHMACVerifier(cfg.JWTSecret), nil
	}
	return nil, errors.New("either OIDC_ISSUER or AUTH_JWT_SECRET must be set")
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("[CONFIG] .env file not found, using environment variables")
	}
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	log.Info("APP", "Starting venue ticketing service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	if err := prepareSchema(ctx, bunDB, cfg.Database, log); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if cfg.QR.SecretKey == "" {
		log.Fatal("CONFIG", "QR_SECRET_KEY not set")
	}
	verifier, err := newVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	if cfg.Auth.PaymentCallbackSecret == "" {
		log.Warn("CONFIG", "PAYMENT_CALLBACK_SECRET not set, payment callbacks will be rejected")
	}

	clk := clock.NewSystem()
	seats := sse.NewSeatEventEmitter(log)
	publishers := notify.Fanout{seats}

	var producer *kafka.Producer
	var kafkaPublisher *notify.KafkaPublisher
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.TicketEvents, cfg.Kafka.Topics.SeatStatus, cfg.Kafka.Topics.PaymentResults}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		kafkaPublisher = notify.NewKafkaPublisher(producer, cfg.Kafka.Topics, log)
		publishers = append(publishers, kafkaPublisher)
		log.Info("KAFKA", fmt.Sprintf("Publishing to %v", cfg.Kafka.Brokers))
	}

	holdOpts := []holds.Option{
		holds.WithReservationTTL(cfg.Holds.ReservationTTL),
		holds.WithPurchaseTTL(cfg.Holds.PurchaseHoldTTL),
		holds.WithBatchSize(cfg.Holds.ReapBatchSize),
		holds.WithPublisher(publishers),
	}
	var expiry *holdredis.ExpirySignal
	if cfg.Redis.Enabled {
		client, err := holdredis.Connect(cfg.Redis, log)
		if err != nil {
			log.Warn("REDIS", fmt.Sprintf("Running without expiry signal: %v", err))
		} else {
			defer client.Close()
			expiry = holdredis.NewExpirySignal(client, log)
			expiry.EnableNotifications(ctx)
			holdOpts = append(holdOpts, holds.WithExpirySignal(expiry))
		}
	}

	ticketStore := &ticketdb.DB{Bun: bunDB}
	machine := tickets.NewMachine(ticketStore, clk)
	inv := inventory.NewService(&invdb.DB{Bun: bunDB}, clk, log)
	manager := holds.NewManager(bunDB, inv, machine, clk, log, holdOpts...)
	orders := order.NewOrderService(bunDB, machine, manager, clk, log,
		order.WithPaymentSessionTTL(cfg.Holds.PaymentSessionTTL),
		order.WithPublisher(publishers))

	reaper := holds.NewReaper(manager, cfg.Holds.ReapInterval, log)
	if err := reaper.Start(ctx); err != nil {
		log.Fatal("REAP", err.Error())
	}

	if expiry != nil {
		go func() {
			err := expiry.Subscribe(ctx, func(ctx context.Context, holdID string) error {
				_, err := manager.ReapHold(ctx, holdID)
				return err
			})
			if err != nil {
				log.Error("REDIS", fmt.Sprintf("Expiry subscription ended: %v", err))
			}
		}()
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentResults, cfg.Kafka.ConsumerGroup, log)
		go func() {
			err := consumer.Start(ctx, func(ctx context.Context, res kafka.PaymentResult) error {
				_, err := orders.SettlePayment(ctx, res.SessionID, res.Outcome)
				return err
			})
			if err != nil {
				log.Error("KAFKA", fmt.Sprintf("Payment result consumer ended: %v", err))
			}
		}()
	}

	handler := &api.Handler{
		Holds:        manager,
		Orders:       orders,
		Tickets:      tickets.NewTicketService(ticketStore, qr.NewQRGenerator(cfg.QR.SecretKey), log),
		Availability: availability.NewService(bunDB, inv, clk, log),
		Inventory:    inv,
		Schedule:     schedule.NewService(bunDB, clk, log),
		Sales:        analytics.NewService(bunDB, log),
		Seats:        seats,
		Logger:       log,
	}

	router := api.NewRouter(handler, verifier, api.RouterConfig{
		CallbackSecret: cfg.Auth.PaymentCallbackSecret,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	// No WriteTimeout: seat streams stay open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Venue ticketing service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}

	cancel()
	reaper.Stop()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Closing consumer: %v", err))
		}
	}
	if kafkaPublisher != nil {
		kafkaPublisher.Wait()
		if err := producer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Closing producer: %v", err))
		}
	}
	log.Info("APP", "Shutdown complete")
}
