// Command hold-reaper expires overdue holds out of band, for deployments
// where the API instances run with the in-process reaper disabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-venue-ticketing/internal/clock"
	"ms-venue-ticketing/internal/config"
	"ms-venue-ticketing/internal/database"
	"ms-venue-ticketing/internal/holds"
	holdredis "ms-venue-ticketing/internal/holds/redis"
	"ms-venue-ticketing/internal/inventory"
	invdb "ms-venue-ticketing/internal/inventory/db"
	"ms-venue-ticketing/internal/kafka"
	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/notify"
	"ms-venue-ticketing/internal/tickets"
	ticketdb "ms-venue-ticketing/internal/tickets/db"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, "hold-reaper")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	opts := []holds.Option{holds.WithBatchSize(cfg.Holds.ReapBatchSize)}

	var publisher *notify.KafkaPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		publisher = notify.NewKafkaPublisher(producer, cfg.Kafka.Topics, log)
		opts = append(opts, holds.WithPublisher(publisher))
	}

	clk := clock.NewSystem()
	machine := tickets.NewMachine(&ticketdb.DB{Bun: bunDB}, clk)
	inv := inventory.NewService(&invdb.DB{Bun: bunDB}, clk, log)

	var expiry *holdredis.ExpirySignal
	if cfg.Redis.Enabled {
		client, err := holdredis.Connect(cfg.Redis, log)
		if err != nil {
			log.Warn("REDIS", fmt.Sprintf("Sweeping on the interval only: %v", err))
		} else {
			defer client.Close()
			expiry = holdredis.NewExpirySignal(client, log)
			expiry.EnableNotifications(ctx)
			opts = append(opts, holds.WithExpirySignal(expiry))
		}
	}
	manager := holds.NewManager(bunDB, inv, machine, clk, log, opts...)

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

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	reaper.Stop()
	stats := reaper.Stats()
	log.Info("REAP", fmt.Sprintf("Stopped after %d sweeps, %d holds reaped", stats.Sweeps, stats.TotalReaped))
	if publisher != nil {
		publisher.Wait()
		_ = producer.Close()
	}
}
