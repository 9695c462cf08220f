package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/auction"
	"github.com/openbid/auction-pipeline/internal/config"
	"github.com/openbid/auction-pipeline/internal/dedup"
	"github.com/openbid/auction-pipeline/internal/event"
	"github.com/openbid/auction-pipeline/internal/kafka"
	"github.com/openbid/auction-pipeline/internal/logger"
	"github.com/openbid/auction-pipeline/internal/postgres"
	"github.com/openbid/auction-pipeline/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("auction-processor", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting auction processor")

	db, err := postgres.New(cfg.PostgresURL)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.InitSchema(ctx); err != nil {
		log.Fatal("failed to init schema", zap.Error(err))
	}

	store, err := dedup.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		event.GroupAuctionProcessors, dedup.DefaultRetention)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer store.Close()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
	if err != nil {
		log.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	auctions := postgres.NewAuctionStore(db)
	bids := postgres.NewBidStore(db)

	handler := auction.NewBidHandler(auctions, bids, producer, log)

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, event.GroupAuctionProcessors, store, log)
	if err != nil {
		log.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.Register(event.TopicBids, handler)

	sched := scheduler.New(auctions, producer, cfg.SchedulerInterval, log)
	if err := sched.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("consumer stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
}
