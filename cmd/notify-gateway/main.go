package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openbid/auction-pipeline/internal/config"
	"github.com/openbid/auction-pipeline/internal/dedup"
	"github.com/openbid/auction-pipeline/internal/event"
	"github.com/openbid/auction-pipeline/internal/kafka"
	"github.com/openbid/auction-pipeline/internal/logger"
	"github.com/openbid/auction-pipeline/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("notify-gateway", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting notification gateway")

	store, err := dedup.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		event.GroupNotifications, dedup.DefaultRetention)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer store.Close()

	manager := ws.NewManager(log)
	go manager.Run()

	notifier := ws.NewNotifier(manager, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, event.GroupNotifications, store, log)
	if err != nil {
		log.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.Register(event.TopicBids, notifier)
	consumer.Register(event.TopicAuctions, notifier)
	consumer.Register(event.TopicAchievements, notifier)

	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("consumer stopped", zap.Error(err))
		}
	}()

	handler := ws.NewHandler(manager, log)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
}
