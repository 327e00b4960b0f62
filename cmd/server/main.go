package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/RentalSettlementService/internal/api"
	"github.com/honeynil/RentalSettlementService/internal/config"
	"github.com/honeynil/RentalSettlementService/internal/handler"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/kafka"
	"github.com/honeynil/RentalSettlementService/internal/infrastructure/redis"
	"github.com/honeynil/RentalSettlementService/internal/observability"
	"github.com/honeynil/RentalSettlementService/internal/repository"
	"github.com/honeynil/RentalSettlementService/internal/repository/memory"
	"github.com/honeynil/RentalSettlementService/internal/repository/postgres"
	service "github.com/honeynil/RentalSettlementService/internal/services"
)

const (
	requestDedupTTL = 24 * time.Hour
	paymentDedupTTL = 7 * 24 * time.Hour
)

func main() {
	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdown := observability.Setup("rental-settlement-service", cfg.OTLPEndpoint)
	defer shutdown(context.Background())

	// Хранилище
	var store repository.Store
	switch cfg.StorageDriver {
	case config.DriverMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		store = memory.NewStore()
	default:
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if cfg.RunMigrations {
			if err := postgres.Migrate(db.DB); err != nil {
				slog.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		store = postgres.NewStore(db)
	}

	// Redis нужен для идемпотентности запросов и платежных событий
	var requests, payments *redis.Deduplicator
	redisClient, err := redis.NewClient(context.Background(), cfg.RedisAddr)
	switch {
	case err == nil:
		defer redisClient.Close()
		requests = redis.NewDeduplicator(redisClient, "request", requestDedupTTL)
		payments = redis.NewDeduplicator(redisClient, "payment", paymentDedupTTL)
	case cfg.StorageDriver == config.DriverMemory:
		slog.Warn("redis unavailable, request deduplication and payment consumer disabled", "error", err)
	default:
		slog.Error("redis is required with postgres storage", "addr", cfg.RedisAddr)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	// Инициализируем сервисы
	wallet := service.NewWalletService(store, producer)
	referrals := service.NewReferralService(store, wallet, producer)
	membership := service.NewMembershipService(store, wallet, producer)
	bookings := service.NewBookingService(store, producer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Платежные события от шлюза
	if payments != nil {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, membership, bookings, payments)
		defer consumer.Close()
		go consumer.Consume(ctx)
	}

	h := handler.NewHandler(wallet, referrals, membership, bookings, requests)
	router := api.SetupRouter(h, cfg.JWTSecret, api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
