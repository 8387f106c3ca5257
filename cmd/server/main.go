package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/api"
	"github.com/honeynil/skillswap-timebank/internal/config"
	"github.com/honeynil/skillswap-timebank/internal/handler"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/kafka"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/redis"
	"github.com/honeynil/skillswap-timebank/internal/ledger"
	"github.com/honeynil/skillswap-timebank/internal/observability"
	"github.com/honeynil/skillswap-timebank/internal/outbox"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	"github.com/honeynil/skillswap-timebank/internal/repository/memory"
	"github.com/honeynil/skillswap-timebank/internal/repository/postgres"
	service "github.com/honeynil/skillswap-timebank/internal/services"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var defaultTags = []string{"go", "sql", "python", "guitar", "spanish", "cooking"}

func main() {
	cfg := config.Load()

	shutdownTracing := observability.Setup(cfg)
	defer shutdownTracing(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, systemID, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	if _, err := store.Members.GetByID(ctx, systemID); err != nil {
		slog.Warn("system member missing, top-ups will fail until the database is seeded", "system_member_id", systemID, "error", err)
	}

	// Without Redis the balance cache is disabled and reads go to the store.
	var cache redis.RedisClient
	if client, err := redis.NewClient(ctx, cfg.RedisAddr); err != nil {
		slog.Warn("running without balance cache", "error", err)
	} else {
		cache = client
		defer client.Close()
	}

	l := ledger.New(store.Members, store.Transactions, systemID)
	workflow := service.NewWorkflowService(store, l, cache, cfg.BalanceCacheTTL, cfg.RequestTopic)
	accounts := service.NewAccountService(store, l, cache, cfg.BalanceCacheTTL)
	matching := service.NewMatchingService(store.Requests, store.Members, store.Tags, service.LogNotifier{})

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()
	relay := outbox.NewRelay(store.Tx, store.Outbox, producer, outbox.Config{
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		PollInterval: cfg.OutboxPollInterval,
		SendRetries:  2,
	})
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.RequestTopic, cfg.KafkaGroupID, matching)
	defer consumer.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Consume(ctx)
	}()

	h := handler.NewHandler(workflow, accounts, systemID)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(h, cfg.JWTSecret),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	wg.Wait()
	slog.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, int64, func(), error) {
	if cfg.StorageBackend == "memory" {
		db := memory.NewDB()
		db.AddTags(defaultTags...)
		systemID := db.AddMember("system")
		slog.Info("using in-memory store", "system_member_id", systemID)
		return memory.NewStore(db), systemID, func() {}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN)
	if err != nil {
		return repository.Store{}, 0, nil, err
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return repository.Store{}, 0, nil, err
	}
	return postgres.NewStore(db, cfg.TxMaxRetries), cfg.SystemMemberID, func() { db.Close() }, nil
}
