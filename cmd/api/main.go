package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/payout-ledger/internal/config"
	"github.com/josh-kwaku/payout-ledger/internal/events"
	"github.com/josh-kwaku/payout-ledger/internal/ledger"
	"github.com/josh-kwaku/payout-ledger/internal/logging"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
	"github.com/josh-kwaku/payout-ledger/internal/middleware"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
	"github.com/josh-kwaku/payout-ledger/internal/service"
	"github.com/josh-kwaku/payout-ledger/internal/service/withdrawal"
	"github.com/josh-kwaku/payout-ledger/migrations"
)

func main() {
	if err := run(); err != nil {
		slog.Error("payout-ledger exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init("payout-ledger", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		applied, err := repository.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "versions", applied)
	}
	db := repository.NewDB(pool)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	merchantRepo := repository.NewMerchantRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	methodRepo := repository.NewPaymentMethodRepository(pool)
	withdrawalRepo := repository.NewWithdrawalRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	feeRepo := repository.NewFeePolicyRepository(pool)
	webhookRepo := repository.NewWebhookEventRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	bl := ledger.New(ledger.Deps{
		DB:        db,
		Merchants: merchantRepo,
		Balances:  repository.NewBalanceRepository(pool),
		Entries:   repository.NewLedgerRepository(pool),
		Credits:   repository.NewBalanceCreditRepository(pool),
		Outbox:    outboxRepo,
		Metrics:   m,
	})
	withdrawals := withdrawal.NewService(withdrawal.Deps{
		DB:             db,
		Merchants:      merchantRepo,
		PaymentMethods: methodRepo,
		Withdrawals:    withdrawalRepo,
		Events:         repository.NewWithdrawalEventRepository(pool),
		Outbox:         outboxRepo,
		Fees:           feeRepo,
		Ledger:         bl,
		Metrics:        m,
	})
	methods := service.NewPaymentMethodService(methodRepo, merchantRepo, withdrawalRepo, db)
	merchants := service.NewMerchantService(merchantRepo, userRepo, bl, db)
	fees := service.NewFeePolicyService(feeRepo, outboxRepo, db)
	processor := service.NewEventProcessor(webhookRepo, bl, withdrawals, methods, db, m, logger, cfg.WebhookPollInterval)

	publisher := newPublisher(cfg, rdb, logger)
	defer publisher.Close()
	relay := events.NewRelay(db, outboxRepo, publisher, m, logger, events.RelayConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	var store middleware.IdempotencyStore = idempotencyRepo
	if rdb != nil {
		store = repository.NewRedisIdempotencyStore(rdb)
	}

	router := newRouter(routerDeps{
		cfg:         cfg,
		metrics:     m,
		idempotency: store,
		pingers:     readinessChecks(pool, rdb),
		users:       userRepo,
		ledger:      bl,
		withdrawals: withdrawals,
		methods:     methods,
		merchants:   merchants,
		fees:        fees,
		webhooks:    webhookRepo,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return relay.Start(gctx) })
	g.Go(func() error { return processor.Start(gctx) })
	g.Go(func() error { return reportBacklog(gctx, outboxRepo, webhookRepo, m, logger) })
	if rdb == nil {
		g.Go(func() error { return cleanIdempotency(gctx, idempotencyRepo, logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

// newPublisher picks Kafka, then Redis streams, then the log. With both
// brokers configured events go to both, and a row counts as published when
// either accepts it.
func newPublisher(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) events.Publisher {
	var targets []events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("outbox publisher: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		targets = append(targets, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if rdb != nil {
		logger.Info("outbox publisher: redis stream", "stream", cfg.RedisStream)
		targets = append(targets, events.NewRedisStreamPublisher(rdb, cfg.RedisStream))
	}

	switch len(targets) {
	case 0:
		logger.Warn("outbox publisher: log only, no broker configured")
		return events.NewLogPublisher(logger)
	case 1:
		return targets[0]
	default:
		return events.NewFanoutPublisher(logger, targets...)
	}
}

func cleanIdempotency(ctx context.Context, repo *repository.IdempotencyRepository, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				logger.Error("idempotency cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("idempotency entries expired", "count", n)
			}
		}
	}
}
