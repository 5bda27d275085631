package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pact/internal/chain/cache"
	chainhandler "pact/internal/chain/handler"
	"pact/internal/chain/pool"
	"pact/internal/chain/rpc"
	contracthandler "pact/internal/contract/handler"
	"pact/internal/contract/service"
	"pact/internal/contract/store"
	jwttoken "pact/internal/jwt_token"
	"pact/internal/notify"
	"pact/internal/notify/kafka"
	"pact/internal/platform/config"
	"pact/internal/platform/httpserver"
	"pact/internal/platform/logger"
	"pact/internal/platform/metrics"
	"pact/internal/platform/redis"
	httptransport "pact/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checks := map[string]httptransport.HealthCheck{}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	balanceCache := cache.Store(cache.NewMemory(cfg.Chain.BalanceCacheTTL))
	if redisClient != nil {
		defer redisClient.Close()
		balanceCache = cache.NewRedis(redisClient.Client, cfg.Chain.BalanceCacheTTL)
		checks["redis"] = redisClient.Health
		log.Info("balance cache backed by redis")
	}

	conns := make([]pool.Conn, 0, len(cfg.Chain.Endpoints))
	for _, endpoint := range cfg.Chain.Endpoints {
		conns = append(conns, rpc.New(endpoint, cfg.Chain.RequestTimeout))
	}
	chainPool := pool.New(conns, log,
		pool.WithMetrics(m),
		pool.WithCache(balanceCache),
		pool.WithRetry(cfg.Chain.RetryAttempts, cfg.Chain.RetryBaseDelay),
		pool.WithHealthInterval(cfg.Chain.HealthCheckInterval),
	)
	go chainPool.Run(ctx)

	var notifier notify.Notifier = notify.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = publisher
		log.Info("notifications publishing to kafka", "topic", cfg.Kafka.Topic)
	}

	subs := pool.NewSubscriptionManager(chainPool, notifier, log, cfg.Chain.SubscriptionPoll)
	defer subs.Close()

	contractStore, closeStore, err := openStore(ctx, cfg.Postgres, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	coordinator := service.New(contractStore,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(notifier),
		service.WithProofRequired(cfg.Signer.RequireProof),
		service.WithChainInfo(cfg.Chain.Network, cfg.Chain.ProgramAddress),
	)

	validator := jwttoken.NewValidatorAdapter(
		jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))

	router := httptransport.NewRouter(checks,
		contracthandler.New(coordinator, log, m, validator),
		chainhandler.New(chainPool, subs, log, m, validator),
	)

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting pact server", "addr", cfg.Addr, "network", cfg.Chain.Network)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore picks the contract store backend. Postgres when configured, the
// in-memory store otherwise. The schema is idempotent so applying it at
// startup is safe.
func openStore(ctx context.Context, cfg config.Postgres, log *slog.Logger, checks map[string]httptransport.HealthCheck) (store.Store, func(), error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set; contracts held in memory")
		return store.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, store.Schema); err != nil {
		db.Close()
		return nil, nil, err
	}

	checks["postgres"] = db.PingContext
	return store.NewPostgres(db), func() { db.Close() }, nil
}
