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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/api"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/config"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/events"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/logging"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/revenue"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store     interfaces.PaymentStore
		directory interfaces.TenantDirectory
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		store = postgres.NewPostgresLedgerStore(db)
		directory = postgres.NewDirectory(db)
	case config.DriverMemory:
		mem := memory.NewMemoryLedgerStore()
		mem.AddTenant("demo-tenant", billing.StatusActive)
		mem.AddBranch("demo-tenant", "demo-branch")
		mem.AddMember("demo-tenant", "demo-branch", "demo-member")
		log.Warn("using in-memory store; data is lost on restart",
			zap.String("tenant_id", "demo-tenant"), zap.String("member_id", "demo-member"))
		store, directory = mem, mem
	}

	var publisher interfaces.EventPublisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, rate limiting fails open", zap.Error(err))
		}
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
	}

	l := ledger.NewLedger(store, directory,
		ledger.WithPublisher(publisher),
		ledger.WithLogger(log),
	)
	defer l.Close()
	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(l, revenue.NewAggregator(store)),
		Directory:      directory,
		Limiter:        limiter,
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
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
