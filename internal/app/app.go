package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/museyou/gongu-go/internal/config"
	"github.com/museyou/gongu-go/internal/notify"
	"github.com/museyou/gongu-go/internal/postgres"
	redisx "github.com/museyou/gongu-go/internal/redis"
	"github.com/museyou/gongu-go/internal/repository"
	"github.com/museyou/gongu-go/internal/repository/memory"
	postgresrepo "github.com/museyou/gongu-go/internal/repository/postgres"
	redisrepo "github.com/museyou/gongu-go/internal/repository/redis"
	"github.com/museyou/gongu-go/internal/service"
	"github.com/museyou/gongu-go/internal/service/catalog"
	"github.com/museyou/gongu-go/internal/service/grouppurchase"
	httpgin "github.com/museyou/gongu-go/internal/transport/http/gin"
)

// subscriber is implemented by both the Redis pubsub and the in-process
// broker.
type subscriber interface {
	Subscribe(ctx context.Context, handler notify.Handler) error
}

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	changes    subscriber
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Storage backend: real postgres or the in-memory mock, selected by
	// STORAGE_DRIVER. Services see only the repository.Store interface.
	var store repository.Store
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store = memory.NewStore(memory.Config{
			SnapshotPath: cfg.Storage.SnapshotPath,
			Latency:      cfg.Storage.MockLatency,
		})
		logger.Info("using in-memory store",
			"snapshot", cfg.Storage.SnapshotPath,
			"latency", cfg.Storage.MockLatency,
		)
	default:
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Name,
			cfg.Postgres.SSLMode,
		)

		pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}

		store = postgresrepo.NewStore(pgxPool)
	}

	// Redis is optional: without REDIS_ADDR the caching, rate limiting
	// and idempotency layers are skipped and change events fan out through
	// an in-process broker instead of pubsub.
	var (
		cache     *redisrepo.Cache
		limiter   *redisrepo.SlidingWindowLimiter
		idem      *redisrepo.IdempotencyStore
		publisher notify.Publisher = notify.NewBroker()
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(context.Background(), redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		cache = redisrepo.New(rdb)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "mutations", 10, 1*time.Minute)
		idem = redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
		publisher = redisx.NewGroupPurchasesPubSub(rdb)
	} else {
		logger.Info("redis disabled, running without cache and rate limiting")
	}

	services := service.NewServices(store, cache, publisher, limiter, service.Config{
		GroupPurchase: grouppurchase.Config{},
		Catalog:       catalog.Config{},
	})

	router := httpgin.NewRouter(services, idem, logger, httpgin.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		AdminUserID: cfg.Auth.AdminUserID,
	})

	changes, _ := publisher.(subscriber)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		changes: changes,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Change-event consumer; logs mutations for operational visibility.
	if a.changes != nil {
		g.Go(func() error {
			err := a.changes.Subscribe(gCtx, func(_ context.Context, id uuid.UUID) {
				a.logger.Debug("group purchase changed", "id", id)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
