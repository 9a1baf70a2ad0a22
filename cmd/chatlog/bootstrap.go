package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/cache"
	"github.com/lalith-99/chatlog/internal/config"
	"github.com/lalith-99/chatlog/internal/counter"
	"github.com/lalith-99/chatlog/internal/db"
	"github.com/lalith-99/chatlog/internal/observ"
	"github.com/lalith-99/chatlog/internal/reconcile"
	"github.com/lalith-99/chatlog/internal/repository/postgres"
	"github.com/lalith-99/chatlog/internal/search"
	"github.com/lalith-99/chatlog/internal/service"
	"github.com/lalith-99/chatlog/internal/stream"
	"github.com/lalith-99/chatlog/internal/tasks"
)

// memoryQueuePerWorker sizes the in-process task buffer.
const memoryQueuePerWorker = 1024

// stack is everything a long-running role needs. Every role builds the
// same stack; the roles differ only in what they start.
type stack struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *observ.Metrics

	db       *db.DB
	redis    *redis.Client
	executor tasks.Executor
	index    search.Index
	broker   stream.Broker
	tenants  *cache.Tenants

	svc     *service.Service
	sweeper *reconcile.Sweeper

	closers []func()
}

// loadBase reads config and builds the logger. One-shot commands that do
// not touch the data stores stop here.
func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func newStack(ctx context.Context) (_ *stack, err error) {
	cfg, logger, err := loadBase()
	if err != nil {
		return nil, err
	}
	s := &stack{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observ.NewMetrics(s.registry)

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	s.db, err = db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	s.closers = append(s.closers, s.db.Close)

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s.redis = redis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = s.redis.Close() })
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connection established", zap.String("addr", opts.Addr))

	policy := tasks.Policy{
		MaxAttempts: cfg.TaskMaxAttempts,
		Backoff:     cfg.TaskBackoff,
		MaxBackoff:  cfg.TaskMaxBackoff,
	}
	switch cfg.TaskDriver {
	case "memory":
		s.executor = tasks.NewMemoryExecutor(cfg.WorkerConcurrency*memoryQueuePerWorker,
			cfg.WorkerConcurrency, policy, logger, s.metrics)
	default:
		s.executor, err = tasks.ConnectNATS(ctx, cfg.NATSURL, tasks.NATSOptions{
			Workers: cfg.WorkerConcurrency,
			AckWait: cfg.TaskAckWait,
			Policy:  policy,
		}, logger, s.metrics)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
	}
	s.closers = append(s.closers, func() {
		if err := s.executor.Close(); err != nil {
			logger.Warn("close task executor", zap.Error(err))
		}
	})

	switch cfg.SearchDriver {
	case "postgres":
		s.index = search.NewPostgresIndex(s.db.Pool())
	default:
		s.index, err = search.NewWeaviateIndex(cfg.WeaviateURL, logger)
		if err != nil {
			return nil, fmt.Errorf("create search index: %w", err)
		}
	}
	if err := s.index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure search schema: %w", err)
	}

	s.tenants, err = cache.NewTenants(cfg.TenantCacheMaxItems, cfg.TenantCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("create tenant cache: %w", err)
	}
	s.closers = append(s.closers, s.tenants.Close)

	s.broker = stream.NewRedisBroker(s.redis, logger)

	pool := s.db.Pool()
	apps := postgres.NewApplicationStore(pool)
	chats := postgres.NewChatStore(pool)
	messages := postgres.NewMessageStore(pool)
	counters := counter.NewRedisStore(s.redis)

	s.svc = service.New(service.Deps{
		Applications: apps,
		Chats:        chats,
		Messages:     messages,
		Counters:     counters,
		Tasks:        s.executor,
		Index:        s.index,
		Events:       s.broker,
		Tenants:      s.tenants,
		Metrics:      s.metrics,
		Logger:       logger,
		SearchLimit:  cfg.SearchResultLimit,
	})
	s.sweeper = reconcile.NewSweeper(apps, chats, messages, counters,
		reconcile.NewRedisLocker(s.redis),
		reconcile.Options{BatchSize: cfg.SweepBatchSize, LockTTL: cfg.SweepLockTTL},
		logger, s.metrics)

	logger.Info("chatlog stack ready",
		zap.String("env", cfg.Env),
		zap.String("task_driver", cfg.TaskDriver),
		zap.String("search_driver", cfg.SearchDriver),
	)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	_ = s.logger.Sync()
}
