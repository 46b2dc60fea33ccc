package main

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/launchpad/internal/config"
	"github.com/yourusername/launchpad/internal/jobs"
)

// dispatcher は Manager と Pool の共通部分です。
type dispatcher interface {
	Register(runner jobs.Runner)
	Schedule(ctx context.Context, jobID string) (*jobs.Handle, error)
	Shutdown(ctx context.Context) error
}

// setupJobStore はジョブレコードの保存先を作成します。
func setupJobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (jobs.Store, func() error, error) {
	if cfg.JobStore == config.JobStoreMemory {
		logger.Warn("using in-memory job store; job records are lost on restart")
		return jobs.NewMemoryStore(), func() error { return nil }, nil
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return jobs.NewRedisStore(rdb, cfg.JobTTL()), rdb.Close, nil
}

// setupDispatcher は DISPATCH_MODE に応じたディスパッチャを作成します。
// queue モードではワーカーも同じプロセスで起動します。
func setupDispatcher(cfg *config.Config, store jobs.Store, logger *slog.Logger) (dispatcher, func(), error) {
	switch cfg.DispatchMode {
	case config.DispatchPool:
		pool, err := jobs.NewPool(store, cfg.WorkerConcurrency, logger)
		if err != nil {
			return nil, nil, err
		}
		return pool, func() {}, nil
	default:
		manager, err := jobs.NewManager(jobs.ManagerConfig{
			RedisURL:    cfg.QueueRedisURL,
			Concurrency: cfg.WorkerConcurrency,
		}, store, logger)
		if err != nil {
			return nil, nil, err
		}
		return manager, manager.StartWorkers, nil
	}
}
