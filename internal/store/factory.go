package store

import (
	"context"
	"fmt"

	"github.com/devrev/dispatchboard/internal/config"
	"go.uber.org/zap"
)

// NewBoardStore opens the store selected by cfg.Driver
func NewBoardStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (BoardStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresBoardStore(ctx, cfg, logger)
	case config.DriverMemory:
		logger.Warn("Using in-memory board store; data is lost on restart")
		return NewMemoryStore(logger), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewBoardCache builds the cache selected by cfg.Backend
func NewBoardCache(cfg config.CacheConfig, redisCfg config.RedisConfig, logger *zap.Logger) (BoardCache, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return NewInMemoryBoardCache(cfg.MaxSize, logger), nil
	case config.CacheBackendRedis:
		return NewRedisBoardCache(redisCfg, logger)
	case config.CacheBackendNone:
		return NewNoopBoardCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
