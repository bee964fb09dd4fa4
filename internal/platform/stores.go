// Package platform собирает инфраструктурные зависимости, общие для сервера и воркера.
package platform

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"story-server/internal/config"
	"story-server/internal/database"
	"story-server/internal/repository"
	"story-server/internal/service"
)

// SetupStores подключает хранилища, заданные в конфигурации. Незаданное хранилище остается nil.
// Возвращаемая функция закрывает все открытые подключения.
func SetupStores(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (service.Stores, func(), error) {
	var stores service.Stores
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Postgres.DSN != "" {
		pool, err := database.NewPool(ctx, cfg.Postgres, logger)
		if err != nil {
			return stores, func() {}, err
		}
		closers = append(closers, pool.Close)
		if migrate && cfg.Postgres.MigrateOnStart {
			if err := database.NewMigrator(pool, logger).Up(ctx); err != nil {
				closeAll()
				return stores, func() {}, fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		stores.Remote = repository.NewPgStoryRepository(pool, logger)
	} else {
		logger.Warn("POSTGRES_DSN is not set, remote story store disabled")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := client.Ping(ctx).Result(); err != nil {
			_ = client.Close()
			closeAll()
			return stores, func() {}, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		stores.Local = repository.NewRedisStoryRepository(client, cfg.Redis.LocalTTL, logger)
	} else {
		logger.Warn("REDIS_ADDR is not set, local story store disabled")
	}
	return stores, closeAll, nil
}
