// Package redis keeps L402 credentials in Redis so that several processes
// can share one paid credential.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// Connect creates a client for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error(pingCtx, "Redis ping failed", err, logger.Fields{"addr": cfg.Address})
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info(ctx, "Redis connection established", logger.Fields{"addr": cfg.Address, "db": cfg.DB})
	return client, nil
}
