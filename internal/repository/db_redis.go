// Package repository contains the repository layer for the Comdex API
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/comdex/comdexapi/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and checks the connection
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return redisClient, nil
}
