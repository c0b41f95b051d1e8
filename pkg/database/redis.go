// ==============================================
// pkg/database/redis.go
// ==============================================
package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pairchat/internal/config"

	"github.com/go-redis/redis/v8"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// InitRedis initializes the Redis connection used for presence heartbeats
func InitRedis(cfg config.RedisConfig) error {
	var err error

	redisOnce.Do(func() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     cfg.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			err = fmt.Errorf("failed to ping Redis: %w", pingErr)
			redisClient = nil
			return
		}

		log.Printf("Connected to Redis at %s", cfg.Addr)
	})

	return err
}

// GetRedis returns the Redis client
func GetRedis() *redis.Client {
	if redisClient == nil {
		log.Fatal("Redis not initialized. Call InitRedis first.")
	}
	return redisClient
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
