// Package redisx owns the Redis client, the key namespace and the
// campaign-change pubsub channel.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int

	// PoolSize of zero keeps the go-redis default (10 per CPU).
	PoolSize int
}

func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	const op = "redisx.New"

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(ctxPing).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return client, nil
}
