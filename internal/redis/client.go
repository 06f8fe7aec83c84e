package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Settings is the connection info shared by the lock client and the task queue.
type Settings struct {
	Addr     string
	Username string
	Password string
}

func (s Settings) Options() *redis.Options {
	return &redis.Options{
		Addr:         s.Addr,
		Username:     s.Username,
		Password:     s.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}
}

// AsynqOpt points the notification queue at the same Redis.
func (s Settings) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:         s.Addr,
		Username:     s.Username,
		Password:     s.Password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

func NewRedisClient(ctx context.Context, s Settings) (*redis.Client, error) {
	rdb := redis.NewClient(s.Options())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
