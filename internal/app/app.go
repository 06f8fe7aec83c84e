// Package app wires the scheduling services from configuration. Both the
// API server and the background worker build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/availability"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/directory"
	"github.com/hackgods/clinic-scheduling-engine/internal/lock"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
	"github.com/hackgods/clinic-scheduling-engine/internal/waitlist"
)

type App struct {
	Config config.Config

	Postgres *pgxpool.Pool
	Redis    *redis.Client // nil when Redis is disabled
	Queue    *asynq.Client // nil when Redis is disabled

	Directory    *directory.Service
	Appointments *appointment.Service
	Availability *availability.Aggregator
	Waitlist     *waitlist.Coordinator
}

// Settings converts the deployment config into slot settings.
func Settings(cfg config.Config) availability.Settings {
	return availability.Settings{
		DefaultDuration: cfg.Scheduling.DefaultDuration,
		DefaultBuffer:   cfg.Scheduling.DefaultBuffer,
		Step:            cfg.Scheduling.SlotIncrement,
		Location:        cfg.Scheduling.Location,
	}
}

func RedisSettings(cfg config.Config) redisclient.Settings {
	return redisclient.Settings{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}
}

// New connects to the stores and builds every service. Redis is optional: without
// it bookings lock in-process and notifications are only logged.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := zerolog.Ctx(ctx)

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	a := &App{Config: cfg, Postgres: pool}

	var (
		locker     lock.Locker
		dispatcher notify.Dispatcher
	)
	if cfg.RedisEnabled() {
		rs := RedisSettings(cfg)
		rdb, err := redisclient.NewRedisClient(ctx, rs)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		a.Redis = rdb
		a.Queue = asynq.NewClient(rs.AsynqOpt())
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		dispatcher = notify.NewAsynqDispatcher(a.Queue)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, using in-process locks and log-only notifications")
		locker = lock.NewLocalLocker(cfg.LockWait)
		dispatcher = notify.LogDispatcher{}
	}

	settings := Settings(cfg)

	a.Directory = directory.NewService(directory.NewPgRepository(pool))
	a.Appointments = appointment.NewService(appointment.NewPgRepository(pool), a.Directory, locker, settings)
	a.Availability = availability.NewAggregator(a.Directory, a.Appointments, settings)
	a.Waitlist = waitlist.NewCoordinator(waitlist.NewPgRepository(pool), dispatcher, waitlist.Settings{
		Location: cfg.Scheduling.Location,
		OfferTTL: cfg.Waitlist.NotifyTTL,
	})

	a.Appointments.OnSlotReleased(a.Waitlist)
	a.Appointments.NotifyBookings(dispatcher)

	return a, nil
}

func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Postgres.Close()
}
