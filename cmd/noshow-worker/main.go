package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduling-engine/internal/app"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
	"github.com/hackgods/clinic-scheduling-engine/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.Init("noshow-worker", cfg.Env, cfg.LogLevel)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCtx = logger.WithContext(rootCtx)

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("no_show_grace", cfg.Scheduling.NoShowGrace).
		Msg("noshow-worker starting up")

	a, err := app.New(rootCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		stop()
		os.Exit(1)
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		sweep(ctx, a)
		return nil
	})
	if cfg.RedisEnabled() {
		g.Go(func() error {
			return deliver(ctx, cfg)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("noshow-worker stopped")
}

// sweep runs the periodic maintenance until ctx is cancelled.
func sweep(ctx context.Context, a *app.App) {
	runOnce(ctx, a)

	ticker := time.NewTicker(a.Config.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Msg("shutdown signal received, stopping sweeps")
			return
		case <-ticker.C:
			runOnce(ctx, a)
		}
	}
}

func runOnce(ctx context.Context, a *app.App) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	logger := zerolog.Ctx(ctx)
	start := time.Now()

	marked, err := a.Appointments.MarkOverdueNoShows(runCtx, a.Config.Scheduling.NoShowGrace)
	if err != nil {
		logger.Error().Err(err).Msg("no-show sweep failed")
	}

	expired, err := a.Waitlist.ExpireStale(runCtx, a.Config.Waitlist.NotifyTTL, a.Config.Waitlist.MaxAge)
	if err != nil {
		logger.Error().Err(err).Msg("waitlist expiry failed")
	}

	logger.Info().
		Int("no_shows", marked).
		Int64("offers_expired", expired.Notified).
		Int64("entries_expired", expired.Waiting).
		Dur("took", time.Since(start)).
		Msg("sweep complete")
}

// deliver drains the notification queue until ctx is cancelled.
func deliver(ctx context.Context, cfg config.Config) error {
	srv := notify.NewServer(app.RedisSettings(cfg).AsynqOpt(), cfg.NotifyWorkers)
	if err := srv.Start(notify.NewServeMux(notify.LogSender{})); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Int("concurrency", cfg.NotifyWorkers).Msg("notification server started")

	<-ctx.Done()
	srv.Shutdown()
	return nil
}
