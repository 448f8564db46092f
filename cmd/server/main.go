package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/subsync/api"
	"github.com/dmitrymomot/subsync/billing"
	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/email"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/redis"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		logCfg     logger.Config
		httpCfg    httpserver.Config
		pgCfg      pg.Config
		redisCfg   redis.Config
		billingCfg billing.Config
		paddleCfg  billing.PaddleConfig
		emailCfg   email.Config
	)
	config.MustLoad(&logCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&billingCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&emailCfg)

	log := logger.New("subsync", logCfg)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	provider, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	var sender email.Sender
	if emailCfg.Enabled() {
		if sender, err = email.NewPostmarkSender(emailCfg); err != nil {
			return err
		}
	} else {
		log.Info("postmark not configured, using dev email sender")
		sender = email.NewDevSender(log)
	}

	svc := billing.NewService(
		billing.NewPGStore(pool),
		provider,
		billingCfg,
		billing.WithLogger(log),
		billing.WithReplayGuard(billing.NewRedisReplayGuard(redisClient, billingCfg.WebhookReplayTTL)),
		billing.WithNotifier(billing.NewEmailNotifier(sender)),
	)

	sweeper := billing.NewSweeper(svc, billingCfg, billing.WithSweeperLogger(log))

	router := api.Router(api.Deps{Service: svc, Log: log})
	router.Get("/ready", httpserver.Healthcheck(log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))

	srv := httpserver.New(httpCfg, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Start(ctx)
	})
	g.Go(func() error {
		return srv.Run(ctx, router)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
