package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/email"
	"github.com/dukastack/billing/internal/httpclient"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/messaging"
	"github.com/dukastack/billing/internal/sentry"
	"github.com/dukastack/billing/internal/worker"
)

func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			provideHTTPClient,
			email.NewClient,
			email.NewService,
			messaging.NewSender,
			worker.New,
		),
		fx.Invoke(
			initSentry,
			runWorker,
		),
	)
	app.Run()
}

func provideHTTPClient(cfg *config.Configuration, log *logger.Logger) httpclient.Client {
	timeout := time.Duration(cfg.Billing.NotificationTimeoutSeconds) * time.Second
	return httpclient.NewClient(log, timeout)
}

func initSentry(cfg *config.Configuration, log *logger.Logger) error {
	return sentry.Initialize(cfg, log)
}

func runWorker(lc fx.Lifecycle, w *worker.Worker, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := w.Run(ctx); err != nil {
					log.Errorw("worker stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			sentry.Flush()
			return w.Close()
		},
	})
}
