package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/dukastack/billing/internal/api/cron"
	v1 "github.com/dukastack/billing/internal/api/v1"
	"github.com/dukastack/billing/internal/cache"
	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/dispatch"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/payment"
	"github.com/dukastack/billing/internal/domain/shop"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/domain/webhookevent"
	"github.com/dukastack/billing/internal/email"
	"github.com/dukastack/billing/internal/httpclient"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/messaging"
	"github.com/dukastack/billing/internal/notification"
	"github.com/dukastack/billing/internal/postgres"
	"github.com/dukastack/billing/internal/redis"
	gormrepo "github.com/dukastack/billing/internal/repository/gorm"
	"github.com/dukastack/billing/internal/rest"
	"github.com/dukastack/billing/internal/sentry"
	"github.com/dukastack/billing/internal/service"
)

func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			postgres.NewClient,
			provideRedis,
			provideCache,
			provideHTTPClient,

			gormrepo.NewSubscriptionRepository,
			gormrepo.NewShopRepository,
			gormrepo.NewWebhookEventRepository,
			gormrepo.NewAuditLogRepository,
			gormrepo.NewPaymentRepository,

			email.NewClient,
			email.NewService,
			messaging.NewSender,
			notification.NewRenderer,
			dispatch.NewDispatcher,

			provideServiceParams,
			service.NewDunningService,
			service.NewSweepService,
			service.NewSubscriptionService,
			service.NewWebhookService,

			v1.NewWebhookHandler,
			v1.NewSubscriptionHandler,
			cron.NewBillingHandler,
			cron.NewWebhookHandler,
			provideRouter,
		),
		fx.Invoke(
			initSentry,
			migrate,
			startServer,
		),
	)
	app.Run()
}

func provideRedis(cfg *config.Configuration, log *logger.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	client, err := redis.NewClient(cfg, log)
	if err != nil {
		log.Warnw("redis unavailable, falling back to in-memory cache", "error", err)
		return nil
	}
	return client
}

func provideCache(cfg *config.Configuration, log *logger.Logger, redisClient *redis.Client) cache.Cache {
	var redisCache *cache.RedisCache
	if redisClient != nil {
		redisCache = cache.NewRedisCache(redisClient, log)
	}
	return cache.Initialize(cfg, log, redisCache)
}

func provideHTTPClient(cfg *config.Configuration, log *logger.Logger) httpclient.Client {
	timeout := time.Duration(cfg.Billing.ProviderTimeoutSeconds) * time.Second
	return httpclient.NewClient(log, timeout)
}

func provideServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	c cache.Cache,
	subscriptionRepo subscription.Repository,
	shopRepo shop.Repository,
	eventRepo webhookevent.Repository,
	auditRepo auditlog.Repository,
	paymentRepo payment.Repository,
	dispatcher dispatch.Dispatcher,
	emailSender email.Sender,
	messageSender messaging.Sender,
	renderer notification.Renderer,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:           log,
		Config:           cfg,
		Cache:            c,
		SubscriptionRepo: subscriptionRepo,
		ShopRepo:         shopRepo,
		EventRepo:        eventRepo,
		AuditRepo:        auditRepo,
		PaymentRepo:      paymentRepo,
		Dispatcher:       dispatcher,
		EmailSender:      emailSender,
		MessageSender:    messageSender,
		Renderer:         renderer,
	}
}

func provideRouter(
	webhookHandler *v1.WebhookHandler,
	subscriptionHandler *v1.SubscriptionHandler,
	cronBilling *cron.BillingHandler,
	cronWebhook *cron.WebhookHandler,
	cfg *config.Configuration,
	log *logger.Logger,
) *gin.Engine {
	return rest.NewRouter(rest.Handlers{
		Webhook:      webhookHandler,
		Subscription: subscriptionHandler,
		CronBilling:  cronBilling,
		CronWebhook:  cronWebhook,
	}, cfg, log)
}

func initSentry(cfg *config.Configuration, log *logger.Logger) error {
	return sentry.Initialize(cfg, log)
}

func migrate(client *postgres.Client, log *logger.Logger) error {
	if err := client.Migrate(); err != nil {
		return err
	}
	log.Infow("database schema up to date")
	return nil
}

func startServer(lc fx.Lifecycle, router *gin.Engine, dispatcher dispatch.Dispatcher, cfg *config.Configuration, log *logger.Logger) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorw("server stopped unexpectedly", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			if err := dispatcher.Close(); err != nil {
				log.Errorw("failed to close dispatcher", "error", err)
			}
			sentry.Flush()
			return srv.Shutdown(ctx)
		},
	})
}
