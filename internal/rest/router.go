package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dukastack/billing/internal/api/cron"
	v1 "github.com/dukastack/billing/internal/api/v1"
	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/rest/middleware"
)

// Handlers groups every HTTP handler wired into the router.
type Handlers struct {
	Webhook      *v1.WebhookHandler
	Subscription *v1.SubscriptionHandler
	CronBilling  *cron.BillingHandler
	CronWebhook  *cron.WebhookHandler
}

// NewRouter assembles the gin engine with the shared middleware chain.
func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = log.GinWriter()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Sentry(cfg),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider-facing ingestion endpoint; no auth beyond the signature.
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/stripe", handlers.Webhook.HandleStripeWebhook)
	}

	apiV1 := router.Group("/v1")
	{
		apiV1.POST("/subscriptions", handlers.Subscription.CreateSubscription)
		apiV1.GET("/subscriptions/:id", handlers.Subscription.GetSubscription)
		apiV1.POST("/subscriptions/:id/reactivate", handlers.Subscription.ReactivateSubscription)
		apiV1.POST("/subscriptions/:id/cancel", handlers.Subscription.CancelSubscription)
		apiV1.GET("/shops/:shop_id/subscription", handlers.Subscription.GetShopSubscription)
	}

	// Scheduled passes, triggered by the external scheduler.
	cronGroup := router.Group("/cron")
	{
		cronGroup.POST("/billing/sweep", handlers.CronBilling.RunSweep)
		cronGroup.POST("/billing/dunning", handlers.CronBilling.RunDunning)
		cronGroup.POST("/webhooks/replay", handlers.CronWebhook.ReplayFailedEvents)
		cronGroup.POST("/webhooks/purge", handlers.CronWebhook.PurgeProcessedEvents)
	}

	return router
}
