package service

import (
	"github.com/dukastack/billing/internal/cache"
	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/dispatch"
	"github.com/dukastack/billing/internal/domain/auditlog"
	"github.com/dukastack/billing/internal/domain/payment"
	"github.com/dukastack/billing/internal/domain/shop"
	"github.com/dukastack/billing/internal/domain/subscription"
	"github.com/dukastack/billing/internal/domain/webhookevent"
	"github.com/dukastack/billing/internal/email"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/messaging"
	"github.com/dukastack/billing/internal/notification"
)

// ServiceParams holds the dependencies shared by all services.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache

	SubscriptionRepo subscription.Repository
	ShopRepo         shop.Repository
	EventRepo        webhookevent.Repository
	AuditRepo        auditlog.Repository
	PaymentRepo      payment.Repository

	Dispatcher    dispatch.Dispatcher
	EmailSender   email.Sender
	MessageSender messaging.Sender
	Renderer      notification.Renderer
}
