package testutil

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/dukastack/billing/internal/cache"
	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/notification"
	"github.com/dukastack/billing/internal/service"
)

// Stores groups every in-memory repository used by service tests.
type Stores struct {
	Subscriptions *InMemorySubscriptionStore
	Shops         *InMemoryShopStore
	Events        *InMemoryWebhookEventStore
	AuditLogs     *InMemoryAuditLogStore
	Payments      *InMemoryPaymentStore
}

// BaseServiceSuite wires in-memory stores and mock transports into a
// ServiceParams, giving each test a fully functional service stack with no
// external dependencies.
type BaseServiceSuite struct {
	suite.Suite

	ctx           context.Context
	cfg           *config.Configuration
	stores        Stores
	dispatcher    *MockDispatcher
	emailSender   *MockEmailSender
	messageSender *MockMessageSender
}

// SetupSuite initializes the suite once.
func (s *BaseServiceSuite) SetupSuite() {
	s.ctx = context.Background()
}

// SetupTest resets all state before each test.
func (s *BaseServiceSuite) SetupTest() {
	s.cfg = config.GetDefaultConfig()
	s.stores = Stores{
		Subscriptions: NewInMemorySubscriptionStore(),
		Shops:         NewInMemoryShopStore(),
		Events:        NewInMemoryWebhookEventStore(),
		AuditLogs:     NewInMemoryAuditLogStore(),
		Payments:      NewInMemoryPaymentStore(),
	}
	s.dispatcher = NewMockDispatcher()
	s.emailSender = NewMockEmailSender()
	s.messageSender = NewMockMessageSender()
}

func (s *BaseServiceSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceSuite) GetConfig() *config.Configuration {
	return s.cfg
}

func (s *BaseServiceSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceSuite) GetDispatcher() *MockDispatcher {
	return s.dispatcher
}

func (s *BaseServiceSuite) GetEmailSender() *MockEmailSender {
	return s.emailSender
}

func (s *BaseServiceSuite) GetMessageSender() *MockMessageSender {
	return s.messageSender
}

// GetServiceParams builds a ServiceParams over the suite's stores and mocks.
func (s *BaseServiceSuite) GetServiceParams() service.ServiceParams {
	return service.ServiceParams{
		Logger:           logger.NewNoOpLogger(),
		Config:           s.cfg,
		Cache:            cache.NewInMemoryCache(),
		SubscriptionRepo: s.stores.Subscriptions,
		ShopRepo:         s.stores.Shops,
		EventRepo:        s.stores.Events,
		AuditRepo:        s.stores.AuditLogs,
		PaymentRepo:      s.stores.Payments,
		Dispatcher:       s.dispatcher,
		EmailSender:      s.emailSender,
		MessageSender:    s.messageSender,
		Renderer:         notification.NewRenderer(),
	}
}
