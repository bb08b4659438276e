package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	ierr "github.com/dukastack/billing/internal/errors"
)

// DeploymentMode selects which process role the binary runs as.
type DeploymentMode string

const (
	ModeServer DeploymentMode = "server"
	ModeWorker DeploymentMode = "worker"
)

// Configuration is the process-wide configuration, resolved once at startup
// and injected everywhere. There are no ambient feature flags: components
// that depend on optional integrations (Stripe, Kafka, Resend) receive this
// struct and degrade themselves when the relevant section is absent.
type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Email      EmailConfig      `mapstructure:"email"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Billing    BillingConfig    `mapstructure:"billing"`
}

type DeploymentConfig struct {
	Mode DeploymentMode `mapstructure:"mode"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ClientID      string   `mapstructure:"client_id"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

// Enabled reports whether a broker is configured at all. When false the
// dispatch layer runs in unavailable mode and callers send inline.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
}

type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	FluentdEnabled bool   `mapstructure:"fluentd_enabled"`
	FluentdHost    string `mapstructure:"fluentd_host"`
	FluentdPort    int    `mapstructure:"fluentd_port"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// Enabled reports whether webhook ingestion is configured. Without a webhook
// secret the endpoint refuses requests instead of skipping verification.
func (c StripeConfig) Enabled() bool {
	return c.WebhookSecret != ""
}

type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	APIKey      string `mapstructure:"api_key"`
	FromAddress string `mapstructure:"from_address"`
}

type MessagingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
}

// BillingConfig holds the dunning and sweep knobs.
type BillingConfig struct {
	GracePeriodDays            int `mapstructure:"grace_period_days"`
	WebhookEventRetentionDays  int `mapstructure:"webhook_event_retention_days"`
	ProviderTimeoutSeconds     int `mapstructure:"provider_timeout_seconds"`
	NotificationTimeoutSeconds int `mapstructure:"notification_timeout_seconds"`
}

// NewConfig loads configuration from config.yaml and environment variables.
// Environment variables use the BILLING_ prefix with underscores, e.g.
// BILLING_POSTGRES_DSN.
func NewConfig() (*Configuration, error) {
	// Best effort .env loading for local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("billing")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults are enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read configuration file").
				Mark(ierr.ErrValidation)
		}
	}

	cfg := &Configuration{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal configuration").
			Mark(ierr.ErrValidation)
	}

	return cfg, nil
}

// GetDefaultConfig returns a configuration populated with defaults only.
// Used by the global logger before the real configuration is resolved and
// by tests.
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)
	cfg := &Configuration{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(ModeServer))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "inmemory")
	v.SetDefault("kafka.consumer_group", "billing-worker")
	v.SetDefault("kafka.topic_prefix", "billing")
	v.SetDefault("kafka.client_id", "billing-service")
	v.SetDefault("redis.address", "")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("billing.grace_period_days", 7)
	v.SetDefault("billing.webhook_event_retention_days", 90)
	v.SetDefault("billing.provider_timeout_seconds", 30)
	v.SetDefault("billing.notification_timeout_seconds", 15)
}
