package sentry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dukastack/billing/internal/config"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/logger"
)

// Initialize configures the global sentry client. With sentry disabled this
// is a no-op and every downstream span helper degrades to nothing.
func Initialize(cfg *config.Configuration, log *logger.Logger) error {
	if !cfg.Sentry.Enabled || cfg.Sentry.DSN == "" {
		log.Infow("sentry disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.Sentry.SampleRate,
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to initialize sentry").
			Mark(ierr.ErrInternal)
	}

	log.Infow("sentry initialized", "environment", cfg.Sentry.Environment)
	return nil
}

// Flush drains buffered events before shutdown.
func Flush() {
	sentry.Flush(2 * time.Second)
}
