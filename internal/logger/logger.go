package logger

import (
	"context"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/types"
)

// Logger wraps zap.SugaredLogger and optionally forwards structured entries
// to a fluentd aggregator.
type Logger struct {
	*zap.SugaredLogger
	fluentd     *fluent.Fluent
	serviceName string
}

// NewLogger creates a Logger from configuration.
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Logging.Level == "debug" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.DisableStacktrace = true

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	var fluentd *fluent.Fluent
	if cfg.Logging.FluentdEnabled && cfg.Logging.FluentdHost != "" && cfg.Logging.FluentdPort > 0 {
		fluentd, err = fluent.New(fluent.Config{
			FluentHost:   cfg.Logging.FluentdHost,
			FluentPort:   cfg.Logging.FluentdPort,
			Async:        true,
			WriteTimeout: 3 * time.Second,
			MaxRetry:     5,
		})
		if err != nil {
			zapLogger.Sugar().Warnf("fluentd unavailable, logging to stdout only: %v", err)
			fluentd = nil
		}
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
		fluentd:       fluentd,
		serviceName:   string(cfg.Deployment.Mode),
	}, nil
}

// NewNoOpLogger returns a logger that discards everything. Used in tests.
func NewNoOpLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithContext returns a logger enriched with the request-scoped identifiers.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(
			"request_id", types.GetRequestID(ctx),
			"shop_id", types.GetShopID(ctx),
			"user_id", types.GetUserID(ctx),
		),
		fluentd:     l.fluentd,
		serviceName: l.serviceName,
	}
}

func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
	l.forward("debug", msg, keysAndValues)
}

func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
	l.forward("info", msg, keysAndValues)
}

func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
	l.forward("warning", msg, keysAndValues)
}

func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	l.forward("error", msg, keysAndValues)
}

// forward posts a structured entry to fluentd when configured. Failures are
// logged and never block the caller.
func (l *Logger) forward(level, msg string, keysAndValues []interface{}) {
	if l.fluentd == nil {
		return
	}

	entry := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"service":   l.serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			entry[key] = keysAndValues[i+1]
		}
	}

	if err := l.fluentd.Post("billing.logs", entry); err != nil {
		l.SugaredLogger.Warnf("failed to forward log to fluentd: %v", err)
	}
}

// GetRetryableHTTPLogger adapts the logger to go-retryablehttp's interface.
func (l *Logger) GetRetryableHTTPLogger() retryableHTTPLogger {
	return retryableHTTPLogger{logger: l}
}

type retryableHTTPLogger struct {
	logger *Logger
}

func (r retryableHTTPLogger) Printf(format string, v ...interface{}) {
	r.logger.Debugf(format, v...)
}

// GinWriter adapts the logger to gin's io.Writer based logging.
func (l *Logger) GinWriter() ginWriter {
	return ginWriter{logger: l}
}

type ginWriter struct {
	logger *Logger
}

func (g ginWriter) Write(p []byte) (int, error) {
	g.logger.Info(string(p))
	return len(p), nil
}
