package kafka

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukastack/billing/internal/logger"
)

// WatermillLogger adapts our logger to watermill.LoggerAdapter.
type WatermillLogger struct {
	log *logger.Logger
}

// NewWatermillLogger wraps the service logger for watermill components.
func NewWatermillLogger(log *logger.Logger) *WatermillLogger {
	return &WatermillLogger{log: log}
}

func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Errorw(msg, append(flatten(fields), "error", err)...)
}

func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Infow(msg, flatten(fields)...)
}

func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, flatten(fields)...)
}

func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	kvs := flatten(fields)
	return &WatermillLogger{
		log: &logger.Logger{SugaredLogger: l.log.SugaredLogger.With(kvs...)},
	}
}

func flatten(fields watermill.LogFields) []interface{} {
	kvs := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kvs = append(kvs, k, v)
	}
	return kvs
}
