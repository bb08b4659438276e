package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	wkafka "github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/cenkalti/backoff/v4"

	"github.com/dukastack/billing/internal/config"
	"github.com/dukastack/billing/internal/dispatch"
	"github.com/dukastack/billing/internal/email"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/kafka"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/messaging"
	"github.com/dukastack/billing/internal/types"
)

// Worker consumes dispatched jobs from every priority topic and runs the
// matching transport. Delivery retries happen in-process with exponential
// backoff, bounded by the job's max attempts; a job that exhausts them is
// logged and dropped so it never blocks the partition.
type Worker struct {
	router *message.Router
	logger *logger.Logger
}

func New(cfg *config.Configuration, log *logger.Logger, emailSender email.Sender, messageSender messaging.Sender) (*Worker, error) {
	if !cfg.Kafka.Enabled() {
		return nil, ierr.NewError("no kafka brokers configured").
			WithHint("The worker requires a broker; set kafka.brokers").
			Mark(ierr.ErrValidation)
	}

	wmLogger := kafka.NewWatermillLogger(log)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create message router").
			Mark(ierr.ErrInternal)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	subscriber, err := wkafka.NewSubscriber(wkafka.SubscriberConfig{
		Brokers:               cfg.Kafka.Brokers,
		ConsumerGroup:         cfg.Kafka.ConsumerGroup,
		OverwriteSaramaConfig: kafka.GetSaramaConfig(cfg),
		Unmarshaler:           dispatch.PartitioningMarshaler(),
	}, wmLogger)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka subscriber").
			Mark(ierr.ErrInternal)
	}

	h := &jobHandler{
		emailSender:   emailSender,
		messageSender: messageSender,
		logger:        log,
	}
	for _, topic := range dispatch.Topics(cfg.Kafka.TopicPrefix) {
		router.AddNoPublisherHandler("jobs_"+topic, topic, subscriber, h.Handle)
	}

	return &Worker{router: router, logger: log}, nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infow("worker starting")
	return w.router.Run(ctx)
}

func (w *Worker) Close() error {
	return w.router.Close()
}

type jobHandler struct {
	emailSender   email.Sender
	messageSender messaging.Sender
	logger        *logger.Logger
}

func (h *jobHandler) Handle(msg *message.Message) error {
	job, err := dispatch.UnmarshalJob(msg.Payload)
	if err != nil {
		// A payload that never was a job will not become one on redelivery.
		h.logger.Errorw("dropping malformed job", "message_uuid", msg.UUID, "error", err)
		return nil
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = types.DefaultJobMaxAttempts
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	operation := func() error {
		return h.execute(msg.Context(), job)
	}
	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), msg.Context()))
	if err != nil {
		h.logger.Errorw("job failed after max attempts, dropping",
			"job_id", job.ID,
			"kind", job.Kind,
			"max_attempts", maxAttempts,
			"error", err)
		return nil
	}

	h.logger.Debugw("job completed", "job_id", job.ID, "kind", job.Kind)
	return nil
}

func (h *jobHandler) execute(ctx context.Context, job *dispatch.Job) error {
	switch job.Kind {
	case types.JobKindEmail:
		var payload dispatch.EmailJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return backoff.Permanent(err)
		}
		_, err := h.emailSender.SendEmail(ctx, payload.To, payload.Subject, payload.HTML)
		return err

	case types.JobKindMessage:
		var payload dispatch.MessageJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return backoff.Permanent(err)
		}
		_, err := h.messageSender.SendMessage(ctx, payload.To, payload.Text)
		return err

	case types.JobKindNotification:
		var payload dispatch.NotificationJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return backoff.Permanent(err)
		}
		// In-app notifications surface through the log pipeline; the
		// storefront tails these.
		h.logger.Infow("in-app notification",
			"shop_id", payload.ShopID,
			"title", payload.Title,
			"body", payload.Body)
		return nil

	default:
		h.logger.Warnw("unknown job kind, dropping", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
}
