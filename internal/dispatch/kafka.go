package dispatch

import (
	"context"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill/message"
	wkafka "github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"

	"github.com/dukastack/billing/internal/config"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/kafka"
	"github.com/dukastack/billing/internal/logger"
	"github.com/dukastack/billing/internal/types"
)

// Message metadata keys carried alongside the job payload.
const (
	MetadataKind        = "job_kind"
	MetadataPriority    = "job_priority"
	MetadataDedupeKey   = "job_dedupe_key"
	MetadataMaxAttempts = "job_max_attempts"
)

// TopicForPriority returns the job topic for a priority band. Separate
// topics per band let workers drain urgent alerts before reports.
func TopicForPriority(prefix string, priority types.JobPriority) string {
	return fmt.Sprintf("%s.jobs.%s", prefix, priority)
}

// Topics returns every job topic for the given prefix.
func Topics(prefix string) []string {
	return []string{
		TopicForPriority(prefix, types.JobPriorityUrgent),
		TopicForPriority(prefix, types.JobPriorityDefault),
		TopicForPriority(prefix, types.JobPriorityLow),
	}
}

// PartitioningMarshaler keys messages by dedupe key when present so a
// re-triggered alert replaces the queued one on topic compaction, and by
// job id otherwise.
func PartitioningMarshaler() wkafka.MarshalerUnmarshaler {
	return wkafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		if key := msg.Metadata.Get(MetadataDedupeKey); key != "" {
			return key, nil
		}
		return msg.UUID, nil
	})
}

type kafkaDispatcher struct {
	publisher   message.Publisher
	topicPrefix string
	logger      *logger.Logger
}

// NewDispatcher probes broker connectivity once and returns either a
// kafka-backed dispatcher or the unavailable fallback. The probe result is
// final for the process lifetime.
func NewDispatcher(cfg *config.Configuration, log *logger.Logger) Dispatcher {
	if !cfg.Kafka.Enabled() {
		log.Warnw("no kafka brokers configured, dispatch layer unavailable, notifications will be sent inline")
		return NewUnavailableDispatcher()
	}

	saramaCfg := kafka.GetSaramaConfig(cfg)

	// Startup probe: one connection attempt, no retries
	client, err := sarama.NewClient(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		log.Errorw("kafka broker unreachable, dispatch layer unavailable for process lifetime",
			"brokers", cfg.Kafka.Brokers,
			"error", err)
		return NewUnavailableDispatcher()
	}
	_ = client.Close()

	publisher, err := wkafka.NewPublisher(wkafka.PublisherConfig{
		Brokers:               cfg.Kafka.Brokers,
		OverwriteSaramaConfig: saramaCfg,
		Marshaler:             PartitioningMarshaler(),
	}, kafka.NewWatermillLogger(log))
	if err != nil {
		log.Errorw("failed to create kafka publisher, dispatch layer unavailable", "error", err)
		return NewUnavailableDispatcher()
	}

	log.Infow("dispatch layer connected to kafka", "brokers", cfg.Kafka.Brokers)
	return &kafkaDispatcher{
		publisher:   publisher,
		topicPrefix: cfg.Kafka.TopicPrefix,
		logger:      log,
	}
}

func (d *kafkaDispatcher) Submit(ctx context.Context, job *Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	if job.Priority == "" {
		job.Priority = types.PriorityForKind(job.Kind)
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = types.DefaultJobMaxAttempts
	}

	raw, err := job.marshal()
	if err != nil {
		return "", err
	}

	msg := message.NewMessage(job.ID, raw)
	msg.Metadata.Set(MetadataKind, string(job.Kind))
	msg.Metadata.Set(MetadataPriority, string(job.Priority))
	msg.Metadata.Set(MetadataMaxAttempts, fmt.Sprintf("%d", job.MaxAttempts))
	if job.DedupeKey != "" {
		msg.Metadata.Set(MetadataDedupeKey, job.DedupeKey)
	}
	msg.SetContext(ctx)

	topic := TopicForPriority(d.topicPrefix, job.Priority)
	if err := d.publisher.Publish(topic, msg); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to enqueue job").
			WithReportableDetails(map[string]interface{}{
				"job_id": job.ID,
				"kind":   job.Kind,
				"topic":  topic,
			}).
			Mark(ierr.ErrInternal)
	}

	d.logger.Debugw("job enqueued",
		"job_id", job.ID,
		"kind", job.Kind,
		"priority", job.Priority,
		"topic", topic)
	return job.ID, nil
}

func (d *kafkaDispatcher) Available() bool { return true }

func (d *kafkaDispatcher) Close() error {
	return d.publisher.Close()
}

func (j *Job) marshal() ([]byte, error) {
	raw, err := marshalJob(j)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to serialize job").
			Mark(ierr.ErrInternal)
	}
	return raw, nil
}
