package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukastack/billing/internal/types"
)

func TestNewJobDefaults(t *testing.T) {
	job, err := NewJob(types.JobKindEmail, EmailJobPayload{
		To:      "owner@shop.test",
		Subject: "hello",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Contains(t, job.ID, types.UUID_PREFIX_JOB+"_")
	assert.Equal(t, types.JobPriorityDefault, job.Priority)
	assert.Equal(t, types.DefaultJobMaxAttempts, job.MaxAttempts)
	assert.NoError(t, job.Validate())
}

func TestJobRoundTrip(t *testing.T) {
	job, err := NewJob(types.JobKindMessage, MessageJobPayload{To: "+254700000001", Text: "pay up"})
	require.NoError(t, err)
	job.WithDedupeKey("grace-reminder:subs_1:3:message")

	raw, err := marshalJob(job)
	require.NoError(t, err)

	decoded, err := UnmarshalJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Kind, decoded.Kind)
	assert.Equal(t, job.DedupeKey, decoded.DedupeKey)
}

func TestTopicForPriority(t *testing.T) {
	assert.Equal(t, "billing.jobs.urgent", TopicForPriority("billing", types.JobPriorityUrgent))
	assert.Len(t, Topics("billing"), 3)
}

func TestUnavailableDispatcher(t *testing.T) {
	d := NewUnavailableDispatcher()
	assert.False(t, d.Available())

	job, err := NewJob(types.JobKindEmail, EmailJobPayload{To: "a@b.test"})
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), job)
	assert.ErrorIs(t, err, ErrUnavailable)
}
