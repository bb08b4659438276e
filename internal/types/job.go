package types

// JobKind identifies the handler a queued job is routed to.
type JobKind string

const (
	JobKindEmail        JobKind = "email"
	JobKindMessage      JobKind = "message"
	JobKindNotification JobKind = "notification"
	JobKindAlert        JobKind = "alert"
	JobKindReport       JobKind = "report"
)

// JobPriority orders queued work. Urgent alerts drain first, reports last.
type JobPriority string

const (
	JobPriorityUrgent  JobPriority = "urgent"
	JobPriorityDefault JobPriority = "default"
	JobPriorityLow     JobPriority = "low"
)

// DefaultJobMaxAttempts bounds worker-side retries per job.
const DefaultJobMaxAttempts = 5

// PriorityForKind maps a job kind to its default priority.
func PriorityForKind(kind JobKind) JobPriority {
	switch kind {
	case JobKindAlert:
		return JobPriorityUrgent
	case JobKindReport:
		return JobPriorityLow
	default:
		return JobPriorityDefault
	}
}
