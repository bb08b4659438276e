package dispatch

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned by Submit when no broker is reachable. It is a
// deliberate signal, not a failure: the caller is expected to run the side
// effect inline instead.
var ErrUnavailable = errors.New("dispatch broker unavailable")

// Dispatcher decouples deciding to notify from actually delivering.
//
// Broker connectivity is probed once at process start; if the probe fails
// the dispatcher stays unavailable for the process lifetime so callers do
// not generate a per-call retry storm.
type Dispatcher interface {
	// Submit enqueues the job and returns its id. When the broker is
	// unavailable it returns ErrUnavailable immediately.
	Submit(ctx context.Context, job *Job) (string, error)

	// Available reports whether the startup probe found a reachable broker.
	Available() bool

	// Close releases broker resources.
	Close() error
}

// unavailableDispatcher is the process-lifetime fallback when the broker
// probe fails or no broker is configured.
type unavailableDispatcher struct{}

// NewUnavailableDispatcher returns a dispatcher that rejects every job with
// ErrUnavailable.
func NewUnavailableDispatcher() Dispatcher {
	return unavailableDispatcher{}
}

func (unavailableDispatcher) Submit(ctx context.Context, job *Job) (string, error) {
	return "", ErrUnavailable
}

func (unavailableDispatcher) Available() bool { return false }

func (unavailableDispatcher) Close() error { return nil }
