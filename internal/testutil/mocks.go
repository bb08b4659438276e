package testutil

import (
	"context"
	"sync"

	"github.com/dukastack/billing/internal/dispatch"
	"github.com/dukastack/billing/internal/email"
	ierr "github.com/dukastack/billing/internal/errors"
	"github.com/dukastack/billing/internal/messaging"
	"github.com/dukastack/billing/internal/types"
)

// MockDispatcher records submitted jobs. Flipping Unavailable simulates the
// broker-down mode where Submit returns dispatch.ErrUnavailable.
type MockDispatcher struct {
	mu          sync.Mutex
	jobs        []*dispatch.Job
	Unavailable bool
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (d *MockDispatcher) Submit(ctx context.Context, job *dispatch.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Unavailable {
		return "", dispatch.ErrUnavailable
	}
	if err := job.Validate(); err != nil {
		return "", err
	}
	d.jobs = append(d.jobs, job)
	return job.ID, nil
}

func (d *MockDispatcher) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.Unavailable
}

func (d *MockDispatcher) Close() error { return nil }

// Jobs returns every submitted job.
func (d *MockDispatcher) Jobs() []*dispatch.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*dispatch.Job(nil), d.jobs...)
}

// JobsOfKind returns submitted jobs of the given kind.
func (d *MockDispatcher) JobsOfKind(kind types.JobKind) []*dispatch.Job {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*dispatch.Job
	for _, job := range d.jobs {
		if job.Kind == kind {
			out = append(out, job)
		}
	}
	return out
}

func (d *MockDispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = nil
}

// SentEmail is one recorded send.
type SentEmail struct {
	To      string
	Subject string
	HTML    string
}

// MockEmailSender records sends; setting Fail makes every send error.
type MockEmailSender struct {
	mu   sync.Mutex
	sent []SentEmail
	Fail bool
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) SendEmail(ctx context.Context, to, subject, html string) (*email.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return &email.SendResult{Success: false, Error: "simulated failure"},
			ierr.NewError("simulated email failure").Mark(ierr.ErrHTTPClient)
	}
	m.sent = append(m.sent, SentEmail{To: to, Subject: subject, HTML: html})
	return &email.SendResult{Success: true, MessageID: "mock"}, nil
}

func (m *MockEmailSender) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

func (m *MockEmailSender) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// SentMessage is one recorded SMS/WhatsApp send.
type SentMessage struct {
	To   string
	Text string
}

// MockMessageSender records sends.
type MockMessageSender struct {
	mu   sync.Mutex
	sent []SentMessage
}

func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

func (m *MockMessageSender) SendMessage(ctx context.Context, to, text string) (*messaging.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentMessage{To: to, Text: text})
	return &messaging.SendResult{Success: true, MessageID: "mock"}, nil
}

func (m *MockMessageSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

func (m *MockMessageSender) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
