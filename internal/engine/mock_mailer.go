package engine

import (
	"context"
	"sync"
)

// MockMailer is a test implementation of service.Mailer that records
// every message.
type MockMailer struct {
	SendFunc func(ctx context.Context, to, subject, html string) error
	failFor  map[string]error
	calls    []MailCall
	mu       sync.Mutex
}

// MailCall records a single Send call.
type MailCall struct {
	Error   error
	To      string
	Subject string
	HTML    string
}

// NewMockMailer creates a mailer that accepts every message.
func NewMockMailer() *MockMailer {
	return &MockMailer{
		failFor: make(map[string]error),
		calls:   make([]MailCall, 0),
	}
}

// Send implements service.Mailer.
func (m *MockMailer) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.failFor[to]
	if err == nil && m.SendFunc != nil {
		err = m.SendFunc(ctx, to, subject, html)
	}
	m.calls = append(m.calls, MailCall{To: to, Subject: subject, HTML: html, Error: err})
	return err
}

// FailFor makes every message to the given recipient fail with err.
func (m *MockMailer) FailFor(to string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[to] = err
}

// Calls returns a copy of all recorded calls.
func (m *MockMailer) Calls() []MailCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]MailCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// Recipients returns the recipients of successfully sent messages in order.
func (m *MockMailer) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, c := range m.calls {
		if c.Error == nil {
			out = append(out, c.To)
		}
	}
	return out
}
