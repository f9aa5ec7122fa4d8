package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/policybook/internal/model"
)

// MockInvoicer is a test implementation of service.Invoicer. It returns a
// predictable view URL per request unless configured to fail.
type MockInvoicer struct {
	failFor  map[string]error
	requests []model.InvoiceRequest
	mu       sync.Mutex
}

// NewMockInvoicer creates an invoicer that accepts every request.
func NewMockInvoicer() *MockInvoicer {
	return &MockInvoicer{
		failFor:  make(map[string]error),
		requests: make([]model.InvoiceRequest, 0),
	}
}

// CreateInvoice implements service.Invoicer.
func (m *MockInvoicer) CreateInvoice(_ context.Context, req model.InvoiceRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if err, ok := m.failFor[req.ClientEmail]; ok {
		return "", err
	}
	return fmt.Sprintf("https://invoices.example.com/%d", len(m.requests)), nil
}

// FailFor makes invoices for the given client email fail with err.
func (m *MockInvoicer) FailFor(email string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[email] = err
}

// Requests returns a copy of all received requests.
func (m *MockInvoicer) Requests() []model.InvoiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.InvoiceRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
