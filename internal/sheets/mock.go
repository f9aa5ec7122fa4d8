package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/policybook/internal/model"
)

// MockExporter is a mock implementation of service.ClientExporter for testing.
type MockExporter struct {
	ExportFunc      func(ctx context.Context, clients []model.Client) error
	LastClients     []model.Client
	ExportCalls     []ExportCall
	ExportCallCount int
	mu              sync.Mutex
}

// ExportCall represents a single call to Export.
type ExportCall struct {
	Error   error
	Clients []model.Client
}

// NewMockExporter creates a new mock exporter.
func NewMockExporter() *MockExporter {
	return &MockExporter{
		ExportCalls: make([]ExportCall, 0),
	}
}

// Export implements the ClientExporter interface.
func (m *MockExporter) Export(ctx context.Context, clients []model.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExportCallCount++
	m.LastClients = clients

	var err error
	if m.ExportFunc != nil {
		err = m.ExportFunc(ctx, clients)
	}

	m.ExportCalls = append(m.ExportCalls, ExportCall{
		Clients: clients,
		Error:   err,
	})

	return err
}

// GetExportCalls returns a copy of all export calls.
func (m *MockExporter) GetExportCalls() []ExportCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]ExportCall, len(m.ExportCalls))
	copy(calls, m.ExportCalls)
	return calls
}

// SetExportError configures the mock to fail every Export call.
func (m *MockExporter) SetExportError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExportFunc = func(_ context.Context, _ []model.Client) error {
		return err
	}
}
