package flightexport

import (
	"context"
	"sync"
)

// MockExporter keeps batches in memory.
type MockExporter struct {
	mu        sync.Mutex
	connected bool
	Batches   []Batch
}

func NewMockExporter() *MockExporter {
	return &MockExporter{}
}

func (m *MockExporter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockExporter) Put(ctx context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if err := b.validate(); err != nil {
		return err
	}
	m.Batches = append(m.Batches, b)
	return nil
}

func (m *MockExporter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// Rows counts exported rows across batches.
func (m *MockExporter) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Batches {
		n += len(b.Features)
	}
	return n
}
