// Package mock provides an in-memory implementation of memory.Store for
// testing. It preserves insertion order and supports error injection.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/face-counter/internal/memory"
)

// MockStore is an in-memory memory.Store.
type MockStore struct {
	mu      sync.RWMutex
	records map[string]*memory.Record
	order   []string

	// Error injection
	PutError    error
	GetError    error
	UpdateError error
	ScanError   error
	ClearError  error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]*memory.Record),
	}
}

func cloneRecord(rec *memory.Record) *memory.Record {
	clone := *rec
	clone.Embedding = append([]float32(nil), rec.Embedding...)
	clone.SessionIDs = append([]string(nil), rec.SessionIDs...)
	return &clone
}

// Put inserts a new record.
func (m *MockStore) Put(ctx context.Context, rec *memory.Record) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("put %s: %w", rec.ID, memory.ErrDuplicateKey)
	}
	m.records[rec.ID] = cloneRecord(rec)
	m.order = append(m.order, rec.ID)
	return nil
}

// Get returns the record for id.
func (m *MockStore) Get(ctx context.Context, id string) (*memory.Record, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, memory.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// Update applies mutate to the record for id.
func (m *MockStore) Update(ctx context.Context, id string, mutate func(*memory.Record)) (*memory.Record, error) {
	if m.UpdateError != nil {
		return nil, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, memory.ErrNotFound)
	}
	mutate(rec)
	return cloneRecord(rec), nil
}

// ScanAll returns all records in insertion order.
func (m *MockStore) ScanAll(ctx context.Context) ([]memory.Record, error) {
	if m.ScanError != nil {
		return nil, m.ScanError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]memory.Record, 0, len(m.order))
	for _, id := range m.order {
		records = append(records, *cloneRecord(m.records[id]))
	}
	return records, nil
}

// Clear removes all records.
func (m *MockStore) Clear(ctx context.Context) error {
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*memory.Record)
	m.order = nil
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
