package grants

import (
	"context"
	"fmt"
	"sync"
)

// MockGranter is a mock implementation of the payment.Granter surface for
// testing.
type MockGranter struct {
	mu         sync.RWMutex
	records    []*PermissionRecord
	grantError error
	closed     bool
}

// NewMockGranter creates a new mock granter for testing.
func NewMockGranter() *MockGranter {
	return &MockGranter{
		records: make([]*PermissionRecord, 0),
	}
}

// Grant records one GRANTED permission per timeseries and returns synthetic
// ids, or the configured error.
func (m *MockGranter) Grant(ctx context.Context, authorizer, requestor, datasetID string, timeseriesIDs []string, idempotencyKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grantError != nil {
		return nil, m.grantError
	}

	hashes := make([]string, len(timeseriesIDs))
	for i, tsID := range timeseriesIDs {
		m.records = append(m.records, &PermissionRecord{
			Authorizer:   authorizer,
			Requestor:    requestor,
			DatasetID:    datasetID,
			TimeseriesID: tsID,
			Status:       StatusGranted,
		})
		hashes[i] = fmt.Sprintf("%s-%s-%d", StreamName, idempotencyKey, len(m.records))
	}
	return hashes, nil
}

// Close marks the granter as closed.
func (m *MockGranter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetRecords returns all published permission records (for testing).
func (m *MockGranter) GetRecords() []*PermissionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	records := make([]*PermissionRecord, len(m.records))
	copy(records, m.records)
	return records
}

// GetRecordCount returns the number of published permission records.
func (m *MockGranter) GetRecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// GetRecordsForRequestor returns records granted to a specific requestor.
func (m *MockGranter) GetRecordsForRequestor(requestor string) []*PermissionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*PermissionRecord, 0)
	for _, r := range m.records {
		if r.Requestor == requestor {
			records = append(records, r)
		}
	}
	return records
}

// SetGrantError configures the mock to return an error on Grant.
func (m *MockGranter) SetGrantError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantError = err
}
