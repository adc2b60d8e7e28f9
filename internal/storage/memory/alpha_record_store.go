// Package memory provides in-memory implementations of the storage
// interfaces, used in tests and for runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/storage"
)

// AlphaRecordStore is an in-memory implementation of storage.AlphaRecordStore.
type AlphaRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AlphaRecord // keyed by record_id
}

// NewAlphaRecordStore creates a new in-memory alpha record store.
func NewAlphaRecordStore() *AlphaRecordStore {
	return &AlphaRecordStore{data: make(map[string]*domain.AlphaRecord)}
}

// Compile-time interface check.
var _ storage.AlphaRecordStore = (*AlphaRecordStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *AlphaRecordStore) Insert(_ context.Context, r *domain.AlphaRecord) error {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recordCopy := *r
	s.data[r.RecordID] = &recordCopy
	return nil
}

// InsertBulk adds multiple records atomically. Fails the entire batch
// on any duplicate.
func (s *AlphaRecordStore) InsertBulk(_ context.Context, records []*domain.AlphaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, r := range records {
		recordCopy := *r
		s.data[r.RecordID] = &recordCopy
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *AlphaRecordStore) GetByID(_ context.Context, recordID string) (*domain.AlphaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[recordID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// ListByRun retrieves all records of a batch run, ordered by
// created_at ASC, record_id ASC.
func (s *AlphaRecordStore) ListByRun(_ context.Context, runID string) ([]*domain.AlphaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AlphaRecord
	for _, r := range s.data {
		if r.RunID == runID {
			recordCopy := *r
			out = append(out, &recordCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out, nil
}

// ListTopBySharpe retrieves the completed records with the highest
// absolute sharpe, descending, capped at limit.
func (s *AlphaRecordStore) ListTopBySharpe(_ context.Context, limit int) ([]*domain.AlphaRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AlphaRecord
	for _, r := range s.data {
		if r.Status != string(domain.JobComplete) {
			continue
		}
		recordCopy := *r
		out = append(out, &recordCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		return absf(out[i].Sharpe) > absf(out[j].Sharpe)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
