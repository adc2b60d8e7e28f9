// Package storage defines the persistence interfaces for simulation
// history. Implementations live in memory/ and postgres/.
package storage

import (
	"context"

	"brain-alpha-lab/internal/domain"
)

// AlphaRecordStore provides access to alpha_records storage. Records
// are append-only: one row per simulated expression per run.
type AlphaRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
	Insert(ctx context.Context, r *domain.AlphaRecord) error

	// InsertBulk adds multiple records atomically. Fails the entire
	// batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.AlphaRecord) error

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recordID string) (*domain.AlphaRecord, error)

	// ListByRun retrieves all records of a batch run, ordered by
	// created_at ASC, record_id ASC.
	ListByRun(ctx context.Context, runID string) ([]*domain.AlphaRecord, error)

	// ListTopBySharpe retrieves the completed records with the highest
	// absolute sharpe, descending, capped at limit.
	ListTopBySharpe(ctx context.Context, limit int) ([]*domain.AlphaRecord, error)
}
