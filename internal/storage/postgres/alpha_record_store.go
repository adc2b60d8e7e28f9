package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/storage"
)

// AlphaRecordStore implements storage.AlphaRecordStore using PostgreSQL.
type AlphaRecordStore struct {
	pool *Pool
}

// NewAlphaRecordStore creates a new AlphaRecordStore.
func NewAlphaRecordStore(pool *Pool) *AlphaRecordStore {
	return &AlphaRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlphaRecordStore = (*AlphaRecordStore)(nil)

const alphaRecordColumns = `
	record_id, run_id, alpha_id, expression, region, universe,
	status, sharpe, fitness, turnover, returns, created_at
`

const insertAlphaRecordQuery = `
	INSERT INTO alpha_records (
		record_id, run_id, alpha_id, expression, region, universe,
		status, sharpe, fitness, turnover, returns, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// Insert adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *AlphaRecordStore) Insert(ctx context.Context, r *domain.AlphaRecord) (err error) {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}
	done := track("insert_alpha_record")
	defer func() { done(err) }()

	_, err = s.pool.Exec(ctx, insertAlphaRecordQuery,
		r.RecordID,
		r.RunID,
		r.AlphaID,
		r.Expression,
		r.Region,
		r.Universe,
		r.Status,
		r.Sharpe,
		r.Fitness,
		r.Turnover,
		r.Returns,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alpha record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *AlphaRecordStore) InsertBulk(ctx context.Context, records []*domain.AlphaRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
	}
	done := track("insert_alpha_records_bulk")
	defer func() { done(err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		_, err := tx.Exec(ctx, insertAlphaRecordQuery,
			r.RecordID,
			r.RunID,
			r.AlphaID,
			r.Expression,
			r.Region,
			r.Universe,
			r.Status,
			r.Sharpe,
			r.Fitness,
			r.Turnover,
			r.Returns,
			r.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert alpha record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *AlphaRecordStore) GetByID(ctx context.Context, recordID string) (rec *domain.AlphaRecord, err error) {
	query := `
		SELECT ` + alphaRecordColumns + `
		FROM alpha_records
		WHERE record_id = $1
	`
	done := track("get_alpha_record")
	defer func() { done(err) }()

	row := s.pool.QueryRow(ctx, query, recordID)
	r, err := scanAlphaRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get alpha record by id: %w", err)
	}
	return r, nil
}

// ListByRun retrieves all records of a batch run, ordered by created_at, record_id.
func (s *AlphaRecordStore) ListByRun(ctx context.Context, runID string) (recs []*domain.AlphaRecord, err error) {
	query := `
		SELECT ` + alphaRecordColumns + `
		FROM alpha_records
		WHERE run_id = $1
		ORDER BY created_at ASC, record_id ASC
	`
	done := track("list_alpha_records_by_run")
	defer func() { done(err) }()

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list alpha records by run: %w", err)
	}
	defer rows.Close()

	return scanAlphaRecords(rows)
}

// ListTopBySharpe retrieves completed records ranked by absolute sharpe, descending.
func (s *AlphaRecordStore) ListTopBySharpe(ctx context.Context, limit int) (recs []*domain.AlphaRecord, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + alphaRecordColumns + `
		FROM alpha_records
		WHERE status = $1
		ORDER BY ABS(sharpe) DESC, record_id ASC
		LIMIT $2
	`
	done := track("list_alpha_records_by_sharpe")
	defer func() { done(err) }()

	rows, err := s.pool.Query(ctx, query, string(domain.JobComplete), limit)
	if err != nil {
		return nil, fmt.Errorf("list alpha records by sharpe: %w", err)
	}
	defer rows.Close()

	return scanAlphaRecords(rows)
}

// scanAlphaRecord scans a single row into an AlphaRecord.
func scanAlphaRecord(row pgx.Row) (*domain.AlphaRecord, error) {
	var r domain.AlphaRecord

	err := row.Scan(
		&r.RecordID,
		&r.RunID,
		&r.AlphaID,
		&r.Expression,
		&r.Region,
		&r.Universe,
		&r.Status,
		&r.Sharpe,
		&r.Fitness,
		&r.Turnover,
		&r.Returns,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// scanAlphaRecords scans multiple rows into a slice of AlphaRecord.
func scanAlphaRecords(rows pgx.Rows) ([]*domain.AlphaRecord, error) {
	var records []*domain.AlphaRecord

	for rows.Next() {
		var r domain.AlphaRecord

		err := rows.Scan(
			&r.RecordID,
			&r.RunID,
			&r.AlphaID,
			&r.Expression,
			&r.Region,
			&r.Universe,
			&r.Status,
			&r.Sharpe,
			&r.Fitness,
			&r.Turnover,
			&r.Returns,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alpha record row: %w", err)
		}

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alpha record rows: %w", err)
	}

	return records, nil
}
