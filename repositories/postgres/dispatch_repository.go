package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/models"
	"github.com/upb/nexus-gateway/repositories"
)

const dispatchColumns = `id, COALESCE(request_id, ''), operation, model, provider, status,
		       latency_ms, error_kind, error_message, details, timestamp`

// DispatchRepository implements the repositories.DispatchRepository interface
type DispatchRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDispatchRepository creates a new dispatch repository
func NewDispatchRepository(db *DB, logger *zap.Logger) repositories.DispatchRepository {
	return &DispatchRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new dispatch record
func (r *DispatchRepository) Insert(ctx context.Context, record *models.DispatchRecord) error {
	query := `
		INSERT INTO dispatch_logs (
			id, request_id, operation, model, provider, status,
			latency_ms, error_kind, error_message, details, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var details interface{}
	if len(record.Details) > 0 {
		details = []byte(record.Details)
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.RequestID,
		record.Operation,
		record.Model,
		record.Provider,
		record.Status,
		record.LatencyMs,
		record.ErrorKind,
		record.ErrorMessage,
		details,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch record: %w", err)
	}

	r.logger.Debug("dispatch record inserted",
		zap.String("id", record.ID.String()),
		zap.String("provider", record.Provider))
	return nil
}

// GetByRequestID retrieves dispatch records by request ID
func (r *DispatchRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.DispatchRecord, error) {
	query := `
		SELECT ` + dispatchColumns + `
		FROM dispatch_logs
		WHERE request_id = $1
		ORDER BY timestamp DESC
	`

	return r.queryRecords(ctx, query, requestID)
}

// ListRecent retrieves dispatch records with pagination, newest first
func (r *DispatchRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.DispatchRecord, error) {
	query := `
		SELECT ` + dispatchColumns + `
		FROM dispatch_logs
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`

	return r.queryRecords(ctx, query, limit, offset)
}

// queryRecords is a helper method to query multiple dispatch records
func (r *DispatchRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*models.DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch records: %w", err)
	}
	defer rows.Close()

	var records []*models.DispatchRecord
	for rows.Next() {
		record := &models.DispatchRecord{}
		var details []byte
		err := rows.Scan(
			&record.ID,
			&record.RequestID,
			&record.Operation,
			&record.Model,
			&record.Provider,
			&record.Status,
			&record.LatencyMs,
			&record.ErrorKind,
			&record.ErrorMessage,
			&details,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispatch record: %w", err)
		}
		record.Details = details
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch record rows: %w", err)
	}

	return records, nil
}
