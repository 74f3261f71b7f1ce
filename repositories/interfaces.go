package repositories

import (
	"context"

	"github.com/upb/nexus-gateway/models"
)

// DispatchRepository stores dispatch records
type DispatchRepository interface {
	// Insert creates a new dispatch record
	Insert(ctx context.Context, record *models.DispatchRecord) error

	// GetByRequestID retrieves the records of one HTTP request
	GetByRequestID(ctx context.Context, requestID string) ([]*models.DispatchRecord, error)

	// ListRecent retrieves the newest records first
	ListRecent(ctx context.Context, limit, offset int) ([]*models.DispatchRecord, error)
}
