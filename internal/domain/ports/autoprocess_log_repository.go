package ports

import (
	"context"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
)

// AutoProcessLogRepository defines the interface for run audit persistence.
// Logs are append-only: there are no update or delete operations.
type AutoProcessLogRepository interface {
	// Create appends one audit record for a completed run
	Create(ctx context.Context, tx DBTX, log *models.AutoProcessLog) error

	// ListRecent lists the most recent run records, newest first
	ListRecent(ctx context.Context, db DBTX, limit int32) ([]*models.AutoProcessLog, error)
}
