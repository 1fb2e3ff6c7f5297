package ports

import (
	"context"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/google/uuid"
)

// TransactionRepository defines the interface for gateway transaction persistence
type TransactionRepository interface {
	// Create creates a new gateway transaction record
	Create(ctx context.Context, tx DBTX, transaction *models.GatewayTransaction) error

	// GetByID retrieves a transaction by its internal ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.GatewayTransaction, error)

	// GetByTransactionID retrieves a transaction by its gateway-assigned identifier
	GetByTransactionID(ctx context.Context, db DBTX, transactionID string) (*models.GatewayTransaction, error)

	// GetLatestByOrderID retrieves the most recent transaction for an order
	GetLatestByOrderID(ctx context.Context, db DBTX, orderID uuid.UUID) (*models.GatewayTransaction, error)

	// UpdateStatus updates the status of a transaction. overriddenBy and note
	// are recorded when the change is an admin override.
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status models.TransactionStatus, gatewayResponse, overriddenBy, note *string) error
}
