package ports

import (
	"context"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/google/uuid"
)

// SubscriptionRepository defines the interface for vendor subscription persistence
type SubscriptionRepository interface {
	// Create creates a new vendor subscription
	Create(ctx context.Context, tx DBTX, subscription *models.VendorSubscription) error

	// GetByID retrieves a subscription by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.VendorSubscription, error)

	// ListByStatus lists subscriptions in a given status, newest first
	ListByStatus(ctx context.Context, db DBTX, status models.SubscriptionStatus, limit int32) ([]*models.VendorSubscription, error)

	// UpdateStatus updates the subscription status. approvedBy and note are
	// recorded when the change is a manual approval or rejection.
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status models.SubscriptionStatus, approvedBy, note *string) error
}
