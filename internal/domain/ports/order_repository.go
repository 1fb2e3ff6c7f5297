package ports

import (
	"context"
	"time"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/google/uuid"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// Create creates a new order
	Create(ctx context.Context, tx DBTX, order *models.Order) error

	// CreateItems creates the denormalized item snapshots for an order
	CreateItems(ctx context.Context, tx DBTX, items []*models.OrderItem) error

	// GetByID retrieves an order by its ID
	GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*models.Order, error)

	// GetByReferenceCode retrieves an order by its gateway correlation code
	GetByReferenceCode(ctx context.Context, db DBTX, referenceCode string) (*models.Order, error)

	// ListStalePendingPayment lists orders with status=pending and
	// payment_status=pending created before the cutoff, up to limit rows
	ListStalePendingPayment(ctx context.Context, db DBTX, cutoff time.Time, limit int32) ([]*models.Order, error)

	// CountStalePendingPayment counts orders eligible for reconciliation
	CountStalePendingPayment(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)

	// UpdateStatus updates the commercial status. confirmedBy and note are
	// recorded when the change is a manual confirmation.
	UpdateStatus(ctx context.Context, tx DBTX, id uuid.UUID, status models.OrderStatus, confirmedBy, note *string) error

	// UpdatePaymentStatus updates the financial status
	UpdatePaymentStatus(ctx context.Context, tx DBTX, id uuid.UUID, status models.PaymentStatus) error

	// UpdateFulfillmentStatus updates the delivery status
	UpdateFulfillmentStatus(ctx context.Context, tx DBTX, id uuid.UUID, status models.FulfillmentStatus) error
}
