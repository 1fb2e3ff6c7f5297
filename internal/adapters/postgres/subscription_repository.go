package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
)

const subscriptionColumns = `id, vendor_id, plan_name, amount, currency, status,
	reference_code, approved_by, approval_note, approved_at, created_at, updated_at`

// SubscriptionRepository implements ports.SubscriptionRepository using pgx
type SubscriptionRepository struct {
	pool ports.DBTX
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db ports.DBPort) *SubscriptionRepository {
	return &SubscriptionRepository{pool: db.GetDB()}
}

func (r *SubscriptionRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.pool
}

// Create creates a new vendor subscription
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, subscription *models.VendorSubscription) error {
	id, err := uuid.Parse(subscription.ID)
	if err != nil {
		return fmt.Errorf("invalid subscription ID: %w", err)
	}

	amount, err := decimalToNumeric(subscription.Amount)
	if err != nil {
		return err
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO vendor_subscriptions (
			id, vendor_id, plan_name, amount, currency, status,
			reference_code, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, subscription.VendorID, subscription.PlanName, amount, subscription.Currency,
		string(subscription.Status), subscription.ReferenceCode,
		subscription.CreatedAt, subscription.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create vendor subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by its ID
func (r *SubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.VendorSubscription, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM vendor_subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}
	return sub, nil
}

// ListByStatus lists subscriptions in a given status, newest first
func (r *SubscriptionRepository) ListByStatus(ctx context.Context, db ports.DBTX, status models.SubscriptionStatus, limit int32) ([]*models.VendorSubscription, error) {
	rows, err := r.executor(db).Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM vendor_subscriptions
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by status: %w", err)
	}
	defer rows.Close()

	var subs []*models.VendorSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateStatus updates the subscription status, recording the acting admin
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.SubscriptionStatus, approvedBy, note *string) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE vendor_subscriptions
		SET status = $2,
		    approved_by = COALESCE($3, approved_by),
		    approval_note = COALESCE($4, approval_note),
		    approved_at = CASE WHEN $3 IS NOT NULL THEN NOW() ELSE approved_at END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, string(status), nullTextPtr(approvedBy), nullTextPtr(note))
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// scanSubscription converts one result row into a domain model
func scanSubscription(row pgx.Row) (*models.VendorSubscription, error) {
	var (
		id                                          uuid.UUID
		vendorID, planName, currency, status, ref   string
		amount                                      pgtype.Numeric
		approvedBy, approvalNote                    pgtype.Text
		approvedAt                                  pgtype.Timestamptz
		createdAt, updatedAt                        time.Time
	)

	err := row.Scan(&id, &vendorID, &planName, &amount, &currency, &status,
		&ref, &approvedBy, &approvalNote, &approvedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	amountDec, err := numericToDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}

	return &models.VendorSubscription{
		ID:            id.String(),
		VendorID:      vendorID,
		PlanName:      planName,
		Amount:        amountDec,
		Currency:      currency,
		Status:        models.SubscriptionStatus(status),
		ReferenceCode: ref,
		ApprovedBy:    approvedBy.String,
		ApprovalNote:  approvalNote.String,
		ApprovedAt:    timePtr(approvedAt),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
