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

const transactionColumns = `id, transaction_id, reference_code, order_id, gateway,
	amount, currency, status, gateway_response,
	overridden_by, override_note, overridden_at, created_at, updated_at`

// TransactionRepository implements ports.TransactionRepository using pgx
type TransactionRepository struct {
	pool ports.DBTX
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db ports.DBPort) *TransactionRepository {
	return &TransactionRepository{pool: db.GetDB()}
}

func (r *TransactionRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.pool
}

// Create creates a new gateway transaction record
func (r *TransactionRepository) Create(ctx context.Context, tx ports.DBTX, transaction *models.GatewayTransaction) error {
	id, err := uuid.Parse(transaction.ID)
	if err != nil {
		return fmt.Errorf("invalid transaction ID: %w", err)
	}
	orderID, err := uuid.Parse(transaction.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order ID: %w", err)
	}

	amount, err := decimalToNumeric(transaction.Amount)
	if err != nil {
		return err
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO gateway_transactions (
			id, transaction_id, reference_code, order_id, gateway,
			amount, currency, status, gateway_response, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, transaction.TransactionID, transaction.ReferenceCode, orderID, transaction.Gateway,
		amount, transaction.Currency, string(transaction.Status),
		nullText(transaction.GatewayResponse), transaction.CreatedAt, transaction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create gateway transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its internal ID
func (r *TransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.GatewayTransaction, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM gateway_transactions WHERE id = $1`, id)

	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return tx, nil
}

// GetByTransactionID retrieves a transaction by its gateway-assigned identifier
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, db ports.DBTX, transactionID string) (*models.GatewayTransaction, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM gateway_transactions WHERE transaction_id = $1`, transactionID)

	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction by gateway id: %w", err)
	}
	return tx, nil
}

// GetLatestByOrderID retrieves the most recent transaction for an order
func (r *TransactionRepository) GetLatestByOrderID(ctx context.Context, db ports.DBTX, orderID uuid.UUID) (*models.GatewayTransaction, error) {
	row := r.executor(db).QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM gateway_transactions
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, orderID)

	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get latest transaction for order: %w", err)
	}
	return tx, nil
}

// UpdateStatus updates the status of a transaction, recording the acting
// admin when the change is an override
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.TransactionStatus, gatewayResponse, overriddenBy, note *string) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE gateway_transactions
		SET status = $2,
		    gateway_response = COALESCE($3, gateway_response),
		    overridden_by = COALESCE($4, overridden_by),
		    override_note = COALESCE($5, override_note),
		    overridden_at = CASE WHEN $4 IS NOT NULL THEN NOW() ELSE overridden_at END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, string(status), nullTextPtr(gatewayResponse), nullTextPtr(overriddenBy), nullTextPtr(note))
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// scanTransaction converts one result row into a domain model
func scanTransaction(row pgx.Row) (*models.GatewayTransaction, error) {
	var (
		id, orderID                              uuid.UUID
		transactionID, referenceCode, gateway    string
		amount                                   pgtype.Numeric
		currency, status                         string
		gatewayResponse, overriddenBy, noteText  pgtype.Text
		overriddenAt                             pgtype.Timestamptz
		createdAt, updatedAt                     time.Time
	)

	err := row.Scan(&id, &transactionID, &referenceCode, &orderID, &gateway,
		&amount, &currency, &status, &gatewayResponse,
		&overriddenBy, &noteText, &overriddenAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	amountDec, err := numericToDecimal(amount)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}

	return &models.GatewayTransaction{
		ID:              id.String(),
		TransactionID:   transactionID,
		ReferenceCode:   referenceCode,
		OrderID:         orderID.String(),
		Gateway:         gateway,
		Amount:          amountDec,
		Currency:        currency,
		Status:          models.TransactionStatus(status),
		GatewayResponse: gatewayResponse.String,
		OverriddenBy:    overriddenBy.String,
		OverrideNote:    noteText.String,
		OverriddenAt:    timePtr(overriddenAt),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}
