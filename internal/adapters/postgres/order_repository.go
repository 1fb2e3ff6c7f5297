package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
)

const orderColumns = `id, order_number, reference_code, customer_id,
	subtotal, tax_amount, shipping_amount, discount_amount, total_amount, currency,
	status, payment_status, fulfillment_status,
	confirmed_by, confirmation_note, confirmed_at, created_at, updated_at`

// OrderRepository implements ports.OrderRepository using pgx
type OrderRepository struct {
	pool ports.DBTX
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db ports.DBPort) *OrderRepository {
	return &OrderRepository{pool: db.GetDB()}
}

func (r *OrderRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.pool
}

// Create creates a new order
func (r *OrderRepository) Create(ctx context.Context, tx ports.DBTX, order *models.Order) error {
	id, err := uuid.Parse(order.ID)
	if err != nil {
		return fmt.Errorf("invalid order ID: %w", err)
	}

	amounts := make([]pgtype.Numeric, 5)
	for i, d := range []decimal.Decimal{
		order.Subtotal, order.TaxAmount, order.ShippingAmount, order.DiscountAmount, order.TotalAmount,
	} {
		n, err := decimalToNumeric(d)
		if err != nil {
			return err
		}
		amounts[i] = n
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO orders (
			id, order_number, reference_code, customer_id,
			subtotal, tax_amount, shipping_amount, discount_amount, total_amount, currency,
			status, payment_status, fulfillment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		id, order.OrderNumber, order.ReferenceCode, order.CustomerID,
		amounts[0], amounts[1], amounts[2], amounts[3], amounts[4], order.Currency,
		string(order.Status), string(order.PaymentStatus), string(order.FulfillmentStatus),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// CreateItems creates the denormalized item snapshots for an order
func (r *OrderRepository) CreateItems(ctx context.Context, tx ports.DBTX, items []*models.OrderItem) error {
	for _, item := range items {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			return fmt.Errorf("invalid order item ID: %w", err)
		}
		orderID, err := uuid.Parse(item.OrderID)
		if err != nil {
			return fmt.Errorf("invalid order ID: %w", err)
		}

		price, err := decimalToNumeric(item.Price)
		if err != nil {
			return err
		}
		total, err := decimalToNumeric(item.Total)
		if err != nil {
			return err
		}

		_, err = r.executor(tx).Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_name, vendor_id,
				price, quantity, total, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, orderID, item.ProductID, item.ProductName, item.VendorID,
			price, item.Quantity, total, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Order, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// GetByReferenceCode retrieves an order by its gateway correlation code
func (r *OrderRepository) GetByReferenceCode(ctx context.Context, db ports.DBTX, referenceCode string) (*models.Order, error) {
	row := r.executor(db).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE reference_code = $1`, referenceCode)

	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("get order by reference code: %w", err)
	}
	return order, nil
}

// ListStalePendingPayment lists orders still awaiting payment that were
// created before the cutoff
func (r *OrderRepository) ListStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int32) ([]*models.Order, error) {
	rows, err := r.executor(db).Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending' AND payment_status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CountStalePendingPayment counts orders eligible for reconciliation
func (r *OrderRepository) CountStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time) (int64, error) {
	var count int64
	err := r.executor(db).QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE status = 'pending' AND payment_status = 'pending' AND created_at < $1`,
		cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stale pending orders: %w", err)
	}
	return count, nil
}

// UpdateStatus updates the commercial status, recording the acting admin
// when the change is a manual confirmation
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.OrderStatus, confirmedBy, note *string) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    confirmed_by = COALESCE($3, confirmed_by),
		    confirmation_note = COALESCE($4, confirmation_note),
		    confirmed_at = CASE WHEN $2 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, string(status), nullTextPtr(confirmedBy), nullTextPtr(note))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdatePaymentStatus updates the financial status
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.PaymentStatus) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateFulfillmentStatus updates the delivery status
func (r *OrderRepository) UpdateFulfillmentStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.FulfillmentStatus) error {
	tag, err := r.executor(tx).Exec(ctx, `
		UPDATE orders SET fulfillment_status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update fulfillment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// scanOrder converts one result row into a domain model
func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		id                                               uuid.UUID
		orderNumber, referenceCode, customerID, currency string
		subtotal, tax, shipping, discount, total         pgtype.Numeric
		status, paymentStatus, fulfillmentStatus         string
		confirmedBy, confirmationNote                    pgtype.Text
		confirmedAt                                      pgtype.Timestamptz
		createdAt, updatedAt                             time.Time
	)

	err := row.Scan(&id, &orderNumber, &referenceCode, &customerID,
		&subtotal, &tax, &shipping, &discount, &total, &currency,
		&status, &paymentStatus, &fulfillmentStatus,
		&confirmedBy, &confirmationNote, &confirmedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	subtotalDec, err := numericToDecimal(subtotal)
	if err != nil {
		return nil, fmt.Errorf("convert subtotal: %w", err)
	}
	taxDec, err := numericToDecimal(tax)
	if err != nil {
		return nil, fmt.Errorf("convert tax: %w", err)
	}
	shippingDec, err := numericToDecimal(shipping)
	if err != nil {
		return nil, fmt.Errorf("convert shipping: %w", err)
	}
	discountDec, err := numericToDecimal(discount)
	if err != nil {
		return nil, fmt.Errorf("convert discount: %w", err)
	}
	totalDec, err := numericToDecimal(total)
	if err != nil {
		return nil, fmt.Errorf("convert total: %w", err)
	}

	return &models.Order{
		ID:                id.String(),
		OrderNumber:       orderNumber,
		ReferenceCode:     referenceCode,
		CustomerID:        customerID,
		Subtotal:          subtotalDec,
		TaxAmount:         taxDec,
		ShippingAmount:    shippingDec,
		DiscountAmount:    discountDec,
		TotalAmount:       totalDec,
		Currency:          currency,
		Status:            models.OrderStatus(status),
		PaymentStatus:     models.PaymentStatus(paymentStatus),
		FulfillmentStatus: models.FulfillmentStatus(fulfillmentStatus),
		ConfirmedBy:       confirmedBy.String,
		ConfirmationNote:  confirmationNote.String,
		ConfirmedAt:       timePtr(confirmedAt),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}
