package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

// ItemRequest is one line of a checkout request
type ItemRequest struct {
	ProductID   string
	ProductName string
	VendorID    string
	Price       decimal.Decimal
	Quantity    int32
}

// CreateOrderRequest describes a customer checkout
type CreateOrderRequest struct {
	CustomerID     string
	Currency       string
	Items          []ItemRequest
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	Gateway        string
}

// Service creates orders at checkout time: the order starts pending on every
// axis, item snapshots are frozen, and one initiated gateway transaction is
// opened for the payment attempt.
type Service struct {
	db     ports.DBPort
	orders ports.OrderRepository
	txRepo ports.TransactionRepository
	clock  timeutil.Clock
	logger *zap.Logger
}

// NewService creates a new checkout service
func NewService(
	db ports.DBPort,
	orders ports.OrderRepository,
	txRepo ports.TransactionRepository,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:     db,
		orders: orders,
		txRepo: txRepo,
		clock:  clock,
		logger: logger,
	}
}

// CreateOrder persists a new order, its item snapshots, and an initiated
// gateway transaction in one database transaction.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if req.CustomerID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "customer id is required")
	}
	if len(req.Items) == 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "order must contain at least one item")
	}
	if req.Currency == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "currency is required")
	}

	now := s.clock.Now()
	orderID := uuid.New().String()
	referenceCode := newReferenceCode()

	subtotal := decimal.Zero
	items := make([]*models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "item quantity must be positive").
				WithDetail("product_id", item.ProductID)
		}
		if item.Price.IsNegative() {
			return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "item price must not be negative").
				WithDetail("product_id", item.ProductID)
		}

		lineTotal := item.Price.Mul(decimal.NewFromInt32(item.Quantity))
		subtotal = subtotal.Add(lineTotal)

		items = append(items, &models.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VendorID:    item.VendorID,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Total:       lineTotal,
			CreatedAt:   now,
		})
	}

	total := subtotal.Add(req.TaxAmount).Add(req.ShippingAmount).Sub(req.DiscountAmount)
	if total.IsNegative() {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "order total must not be negative")
	}

	order := &models.Order{
		ID:                orderID,
		OrderNumber:       newOrderNumber(now),
		ReferenceCode:     referenceCode,
		CustomerID:        req.CustomerID,
		Subtotal:          subtotal,
		TaxAmount:         req.TaxAmount,
		ShippingAmount:    req.ShippingAmount,
		DiscountAmount:    req.DiscountAmount,
		TotalAmount:       total,
		Currency:          req.Currency,
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		FulfillmentStatus: models.FulfillmentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	gateway := req.Gateway
	if gateway == "" {
		gateway = "moneroo"
	}
	gwTx := &models.GatewayTransaction{
		ID:            uuid.New().String(),
		TransactionID: fmt.Sprintf("%s_%s", gateway, referenceCode),
		ReferenceCode: referenceCode,
		OrderID:       orderID,
		Gateway:       gateway,
		Amount:        total,
		Currency:      req.Currency,
		Status:        models.TransactionStatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		if err := s.orders.Create(ctx, dbTx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.orders.CreateItems(ctx, dbTx, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		if err := s.txRepo.Create(ctx, dbTx, gwTx); err != nil {
			return fmt.Errorf("create gateway transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "create order", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("reference_code", order.ReferenceCode),
		zap.String("customer_id", order.CustomerID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(items)),
	)
	return order, nil
}

// newOrderNumber builds a human-readable unique order number,
// e.g. ORD-20260829-4F2A1C3B
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// newReferenceCode builds the customer-facing tracking code that also
// correlates the order with its gateway transaction
func newReferenceCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:16])
}
