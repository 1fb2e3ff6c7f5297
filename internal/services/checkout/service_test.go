package checkout

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
	"github.com/dkoffi/marketplace-payments/test/mocks"
)

type testEnv struct {
	service *Service
	db      *mocks.MockDB
	orders  *mocks.MockOrderRepository
	txRepo  *mocks.MockTransactionRepository
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:     mocks.NewMockDB(),
		orders: mocks.NewMockOrderRepository(),
		txRepo: mocks.NewMockTransactionRepository(),
		now:    time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	env.service = NewService(env.db, env.orders, env.txRepo, timeutil.FixedClock(env.now), zap.NewNop())
	return env
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID: "cust_alice",
		Currency:   "USD",
		Items: []ItemRequest{
			{
				ProductID:   "prod_001",
				ProductName: "Digital Bundle",
				VendorID:    "vendor_acme",
				Price:       decimal.NewFromFloat(19.99),
				Quantity:    2,
			},
			{
				ProductID:   "prod_002",
				ProductName: "License Key",
				VendorID:    "vendor_beta",
				Price:       decimal.NewFromFloat(5.00),
				Quantity:    1,
			},
		},
		TaxAmount:      decimal.NewFromFloat(3.60),
		ShippingAmount: decimal.Zero,
		DiscountAmount: decimal.NewFromFloat(5.00),
	}
}

func TestCreateOrder_ComputesTotals(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.service.CreateOrder(context.Background(), validRequest())

	require.NoError(t, err)
	// 2 * 19.99 + 5.00 = 44.98
	assert.True(t, order.Subtotal.Equal(decimal.NewFromFloat(44.98)), "subtotal = %s", order.Subtotal)
	// 44.98 + 3.60 tax - 5.00 discount = 43.58
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromFloat(43.58)), "total = %s", order.TotalAmount)
	assert.Equal(t, "USD", order.Currency)
}

func TestCreateOrder_StartsPendingOnAllAxes(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.service.CreateOrder(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.FulfillmentStatusPending, order.FulfillmentStatus)
	assert.Equal(t, env.now, order.CreatedAt)
}

func TestCreateOrder_GeneratedIdentifiers(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.service.CreateOrder(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260829-[0-9A-F]{8}$`), order.OrderNumber)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{16}$`), order.ReferenceCode)
}

func TestCreateOrder_OpensInitiatedGatewayTransaction(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.service.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	gwTx, err := env.txRepo.GetLatestByOrderID(context.Background(), nil, mustUUID(t, order.ID))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusInitiated, gwTx.Status)
	assert.Equal(t, order.ReferenceCode, gwTx.ReferenceCode)
	assert.Equal(t, "moneroo", gwTx.Gateway)
	assert.Equal(t, fmt.Sprintf("moneroo_%s", order.ReferenceCode), gwTx.TransactionID)
	assert.True(t, gwTx.Amount.Equal(order.TotalAmount))

	// Order, items, and transaction share one database transaction
	assert.Equal(t, 1, env.db.TxCalls)
}

func TestCreateOrder_SnapshotsItems(t *testing.T) {
	env := newTestEnv(t)
	req := validRequest()

	order, err := env.service.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	items := env.orders.Items()
	require.Len(t, items, 2)
	for i, item := range items {
		assert.Equal(t, order.ID, item.OrderID)
		assert.Equal(t, req.Items[i].ProductID, item.ProductID)
		assert.Equal(t, req.Items[i].VendorID, item.VendorID)
		assert.True(t, item.Total.Equal(item.Price.Mul(decimal.NewFromInt32(item.Quantity))))
	}
}

func TestCreateOrder_ValidationFailures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*CreateOrderRequest)
	}{
		{"missing customer", func(r *CreateOrderRequest) { r.CustomerID = "" }},
		{"missing currency", func(r *CreateOrderRequest) { r.Currency = "" }},
		{"no items", func(r *CreateOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }},
		{"negative price", func(r *CreateOrderRequest) { r.Items[0].Price = decimal.NewFromFloat(-1) }},
		{"discount exceeds total", func(r *CreateOrderRequest) { r.DiscountAmount = decimal.NewFromInt(1000) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := env.service.CreateOrder(context.Background(), req)

			require.Error(t, err)
			assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
		})
	}

	// Nothing persisted on any validation failure
	assert.Equal(t, 0, env.db.TxCalls)
}

func TestCreateOrder_CustomGateway(t *testing.T) {
	env := newTestEnv(t)
	req := validRequest()
	req.Gateway = "sandbox"

	order, err := env.service.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	gwTx, err := env.txRepo.GetLatestByOrderID(context.Background(), nil, mustUUID(t, order.ID))
	require.NoError(t, err)
	assert.Equal(t, "sandbox", gwTx.Gateway)
}

func TestCreateOrder_DatabaseFailure(t *testing.T) {
	env := newTestEnv(t)
	env.db.TxError = assert.AnError

	_, err := env.service.CreateOrder(context.Background(), validRequest())

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeDatabaseError))
}
