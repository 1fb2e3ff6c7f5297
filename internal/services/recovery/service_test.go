package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/test/mocks"
)

const testAdminID = "admin_42"

type testEnv struct {
	service       *Service
	db            *mocks.MockDB
	orders        *mocks.MockOrderRepository
	txRepo        *mocks.MockTransactionRepository
	subscriptions *mocks.MockSubscriptionRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:            mocks.NewMockDB(),
		orders:        mocks.NewMockOrderRepository(),
		txRepo:        mocks.NewMockTransactionRepository(),
		subscriptions: mocks.NewMockSubscriptionRepository(),
	}
	env.service = NewService(env.db, env.orders, env.txRepo, env.subscriptions, zap.NewNop())
	return env
}

// seedStuckOrder stores a pending order whose transaction is stuck in the
// given status, and returns both.
func (env *testEnv) seedStuckOrder(txStatus models.TransactionStatus) (*models.Order, *models.GatewayTransaction) {
	orderID := uuid.New().String()
	created := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	order := &models.Order{
		ID:                orderID,
		OrderNumber:       "ORD-20260829-STUCK001",
		ReferenceCode:     "REF" + orderID[:8],
		CustomerID:        "cust_alice",
		TotalAmount:       decimal.NewFromFloat(19.99),
		Currency:          "USD",
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		FulfillmentStatus: models.FulfillmentStatusPending,
		CreatedAt:         created,
	}
	env.orders.Put(order)

	gwTx := &models.GatewayTransaction{
		ID:            uuid.New().String(),
		TransactionID: "moneroo_" + order.ReferenceCode,
		ReferenceCode: order.ReferenceCode,
		OrderID:       orderID,
		Gateway:       "moneroo",
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Status:        txStatus,
		CreatedAt:     created,
	}
	env.txRepo.Put(gwTx)

	return order, gwTx
}

func TestForceTransactionSuccess_SettlesStuckTransaction(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStuckOrder(models.TransactionStatusPending)

	result, err := env.service.ForceTransactionSuccess(context.Background(), testAdminID, gwTx.TransactionID, "confirmed via gateway dashboard")

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, gwTx.TransactionID, result.TransactionID)
	assert.Equal(t, order.ID, result.OrderID)

	forcedTx := env.txRepo.Get(gwTx.ID)
	assert.Equal(t, models.TransactionStatusSuccess, forcedTx.Status)
	assert.Equal(t, testAdminID, forcedTx.OverriddenBy)
	assert.Equal(t, "confirmed via gateway dashboard", forcedTx.OverrideNote)
	require.NotNil(t, forcedTx.OverriddenAt)

	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, testAdminID, updated.ConfirmedBy)

	assert.Equal(t, 1, env.db.TxCalls)
}

func TestForceTransactionSuccess_OverridesTerminalFailure(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStuckOrder(models.TransactionStatusFailed)

	// Gateway settled as failed, then support confirmed the money moved.
	// Only the override path may leave a terminal state.
	result, err := env.service.ForceTransactionSuccess(context.Background(), testAdminID, gwTx.TransactionID, "late settlement confirmed")

	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.TransactionStatusSuccess, env.txRepo.Get(gwTx.ID).Status)
	assert.Equal(t, models.PaymentStatusPaid, env.orders.Get(order.ID).PaymentStatus)
}

func TestForceTransactionSuccess_AlreadySuccessfulIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStuckOrder(models.TransactionStatusSuccess)

	result, err := env.service.ForceTransactionSuccess(context.Background(), testAdminID, gwTx.TransactionID, "double click")

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, 0, env.db.TxCalls)

	// No override attribution on a no-op
	assert.Empty(t, env.txRepo.Get(gwTx.ID).OverriddenBy)
	assert.Equal(t, models.OrderStatusPending, env.orders.Get(order.ID).Status)
}

func TestForceTransactionSuccess_RequiresAdminID(t *testing.T) {
	env := newTestEnv(t)
	_, gwTx := env.seedStuckOrder(models.TransactionStatusPending)

	_, err := env.service.ForceTransactionSuccess(context.Background(), "", gwTx.TransactionID, "note")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}

func TestForceTransactionSuccess_UnknownTransaction(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ForceTransactionSuccess(context.Background(), testAdminID, "moneroo_NOPE", "note")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeTxnNotFound))
}

func TestForceTransactionSuccess_OrphanedTransactionIsIntegrityGap(t *testing.T) {
	env := newTestEnv(t)

	// Transaction whose order row is missing
	gwTx := &models.GatewayTransaction{
		ID:            uuid.New().String(),
		TransactionID: "moneroo_ORPHAN",
		ReferenceCode: "REFORPHAN",
		OrderID:       uuid.New().String(),
		Gateway:       "moneroo",
		Amount:        decimal.NewFromFloat(10),
		Currency:      "USD",
		Status:        models.TransactionStatusPending,
	}
	env.txRepo.Put(gwTx)

	_, err := env.service.ForceTransactionSuccess(context.Background(), testAdminID, gwTx.TransactionID, "note")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeIntegrityGap))

	// Reported, never repaired
	assert.Equal(t, models.TransactionStatusPending, env.txRepo.Get(gwTx.ID).Status)
}

func TestConfirmOrder_ConfirmsWithoutGatewayVerification(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.seedStuckOrder(models.TransactionStatusPending)

	err := env.service.ConfirmOrder(context.Background(), testAdminID, order.ID)

	require.NoError(t, err)
	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, testAdminID, updated.ConfirmedBy)
	assert.NotEmpty(t, updated.ConfirmationNote)
	// The financial axis is untouched; only force-success settles payment
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
}

func TestConfirmOrder_UnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ConfirmOrder(context.Background(), testAdminID, uuid.New().String())

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderNotFound))
}

func TestConfirmOrder_MalformedID(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ConfirmOrder(context.Background(), testAdminID, "not-a-uuid")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationFailed))
}

func TestConfirmOrder_CancelledOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.seedStuckOrder(models.TransactionStatusPending)
	order.Status = models.OrderStatusCancelled
	env.orders.Put(order)

	err := env.service.ConfirmOrder(context.Background(), testAdminID, order.ID)

	require.Error(t, err)
	assert.True(t, domain.IsTransitionRejected(err))
	assert.Equal(t, models.OrderStatusCancelled, env.orders.Get(order.ID).Status)
}

func TestMarkOrderFulfilled_ConfirmedOrder(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.seedStuckOrder(models.TransactionStatusSuccess)
	order.Status = models.OrderStatusConfirmed
	order.PaymentStatus = models.PaymentStatusPaid
	env.orders.Put(order)

	err := env.service.MarkOrderFulfilled(context.Background(), testAdminID, order.ID)

	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentStatusFulfilled, env.orders.Get(order.ID).FulfillmentStatus)
}

func TestMarkOrderFulfilled_RequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.seedStuckOrder(models.TransactionStatusPending)

	err := env.service.MarkOrderFulfilled(context.Background(), testAdminID, order.ID)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeFulfillBeforeConfirmation))
	assert.Equal(t, models.FulfillmentStatusPending, env.orders.Get(order.ID).FulfillmentStatus)
}

func TestMarkOrderFulfilled_FulfilledIsFinal(t *testing.T) {
	env := newTestEnv(t)
	order, _ := env.seedStuckOrder(models.TransactionStatusSuccess)
	order.Status = models.OrderStatusConfirmed
	order.FulfillmentStatus = models.FulfillmentStatusCancelled
	env.orders.Put(order)

	err := env.service.MarkOrderFulfilled(context.Background(), testAdminID, order.ID)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidTransition))
	assert.Equal(t, models.FulfillmentStatusCancelled, env.orders.Get(order.ID).FulfillmentStatus)
}

func TestMarkOrderFulfilled_UnknownOrder(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.MarkOrderFulfilled(context.Background(), testAdminID, uuid.New().String())

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderNotFound))
}

func seedSubscription(env *testEnv, status models.SubscriptionStatus) *models.VendorSubscription {
	sub := &models.VendorSubscription{
		ID:            uuid.New().String(),
		VendorID:      "vendor_acme",
		PlanName:      "pro-monthly",
		Amount:        decimal.NewFromFloat(29),
		Currency:      "USD",
		Status:        status,
		ReferenceCode: "SUBREF0001",
	}
	env.subscriptions.Put(sub)
	return sub
}

func TestApproveSubscription_ApprovesPending(t *testing.T) {
	env := newTestEnv(t)
	sub := seedSubscription(env, models.SubscriptionStatusPending)

	err := env.service.ApproveSubscription(context.Background(), testAdminID, sub.ID, "vendor verified")

	require.NoError(t, err)
	updated := env.subscriptions.Get(sub.ID)
	assert.Equal(t, models.SubscriptionStatusConfirmed, updated.Status)
	assert.Equal(t, testAdminID, updated.ApprovedBy)
	assert.Equal(t, "vendor verified", updated.ApprovalNote)
	require.NotNil(t, updated.ApprovedAt)
}

func TestRejectSubscription_RejectsPending(t *testing.T) {
	env := newTestEnv(t)
	sub := seedSubscription(env, models.SubscriptionStatusPending)

	err := env.service.RejectSubscription(context.Background(), testAdminID, sub.ID, "payment never arrived")

	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusRejected, env.subscriptions.Get(sub.ID).Status)
}

func TestApproveSubscription_SameStatusIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	sub := seedSubscription(env, models.SubscriptionStatusConfirmed)

	err := env.service.ApproveSubscription(context.Background(), testAdminID, sub.ID, "again")

	require.NoError(t, err)
	// Attribution is not rewritten on a repeat approval
	assert.Empty(t, env.subscriptions.Get(sub.ID).ApprovedBy)
}

func TestApproveSubscription_AlreadyRejected(t *testing.T) {
	env := newTestEnv(t)
	sub := seedSubscription(env, models.SubscriptionStatusRejected)

	err := env.service.ApproveSubscription(context.Background(), testAdminID, sub.ID, "flip it")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeInvalidTransition))
	assert.Equal(t, models.SubscriptionStatusRejected, env.subscriptions.Get(sub.ID).Status)
}

func TestApproveSubscription_UnknownSubscription(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.ApproveSubscription(context.Background(), testAdminID, uuid.New().String(), "note")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSubscriptionNotFound))
}
