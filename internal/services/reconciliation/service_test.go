package reconciliation

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
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
	"github.com/dkoffi/marketplace-payments/test/mocks"
)

type testEnv struct {
	service   *Service
	db        *mocks.MockDB
	orders    *mocks.MockOrderRepository
	txRepo    *mocks.MockTransactionRepository
	logs      *mocks.MockAutoProcessLogRepository
	verifier  *mocks.MockVerifier
	fulfiller *mocks.MockFulfiller
	locker    *mocks.MockRunLocker
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:        mocks.NewMockDB(),
		orders:    mocks.NewMockOrderRepository(),
		txRepo:    mocks.NewMockTransactionRepository(),
		logs:      mocks.NewMockAutoProcessLogRepository(),
		verifier:  mocks.NewMockVerifier(),
		fulfiller: mocks.NewMockFulfiller(),
		locker:    mocks.NewMockRunLocker(),
		now:       time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	env.service = NewService(
		env.db,
		env.orders,
		env.txRepo,
		env.logs,
		env.verifier,
		env.fulfiller,
		env.locker,
		timeutil.FixedClock(env.now),
		zap.NewNop(),
	)
	return env
}

// seedStaleOrder stores a pending order of the given age together with its
// gateway transaction, and returns both.
func (env *testEnv) seedStaleOrder(age time.Duration) (*models.Order, *models.GatewayTransaction) {
	orderID := uuid.New().String()
	created := env.now.Add(-age)

	order := &models.Order{
		ID:                orderID,
		OrderNumber:       "ORD-20260829-TEST0001",
		ReferenceCode:     "REF" + orderID[:8],
		CustomerID:        "cust_alice",
		TotalAmount:       decimal.NewFromFloat(49.99),
		Currency:          "USD",
		Status:            models.OrderStatusPending,
		PaymentStatus:     models.PaymentStatusPending,
		FulfillmentStatus: models.FulfillmentStatusPending,
		CreatedAt:         created,
		UpdatedAt:         created,
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
		Status:        models.TransactionStatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	env.txRepo.Put(gwTx)

	return order, gwTx
}

func TestRun_SettlesSuccessfulPayment(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusSuccess, "payment completed")

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Unresolved)
	assert.Empty(t, result.Errors)

	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	settledTx := env.txRepo.Get(gwTx.ID)
	assert.Equal(t, models.TransactionStatusSuccess, settledTx.Status)
	assert.Equal(t, "payment completed", settledTx.GatewayResponse)

	// Both row updates share one database transaction
	assert.Equal(t, 1, env.db.TxCalls)
	assert.Equal(t, 1, env.fulfiller.ProcessCalls)
	assert.Equal(t, order.ID, env.fulfiller.LastOrder.ID)
}

func TestRun_RecordsFailureWithoutCancellingOrder(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusFailed, "insufficient funds")

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)

	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.PaymentStatusFailed, updated.PaymentStatus)
	// The order itself stays pending for human review
	assert.Equal(t, models.OrderStatusPending, updated.Status)

	settledTx := env.txRepo.Get(gwTx.ID)
	assert.Equal(t, models.TransactionStatusFailed, settledTx.Status)
	assert.Equal(t, "insufficient funds", settledTx.GatewayResponse)

	assert.Equal(t, 0, env.fulfiller.ProcessCalls)
}

func TestRun_LeavesStillPendingUntouched(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusPending, "awaiting customer")

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Unresolved)
	assert.Empty(t, result.Errors)

	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
	assert.Equal(t, models.TransactionStatusPending, env.txRepo.Get(gwTx.ID).Status)
}

func TestRun_GatewayUnreachableLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetError(gwTx.TransactionID, domain.NewDomainError(domain.ErrorCodeGatewayUnreachable, "gateway unreachable after 3 attempts"))

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Unresolved)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, order.ID, result.Errors[0].OrderID)
	assert.Equal(t, string(domain.ErrorCodeGatewayUnreachable), result.Errors[0].Kind)

	updated := env.orders.Get(order.ID)
	assert.Equal(t, models.PaymentStatusPending, updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, updated.Status)
}

func TestRun_VerifierErrorKeepsItsCategory(t *testing.T) {
	env := newTestEnv(t)
	order, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetError(gwTx.TransactionID,
		domain.NewDomainError(domain.ErrorCodeTxnNotFound, "transaction not found at gateway"))

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, string(domain.ErrorCodeTxnNotFound), result.Errors[0].Kind)
	assert.Equal(t, order.ID, result.Errors[0].OrderID)
	// A transaction unknown at the gateway is permanent, not unresolved
	assert.Equal(t, 0, result.Unresolved)

	logs := env.logs.Logs()
	require.Len(t, logs, 1)
	require.Len(t, logs[0].Errors, 1)
	assert.Equal(t, string(domain.ErrorCodeTxnNotFound), logs[0].Errors[0].Kind)
}

func TestRun_InvalidGatewayResponseNotCountedUnresolved(t *testing.T) {
	env := newTestEnv(t)
	_, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetError(gwTx.TransactionID,
		domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse, "gateway reported unknown status"))

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, string(domain.ErrorCodeGatewayInvalidResponse), result.Errors[0].Kind)
	assert.Equal(t, 0, result.Unresolved)
}

func TestRun_ReportsIntegrityGapWhenTransactionMissing(t *testing.T) {
	env := newTestEnv(t)

	// Pending order with no gateway transaction at all
	orderID := uuid.New().String()
	env.orders.Put(&models.Order{
		ID:            orderID,
		OrderNumber:   "ORD-20260829-ORPHAN01",
		ReferenceCode: "REFORPHAN",
		CustomerID:    "cust_bob",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     env.now.Add(-3 * time.Hour),
	})

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, string(domain.ErrorCodeIntegrityGap), result.Errors[0].Kind)

	// Never auto-repaired
	assert.Equal(t, models.OrderStatusPending, env.orders.Get(orderID).Status)
	assert.Empty(t, env.verifier.VerifyCalls)
}

func TestRun_SkipsFreshOrders(t *testing.T) {
	env := newTestEnv(t)
	_, gwTx := env.seedStaleOrder(10 * time.Minute)
	env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusSuccess, "payment completed")

	result, err := env.service.Run(context.Background(), RunOptions{Staleness: time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, env.verifier.VerifyCalls)
}

func TestRun_SecondRunFindsNothing(t *testing.T) {
	env := newTestEnv(t)
	_, gwTx := env.seedStaleOrder(2 * time.Hour)
	env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusSuccess, "payment completed")

	first, err := env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	// The settled order is no longer pending, so it is not a candidate again
	second, err := env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)
	assert.Len(t, env.verifier.VerifyCalls, 1)
}

func TestRun_ConflictWhenLockHeld(t *testing.T) {
	env := newTestEnv(t)
	env.seedStaleOrder(2 * time.Hour)
	env.locker.Held = true

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRunInProgress))
	assert.Empty(t, env.verifier.VerifyCalls)
	assert.Empty(t, env.logs.Logs())
}

func TestRun_ReleasesLockAfterRun(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, env.locker.AcquireCalls)
	assert.Equal(t, 1, env.locker.Releases)
}

func TestRun_WritesRunLog(t *testing.T) {
	env := newTestEnv(t)
	_, okTx := env.seedStaleOrder(2 * time.Hour)
	badOrder, badTx := env.seedStaleOrder(3 * time.Hour)
	env.verifier.SetResult(okTx.TransactionID, models.TransactionStatusSuccess, "payment completed")
	env.verifier.SetError(badTx.TransactionID, domain.NewDomainError(domain.ErrorCodeGatewayUnreachable, "timeout"))

	result, err := env.service.Run(context.Background(), RunOptions{
		Manual:      true,
		TriggeredBy: "admin_42",
	})
	require.NoError(t, err)

	logs := env.logs.Logs()
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, result.RunID, entry.ID)
	assert.Equal(t, models.RunTriggerManual, entry.Trigger)
	assert.Equal(t, "admin_42", entry.TriggeredBy)
	assert.Equal(t, 2, entry.TotalOrders)
	assert.Equal(t, 1, entry.ProcessedOrders)
	assert.Equal(t, 1, entry.Unresolved)
	require.Len(t, entry.Errors, 1)
	assert.Equal(t, badOrder.ID, entry.Errors[0].OrderID)
	assert.Equal(t, env.now, entry.CreatedAt)
}

func TestRun_DefaultsTriggeredByToScheduler(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	logs := env.logs.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunTriggerScheduled, logs[0].Trigger)
	assert.Equal(t, "scheduler", logs[0].TriggeredBy)
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.seedStaleOrder(2 * time.Hour)
	env.seedStaleOrder(3 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.service.Run(ctx, RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, env.verifier.VerifyCalls)
	assert.Equal(t, 1, env.locker.Releases)
}

func TestRun_OneFailureDoesNotStopTheBatch(t *testing.T) {
	env := newTestEnv(t)
	okOrder, okTx := env.seedStaleOrder(2 * time.Hour)
	_, badTx := env.seedStaleOrder(4 * time.Hour)
	env.verifier.SetResult(okTx.TransactionID, models.TransactionStatusSuccess, "payment completed")
	env.verifier.SetError(badTx.TransactionID, domain.NewDomainError(domain.ErrorCodeGatewayUnreachable, "timeout"))

	result, err := env.service.Run(context.Background(), RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Unresolved)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.OrderStatusConfirmed, env.orders.Get(okOrder.ID).Status)
}

func TestRun_RespectsBatchSize(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		_, gwTx := env.seedStaleOrder(time.Duration(i+2) * time.Hour)
		env.verifier.SetResult(gwTx.TransactionID, models.TransactionStatusSuccess, "payment completed")
	}

	result, err := env.service.Run(context.Background(), RunOptions{BatchSize: 3})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Processed)
	assert.Len(t, env.verifier.VerifyCalls, 3)
}
