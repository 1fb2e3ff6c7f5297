package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
)

// MockOrderRepository is an in-memory implementation of ports.OrderRepository
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	items  []*models.OrderItem

	// Errors to inject
	CreateError error
	GetError    error
	ListError   error
	UpdateError error
}

// NewMockOrderRepository creates an empty in-memory order repository
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*models.Order)}
}

// Put seeds the repository with an order
func (m *MockOrderRepository) Put(order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
}

// Get returns the stored state of an order, or nil
func (m *MockOrderRepository) Get(id string) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil
	}
	cp := *order
	return &cp
}

func (m *MockOrderRepository) Create(ctx context.Context, tx ports.DBTX, order *models.Order) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.Put(order)
	return nil
}

func (m *MockOrderRepository) CreateItems(ctx context.Context, tx ports.DBTX, items []*models.OrderItem) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
	return nil
}

// Items returns all stored item snapshots
func (m *MockOrderRepository) Items() []*models.OrderItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.OrderItem(nil), m.items...)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.Order, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	order := m.Get(id.String())
	if order == nil {
		return nil, pgx.ErrNoRows
	}
	return order, nil
}

func (m *MockOrderRepository) GetByReferenceCode(ctx context.Context, db ports.DBTX, referenceCode string) (*models.Order, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.ReferenceCode == referenceCode {
			cp := *order
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockOrderRepository) ListStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time, limit int32) ([]*models.Order, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*models.Order
	for _, order := range m.orders {
		if order.Status == models.OrderStatusPending &&
			order.PaymentStatus == models.PaymentStatusPending &&
			order.CreatedAt.Before(cutoff) {
			cp := *order
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if int32(len(stale)) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (m *MockOrderRepository) CountStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time) (int64, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	orders, err := m.ListStalePendingPayment(ctx, db, cutoff, 1<<30)
	if err != nil {
		return 0, err
	}
	return int64(len(orders)), nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.OrderStatus, confirmedBy, note *string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id.String()]
	if !ok {
		return pgx.ErrNoRows
	}
	order.Status = status
	if confirmedBy != nil {
		order.ConfirmedBy = *confirmedBy
	}
	if note != nil {
		order.ConfirmationNote = *note
	}
	if status == models.OrderStatusConfirmed && order.ConfirmedAt == nil {
		now := time.Now().UTC()
		order.ConfirmedAt = &now
	}
	return nil
}

func (m *MockOrderRepository) UpdatePaymentStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.PaymentStatus) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id.String()]
	if !ok {
		return pgx.ErrNoRows
	}
	order.PaymentStatus = status
	return nil
}

func (m *MockOrderRepository) UpdateFulfillmentStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.FulfillmentStatus) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id.String()]
	if !ok {
		return pgx.ErrNoRows
	}
	order.FulfillmentStatus = status
	return nil
}

// MockTransactionRepository is an in-memory implementation of ports.TransactionRepository
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[string]*models.GatewayTransaction

	// Errors to inject
	CreateError error
	GetError    error
	UpdateError error
}

// NewMockTransactionRepository creates an empty in-memory transaction repository
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{transactions: make(map[string]*models.GatewayTransaction)}
}

// Put seeds the repository with a transaction
func (m *MockTransactionRepository) Put(tx *models.GatewayTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.ID] = &cp
}

// Get returns the stored state of a transaction, or nil
func (m *MockTransactionRepository) Get(id string) *models.GatewayTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil
	}
	cp := *tx
	return &cp
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx ports.DBTX, transaction *models.GatewayTransaction) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.Put(transaction)
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.GatewayTransaction, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	tx := m.Get(id.String())
	if tx == nil {
		return nil, pgx.ErrNoRows
	}
	return tx, nil
}

func (m *MockTransactionRepository) GetByTransactionID(ctx context.Context, db ports.DBTX, transactionID string) (*models.GatewayTransaction, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.TransactionID == transactionID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockTransactionRepository) GetLatestByOrderID(ctx context.Context, db ports.DBTX, orderID uuid.UUID) (*models.GatewayTransaction, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.GatewayTransaction
	for _, tx := range m.transactions {
		if tx.OrderID != orderID.String() {
			continue
		}
		if latest == nil || tx.CreatedAt.After(latest.CreatedAt) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.TransactionStatus, gatewayResponse, overriddenBy, note *string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	transaction, ok := m.transactions[id.String()]
	if !ok {
		return pgx.ErrNoRows
	}
	transaction.Status = status
	if gatewayResponse != nil {
		transaction.GatewayResponse = *gatewayResponse
	}
	if overriddenBy != nil {
		transaction.OverriddenBy = *overriddenBy
		now := time.Now().UTC()
		transaction.OverriddenAt = &now
	}
	if note != nil {
		transaction.OverrideNote = *note
	}
	return nil
}

// MockSubscriptionRepository is an in-memory implementation of ports.SubscriptionRepository
type MockSubscriptionRepository struct {
	mu            sync.Mutex
	subscriptions map[string]*models.VendorSubscription

	// Errors to inject
	CreateError error
	GetError    error
	UpdateError error
}

// NewMockSubscriptionRepository creates an empty in-memory subscription repository
func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{subscriptions: make(map[string]*models.VendorSubscription)}
}

// Put seeds the repository with a subscription
func (m *MockSubscriptionRepository) Put(sub *models.VendorSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subscriptions[sub.ID] = &cp
}

// Get returns the stored state of a subscription, or nil
func (m *MockSubscriptionRepository) Get(id string) *models.VendorSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil
	}
	cp := *sub
	return &cp
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, subscription *models.VendorSubscription) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.Put(subscription)
	return nil
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, db ports.DBTX, id uuid.UUID) (*models.VendorSubscription, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	sub := m.Get(id.String())
	if sub == nil {
		return nil, pgx.ErrNoRows
	}
	return sub, nil
}

func (m *MockSubscriptionRepository) ListByStatus(ctx context.Context, db ports.DBTX, status models.SubscriptionStatus, limit int32) ([]*models.VendorSubscription, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var subs []*models.VendorSubscription
	for _, sub := range m.subscriptions {
		if sub.Status == status && int32(len(subs)) < limit {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	return subs, nil
}

func (m *MockSubscriptionRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, id uuid.UUID, status models.SubscriptionStatus, approvedBy, note *string) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id.String()]
	if !ok {
		return pgx.ErrNoRows
	}
	sub.Status = status
	if approvedBy != nil {
		sub.ApprovedBy = *approvedBy
		now := time.Now().UTC()
		sub.ApprovedAt = &now
	}
	if note != nil {
		sub.ApprovalNote = *note
	}
	return nil
}

// MockAutoProcessLogRepository is an in-memory implementation of ports.AutoProcessLogRepository
type MockAutoProcessLogRepository struct {
	mu   sync.Mutex
	logs []*models.AutoProcessLog

	// Errors to inject
	CreateError error
	ListError   error
}

// NewMockAutoProcessLogRepository creates an empty in-memory run log repository
func NewMockAutoProcessLogRepository() *MockAutoProcessLogRepository {
	return &MockAutoProcessLogRepository{}
}

func (m *MockAutoProcessLogRepository) Create(ctx context.Context, tx ports.DBTX, log *models.AutoProcessLog) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MockAutoProcessLogRepository) ListRecent(ctx context.Context, db ports.DBTX, limit int32) ([]*models.AutoProcessLog, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	logs := append([]*models.AutoProcessLog(nil), m.logs...)
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if int32(len(logs)) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Logs returns every stored run record in insertion order
func (m *MockAutoProcessLogRepository) Logs() []*models.AutoProcessLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AutoProcessLog(nil), m.logs...)
}
