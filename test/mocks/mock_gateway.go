package mocks

import (
	"context"
	"sync"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
)

// MockVerifier is a mock implementation of ports.PaymentVerifier.
// Configure per-transaction outcomes via Results and Errs.
type MockVerifier struct {
	mu sync.Mutex

	Results map[string]*ports.VerificationResult
	Errs    map[string]error

	// Call tracking
	VerifyCalls []string
}

// NewMockVerifier creates a verifier with no configured transactions
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{
		Results: make(map[string]*ports.VerificationResult),
		Errs:    make(map[string]error),
	}
}

// SetResult configures the verification outcome for a transaction
func (m *MockVerifier) SetResult(transactionID string, status models.TransactionStatus, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[transactionID] = &ports.VerificationResult{
		Success: status == models.TransactionStatusSuccess,
		Status:  status,
		Message: message,
	}
}

// SetError configures Verify to fail for a transaction
func (m *MockVerifier) SetError(transactionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[transactionID] = err
}

func (m *MockVerifier) Verify(ctx context.Context, transactionID string) (*ports.VerificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls = append(m.VerifyCalls, transactionID)

	if err, ok := m.Errs[transactionID]; ok {
		return nil, err
	}
	if result, ok := m.Results[transactionID]; ok {
		cp := *result
		return &cp, nil
	}
	return nil, domain.NewDomainError(domain.ErrorCodeTxnNotFound, "transaction not found at gateway")
}

// MockFulfiller is a mock implementation of ports.Fulfiller
type MockFulfiller struct {
	mu sync.Mutex

	// Error to inject
	ProcessError error

	// Call tracking
	ProcessCalls int
	LastOrder    *models.Order
}

// NewMockFulfiller creates a fulfiller that records calls and succeeds
func NewMockFulfiller() *MockFulfiller {
	return &MockFulfiller{}
}

func (m *MockFulfiller) Process(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProcessCalls++
	cp := *order
	m.LastOrder = &cp
	return m.ProcessError
}

// MockRunLocker is a mock implementation of ports.RunLocker
type MockRunLocker struct {
	mu sync.Mutex

	// Held makes TryAcquire report the lock as taken by another run
	Held bool

	// Err makes TryAcquire fail outright
	Err error

	// Call tracking
	AcquireCalls int
	Releases     int
}

// NewMockRunLocker creates a locker whose lock is free
func NewMockRunLocker() *MockRunLocker {
	return &MockRunLocker{}
}

func (m *MockRunLocker) TryAcquire(ctx context.Context) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcquireCalls++

	if m.Err != nil {
		return nil, false, m.Err
	}
	if m.Held {
		return nil, false, nil
	}
	return func() {
		m.mu.Lock()
		m.Releases++
		m.mu.Unlock()
	}, true, nil
}
