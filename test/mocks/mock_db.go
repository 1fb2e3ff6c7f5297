package mocks

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MockDB is a mock implementation of ports.DBPort for testing.
// Transactions are simulated: the callback runs with a nil pgx.Tx, which the
// repositories treat as "use the default executor".
type MockDB struct {
	mu sync.Mutex

	// Errors to inject
	TxError error

	// Call tracking
	TxCalls         int
	ReadOnlyTxCalls int
}

// NewMockDB creates a new mock database port
func NewMockDB() *MockDB {
	return &MockDB{}
}

// GetDB returns nil; mock repositories never touch a real pool
func (m *MockDB) GetDB() *pgxpool.Pool {
	return nil
}

// WithTransaction runs fn, simulating a committed transaction
func (m *MockDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.mu.Lock()
	m.TxCalls++
	err := m.TxError
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return fn(ctx, nil)
}

// WithReadOnlyTransaction runs fn, simulating a read-only transaction
func (m *MockDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.mu.Lock()
	m.ReadOnlyTxCalls++
	err := m.TxError
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return fn(ctx, nil)
}
