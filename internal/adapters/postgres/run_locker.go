package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reconciliationLockKey is an arbitrary but stable advisory lock key shared
// by every instance of this service.
const reconciliationLockKey = 740031

// RunLocker implements ports.RunLocker with a Postgres session advisory lock,
// so mutual exclusion holds across replicas, not just within one process.
type RunLocker struct {
	pool *pgxpool.Pool
}

// NewRunLocker creates a new advisory-lock based run locker
func NewRunLocker(pool *pgxpool.Pool) *RunLocker {
	return &RunLocker{pool: pool}
}

// TryAcquire attempts to take the reconciliation run lock without blocking.
// The lock is tied to a dedicated connection, which is held until release.
func (l *RunLocker) TryAcquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for run lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, reconciliationLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		// Unlock on the same session; a lost connection releases implicitly
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, reconciliationLockKey)
		conn.Release()
	}
	return release, true, nil
}
