package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
)

// AutoProcessLogRepository implements ports.AutoProcessLogRepository using pgx.
// The table is append-only; this repository exposes no update or delete.
type AutoProcessLogRepository struct {
	pool ports.DBTX
}

// NewAutoProcessLogRepository creates a new run audit repository
func NewAutoProcessLogRepository(db ports.DBPort) *AutoProcessLogRepository {
	return &AutoProcessLogRepository{pool: db.GetDB()}
}

func (r *AutoProcessLogRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.pool
}

// Create appends one audit record for a completed run
func (r *AutoProcessLogRepository) Create(ctx context.Context, tx ports.DBTX, log *models.AutoProcessLog) error {
	id, err := uuid.Parse(log.ID)
	if err != nil {
		return fmt.Errorf("invalid log ID: %w", err)
	}

	errorsJSON, err := json.Marshal(log.Errors)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	if log.Errors == nil {
		errorsJSON = []byte("[]")
	}

	_, err = r.executor(tx).Exec(ctx, `
		INSERT INTO auto_process_logs (
			id, trigger_kind, triggered_by, processed_orders, total_orders,
			unresolved, execution_time_ms, errors, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, string(log.Trigger), log.TriggeredBy, log.ProcessedOrders, log.TotalOrders,
		log.Unresolved, log.ExecutionTime.Milliseconds(), errorsJSON, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create auto process log: %w", err)
	}
	return nil
}

// ListRecent lists the most recent run records, newest first
func (r *AutoProcessLogRepository) ListRecent(ctx context.Context, db ports.DBTX, limit int32) ([]*models.AutoProcessLog, error) {
	rows, err := r.executor(db).Query(ctx, `
		SELECT id, trigger_kind, triggered_by, processed_orders, total_orders,
		       unresolved, execution_time_ms, errors, created_at
		FROM auto_process_logs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto process logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AutoProcessLog
	for rows.Next() {
		log, err := scanAutoProcessLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auto process log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanAutoProcessLog(row pgx.Row) (*models.AutoProcessLog, error) {
	var (
		id                                    uuid.UUID
		trigger, triggeredBy                  string
		processed, total, unresolved          int
		executionMS                           int64
		errorsJSON                            []byte
		createdAt                             time.Time
	)

	err := row.Scan(&id, &trigger, &triggeredBy, &processed, &total,
		&unresolved, &executionMS, &errorsJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	var procErrors []models.ProcessError
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &procErrors); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}

	return &models.AutoProcessLog{
		ID:              id.String(),
		Trigger:         models.RunTrigger(trigger),
		TriggeredBy:     triggeredBy,
		ProcessedOrders: processed,
		TotalOrders:     total,
		Unresolved:      unresolved,
		ExecutionTime:   time.Duration(executionMS) * time.Millisecond,
		Errors:          procErrors,
		CreatedAt:       createdAt,
	}, nil
}
