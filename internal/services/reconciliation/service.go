package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/internal/services/transition"
	"github.com/dkoffi/marketplace-payments/pkg/observability"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

const (
	// DefaultStaleness is how long an order stays pending before a run picks it up
	DefaultStaleness = time.Hour

	// DefaultBatchSize bounds how many candidates one run examines
	DefaultBatchSize = 100
)

// RunOptions configures one reconciliation run
type RunOptions struct {
	// Staleness is the minimum age of a pending order before it is examined
	Staleness time.Duration

	// BatchSize limits how many candidates the run selects
	BatchSize int32

	// Manual distinguishes admin-triggered runs from scheduled ones
	Manual bool

	// TriggeredBy is the admin ID for manual runs, "scheduler" otherwise
	TriggeredBy string
}

// RunResult summarizes one completed run
type RunResult struct {
	RunID      string
	Processed  int // Orders whose payment outcome was settled this run
	Total      int // Orders examined
	Unresolved int // Orders left untouched (gateway still pending or unreachable)
	Errors     []models.ProcessError
	Duration   time.Duration
}

// Service resolves orders whose payment outcome is stale by re-querying the
// payment gateway. Runs are mutually exclusive via the run lock and are safe
// to repeat: an order settled by one run is no longer a candidate for the next.
type Service struct {
	db        ports.DBPort
	orders    ports.OrderRepository
	txRepo    ports.TransactionRepository
	logs      ports.AutoProcessLogRepository
	verifier  ports.PaymentVerifier
	fulfiller ports.Fulfiller
	locker    ports.RunLocker
	clock     timeutil.Clock
	logger    *zap.Logger
}

// NewService creates a new reconciliation service
func NewService(
	db ports.DBPort,
	orders ports.OrderRepository,
	txRepo ports.TransactionRepository,
	logs ports.AutoProcessLogRepository,
	verifier ports.PaymentVerifier,
	fulfiller ports.Fulfiller,
	locker ports.RunLocker,
	clock timeutil.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:        db,
		orders:    orders,
		txRepo:    txRepo,
		logs:      logs,
		verifier:  verifier,
		fulfiller: fulfiller,
		locker:    locker,
		clock:     clock,
		logger:    logger,
	}
}

// Run executes one reconciliation pass over stale pending orders.
//
// Each candidate is verified against the gateway and, depending on the
// reported outcome, settled inside its own database transaction. A failure
// on one candidate is recorded and the loop continues with the rest. One
// AutoProcessLog entry is written per run regardless of outcome.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultStaleness
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = "scheduler"
	}

	release, acquired, err := s.locker.TryAcquire(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "acquire run lock", err)
	}
	if !acquired {
		return nil, domain.ErrRunInProgress
	}
	defer release()

	started := s.clock.Now()
	cutoff := started.Add(-opts.Staleness)

	candidates, err := s.orders.ListStalePendingPayment(ctx, nil, cutoff, opts.BatchSize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list stale orders", err)
	}

	result := &RunResult{
		RunID: uuid.New().String(),
	}

	s.logger.Info("reconciliation run started",
		zap.String("run_id", result.RunID),
		zap.Bool("manual", opts.Manual),
		zap.String("triggered_by", opts.TriggeredBy),
		zap.Time("cutoff", cutoff),
		zap.Int("candidates", len(candidates)),
	)

	seen := make(map[string]bool, len(candidates))
	for _, order := range candidates {
		// A hung gateway must not stall the whole batch forever; stop
		// between candidates once the caller's deadline has passed.
		if ctx.Err() != nil {
			s.logger.Warn("reconciliation run interrupted",
				zap.String("run_id", result.RunID),
				zap.Error(ctx.Err()),
			)
			break
		}

		// Each order is processed at most once per run
		if seen[order.ID] {
			continue
		}
		seen[order.ID] = true
		result.Total++

		if procErr := s.processCandidate(ctx, order, result); procErr != nil {
			result.Errors = append(result.Errors, *procErr)
			observability.RecordReconciliationError(procErr.Kind)
		}
	}

	result.Duration = s.clock.Now().Sub(started)

	if err := s.writeRunLog(ctx, opts, result); err != nil {
		// The run itself succeeded; a missing audit row is logged, not fatal
		s.logger.Error("failed to write reconciliation log",
			zap.String("run_id", result.RunID),
			zap.Error(err),
		)
	}

	trigger := string(models.RunTriggerScheduled)
	if opts.Manual {
		trigger = string(models.RunTriggerManual)
	}
	observability.RecordReconciliationRun(trigger, result.Duration, result.Total, result.Processed, len(result.Errors) > 0)

	s.logger.Info("reconciliation run finished",
		zap.String("run_id", result.RunID),
		zap.Int("processed", result.Processed),
		zap.Int("total", result.Total),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// processCandidate verifies one order against the gateway and applies the
// reported outcome. It returns a ProcessError for recordable failures and
// updates the run counters in place.
func (s *Service) processCandidate(ctx context.Context, order *models.Order, result *RunResult) *models.ProcessError {
	orderID, err := uuid.Parse(order.ID)
	if err != nil {
		return &models.ProcessError{
			OrderID: order.ID,
			Kind:    string(domain.ErrorCodeIntegrityGap),
			Message: fmt.Sprintf("malformed order id: %v", err),
		}
	}

	tx, err := s.txRepo.GetLatestByOrderID(ctx, nil, orderID)
	if err != nil {
		// An order with no transaction is reported, never auto-repaired
		return &models.ProcessError{
			OrderID: order.ID,
			Kind:    string(domain.ErrorCodeIntegrityGap),
			Message: fmt.Sprintf("no gateway transaction for order %s: %v", order.OrderNumber, err),
		}
	}

	verification, err := s.verifier.Verify(ctx, tx.TransactionID)
	if err != nil {
		// Preserve the verifier's own error category in the run log. Only an
		// availability failure leaves the candidate unresolved for the next
		// run; a permanent verifier error (unknown transaction, malformed
		// response) will not improve by waiting.
		kind := domain.GetErrorCode(err)
		if kind == "" {
			kind = domain.ErrorCodeGatewayUnreachable
		}
		if kind == domain.ErrorCodeGatewayUnreachable {
			result.Unresolved++
		}
		return &models.ProcessError{
			OrderID: order.ID,
			Kind:    string(kind),
			Message: err.Error(),
		}
	}

	switch verification.Status {
	case models.TransactionStatusSuccess:
		if err := s.settleSuccess(ctx, order, tx, verification); err != nil {
			return &models.ProcessError{
				OrderID: order.ID,
				Kind:    string(domain.GetErrorCode(err)),
				Message: err.Error(),
			}
		}
		result.Processed++

		// Downstream delivery is out of band; a failure here is surfaced in
		// logs but the payment outcome has already been settled.
		if s.fulfiller != nil {
			if err := s.fulfiller.Process(ctx, order); err != nil {
				s.logger.Warn("auto-processing trigger failed",
					zap.String("order_id", order.ID),
					zap.Error(err),
				)
			}
		}
		return nil

	case models.TransactionStatusFailed, models.TransactionStatusCancelled:
		if err := s.settleFailure(ctx, order, tx, verification); err != nil {
			return &models.ProcessError{
				OrderID: order.ID,
				Kind:    string(domain.GetErrorCode(err)),
				Message: err.Error(),
			}
		}
		result.Processed++
		return nil

	default:
		// Gateway still reports a transitional status; leave untouched
		result.Unresolved++
		return nil
	}
}

// settleSuccess applies a gateway-confirmed payment: transaction to success,
// order payment to paid, order to confirmed. All three writes share one
// database transaction.
func (s *Service) settleSuccess(ctx context.Context, order *models.Order, gwTx *models.GatewayTransaction, verification *ports.VerificationResult) error {
	if err := transition.Transaction(gwTx.Status, models.TransactionStatusSuccess, false); err != nil {
		return err
	}
	if err := transition.OrderPaymentStatus(order.PaymentStatus, models.PaymentStatusPaid, false); err != nil {
		return err
	}

	paidOrder := *order
	paidOrder.PaymentStatus = models.PaymentStatusPaid
	if err := transition.OrderStatus(&paidOrder, models.OrderStatusConfirmed, false); err != nil {
		return err
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		txID := uuid.MustParse(gwTx.ID)
		orderID := uuid.MustParse(order.ID)

		response := verification.Message
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txID, models.TransactionStatusSuccess, &response, nil, nil); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := s.orders.UpdatePaymentStatus(ctx, dbTx, orderID, models.PaymentStatusPaid); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if err := s.orders.UpdateStatus(ctx, dbTx, orderID, models.OrderStatusConfirmed, nil, nil); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "settle successful payment", err)
	}

	order.PaymentStatus = models.PaymentStatusPaid
	order.Status = models.OrderStatusConfirmed

	s.logger.Info("order payment confirmed by reconciliation",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("transaction_id", gwTx.TransactionID),
	)
	return nil
}

// settleFailure records a gateway-reported terminal failure. The order is
// deliberately NOT cancelled: a real-but-delayed payment must not be thrown
// away, so the order stays for human review.
func (s *Service) settleFailure(ctx context.Context, order *models.Order, gwTx *models.GatewayTransaction, verification *ports.VerificationResult) error {
	if err := transition.Transaction(gwTx.Status, verification.Status, false); err != nil {
		return err
	}
	if err := transition.OrderPaymentStatus(order.PaymentStatus, models.PaymentStatusFailed, false); err != nil {
		return err
	}

	err := s.db.WithTransaction(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		txID := uuid.MustParse(gwTx.ID)
		orderID := uuid.MustParse(order.ID)

		response := verification.Message
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txID, verification.Status, &response, nil, nil); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := s.orders.UpdatePaymentStatus(ctx, dbTx, orderID, models.PaymentStatusFailed); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "settle failed payment", err)
	}

	order.PaymentStatus = models.PaymentStatusFailed

	s.logger.Info("order payment failure recorded by reconciliation",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("gateway_status", string(verification.Status)),
	)
	return nil
}

func (s *Service) writeRunLog(ctx context.Context, opts RunOptions, result *RunResult) error {
	trigger := models.RunTriggerScheduled
	if opts.Manual {
		trigger = models.RunTriggerManual
	}

	return s.logs.Create(ctx, nil, &models.AutoProcessLog{
		ID:              result.RunID,
		Trigger:         trigger,
		TriggeredBy:     opts.TriggeredBy,
		ProcessedOrders: result.Processed,
		TotalOrders:     result.Total,
		Unresolved:      result.Unresolved,
		ExecutionTime:   result.Duration,
		Errors:          result.Errors,
		CreatedAt:       s.clock.Now(),
	})
}
