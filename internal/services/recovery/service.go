package recovery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/internal/services/transition"
	"github.com/dkoffi/marketplace-payments/pkg/observability"
)

// Service implements the admin recovery commands: the only code path allowed
// to move a transaction between terminal states. Every action is attributed
// to the acting admin on the affected rows.
type Service struct {
	db            ports.DBPort
	orders        ports.OrderRepository
	txRepo        ports.TransactionRepository
	subscriptions ports.SubscriptionRepository
	logger        *zap.Logger
}

// NewService creates a new recovery service
func NewService(
	db ports.DBPort,
	orders ports.OrderRepository,
	txRepo ports.TransactionRepository,
	subscriptions ports.SubscriptionRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:            db,
		orders:        orders,
		txRepo:        txRepo,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// ForceResult reports what a force-success actually changed
type ForceResult struct {
	TransactionID string
	OrderID       string
	Changed       bool // False when the transaction was already successful
}

// ForceTransactionSuccess forces a transaction and its order into the paid,
// confirmed state after the admin has confirmed payment with the gateway out
// of band. Re-forcing an already-successful transaction is a no-op.
func (s *Service) ForceTransactionSuccess(ctx context.Context, adminID, transactionID, note string) (*ForceResult, error) {
	if adminID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "admin id is required for overrides")
	}

	gwTx, err := s.txRepo.GetByTransactionID(ctx, nil, transactionID)
	if err != nil {
		observability.RecordAdminOverride("force_success", err)
		return nil, domain.WrapError(domain.ErrorCodeTxnNotFound, "transaction not found", err).
			WithDetail("transaction_id", transactionID)
	}

	result := &ForceResult{
		TransactionID: gwTx.TransactionID,
		OrderID:       gwTx.OrderID,
	}

	if gwTx.Status == models.TransactionStatusSuccess {
		s.logger.Info("force-success on already-successful transaction, nothing to do",
			zap.String("admin_id", adminID),
			zap.String("transaction_id", transactionID),
		)
		observability.RecordAdminOverride("force_success", nil)
		return result, nil
	}

	if err := transition.Transaction(gwTx.Status, models.TransactionStatusSuccess, true); err != nil {
		observability.RecordAdminOverride("force_success", err)
		return nil, err
	}

	if gwTx.OrderID == "" {
		err := domain.NewDomainError(domain.ErrorCodeIntegrityGap, "transaction references no order").
			WithDetail("transaction_id", transactionID)
		observability.RecordAdminOverride("force_success", err)
		return nil, err
	}

	orderID, parseErr := uuid.Parse(gwTx.OrderID)
	if parseErr != nil {
		err := domain.WrapError(domain.ErrorCodeIntegrityGap, "transaction references malformed order id", parseErr).
			WithDetail("transaction_id", transactionID)
		observability.RecordAdminOverride("force_success", err)
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, nil, orderID)
	if err != nil {
		// The transaction points at a missing order: reported, not repaired
		gapErr := domain.WrapError(domain.ErrorCodeIntegrityGap, "order referenced by transaction not found", err).
			WithDetail("transaction_id", transactionID).
			WithDetail("order_id", gwTx.OrderID)
		observability.RecordAdminOverride("force_success", gapErr)
		return nil, gapErr
	}

	if err := transition.OrderPaymentStatus(order.PaymentStatus, models.PaymentStatusPaid, true); err != nil {
		observability.RecordAdminOverride("force_success", err)
		return nil, err
	}

	confirmOrder := order.Status == models.OrderStatusPending
	if confirmOrder {
		paidOrder := *order
		paidOrder.PaymentStatus = models.PaymentStatusPaid
		if err := transition.OrderStatus(&paidOrder, models.OrderStatusConfirmed, true); err != nil {
			observability.RecordAdminOverride("force_success", err)
			return nil, err
		}
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, dbTx pgx.Tx) error {
		txID := uuid.MustParse(gwTx.ID)

		if err := s.txRepo.UpdateStatus(ctx, dbTx, txID, models.TransactionStatusSuccess, nil, &adminID, &note); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if err := s.orders.UpdatePaymentStatus(ctx, dbTx, orderID, models.PaymentStatusPaid); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if confirmOrder {
			if err := s.orders.UpdateStatus(ctx, dbTx, orderID, models.OrderStatusConfirmed, &adminID, &note); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		dbErr := domain.WrapError(domain.ErrorCodeDatabaseError, "apply force-success", err)
		observability.RecordAdminOverride("force_success", dbErr)
		return nil, dbErr
	}

	result.Changed = true
	observability.RecordAdminOverride("force_success", nil)

	s.logger.Info("transaction forced to success",
		zap.String("admin_id", adminID),
		zap.String("transaction_id", transactionID),
		zap.String("order_id", gwTx.OrderID),
		zap.String("previous_status", string(gwTx.Status)),
		zap.String("note", note),
	)
	return result, nil
}

// ConfirmOrder confirms a stuck order without gateway verification. This is
// the deliberate admin fast path; the override is attributed on the row.
func (s *Service) ConfirmOrder(ctx context.Context, adminID, orderID string) error {
	if adminID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "admin id is required for overrides")
	}

	id, err := uuid.Parse(orderID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed order id", err)
	}

	order, err := s.orders.GetByID(ctx, nil, id)
	if err != nil {
		observability.RecordAdminOverride("confirm_order", err)
		return domain.WrapError(domain.ErrorCodeOrderNotFound, "order not found", err).
			WithDetail("order_id", orderID)
	}

	if err := transition.OrderStatus(order, models.OrderStatusConfirmed, true); err != nil {
		observability.RecordAdminOverride("confirm_order", err)
		return err
	}

	note := "manual confirmation without gateway verification"
	if err := s.orders.UpdateStatus(ctx, nil, id, models.OrderStatusConfirmed, &adminID, &note); err != nil {
		dbErr := domain.WrapError(domain.ErrorCodeDatabaseError, "confirm order", err)
		observability.RecordAdminOverride("confirm_order", dbErr)
		return dbErr
	}

	observability.RecordAdminOverride("confirm_order", nil)
	s.logger.Info("order manually confirmed",
		zap.String("admin_id", adminID),
		zap.String("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_status", string(order.PaymentStatus)),
	)
	return nil
}

// MarkOrderFulfilled records completed delivery for an order, reported by the
// fulfillment backend or by an operator after out-of-band delivery. The order
// must already be confirmed; fulfilled is final.
func (s *Service) MarkOrderFulfilled(ctx context.Context, actorID, orderID string) error {
	if actorID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "actor id is required")
	}

	id, err := uuid.Parse(orderID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed order id", err)
	}

	order, err := s.orders.GetByID(ctx, nil, id)
	if err != nil {
		observability.RecordAdminOverride("mark_fulfilled", err)
		return domain.WrapError(domain.ErrorCodeOrderNotFound, "order not found", err).
			WithDetail("order_id", orderID)
	}

	if err := transition.OrderFulfillmentStatus(order, models.FulfillmentStatusFulfilled); err != nil {
		observability.RecordAdminOverride("mark_fulfilled", err)
		return err
	}

	if err := s.orders.UpdateFulfillmentStatus(ctx, nil, id, models.FulfillmentStatusFulfilled); err != nil {
		dbErr := domain.WrapError(domain.ErrorCodeDatabaseError, "mark order fulfilled", err)
		observability.RecordAdminOverride("mark_fulfilled", dbErr)
		return dbErr
	}

	observability.RecordAdminOverride("mark_fulfilled", nil)
	s.logger.Info("order marked fulfilled",
		zap.String("actor_id", actorID),
		zap.String("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
	)
	return nil
}

// ApproveSubscription approves a pending vendor subscription, bypassing
// gateway verification entirely.
func (s *Service) ApproveSubscription(ctx context.Context, adminID, subscriptionID, note string) error {
	return s.settleSubscription(ctx, adminID, subscriptionID, note, models.SubscriptionStatusConfirmed, "approve_subscription")
}

// RejectSubscription rejects a pending vendor subscription.
func (s *Service) RejectSubscription(ctx context.Context, adminID, subscriptionID, note string) error {
	return s.settleSubscription(ctx, adminID, subscriptionID, note, models.SubscriptionStatusRejected, "reject_subscription")
}

func (s *Service) settleSubscription(ctx context.Context, adminID, subscriptionID, note string, status models.SubscriptionStatus, action string) error {
	if adminID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "admin id is required for overrides")
	}

	id, err := uuid.Parse(subscriptionID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "malformed subscription id", err)
	}

	sub, err := s.subscriptions.GetByID(ctx, nil, id)
	if err != nil {
		observability.RecordAdminOverride(action, err)
		return domain.WrapError(domain.ErrorCodeSubscriptionNotFound, "subscription not found", err).
			WithDetail("subscription_id", subscriptionID)
	}

	if sub.Status == status {
		observability.RecordAdminOverride(action, nil)
		return nil
	}
	if sub.Status != models.SubscriptionStatusPending {
		rejErr := domain.NewDomainError(domain.ErrorCodeInvalidTransition, "subscription is already settled").
			WithDetail("from", string(sub.Status)).
			WithDetail("to", string(status))
		observability.RecordAdminOverride(action, rejErr)
		return rejErr
	}

	if err := s.subscriptions.UpdateStatus(ctx, nil, id, status, &adminID, &note); err != nil {
		dbErr := domain.WrapError(domain.ErrorCodeDatabaseError, "update subscription", err)
		observability.RecordAdminOverride(action, dbErr)
		return dbErr
	}

	observability.RecordAdminOverride(action, nil)
	s.logger.Info("vendor subscription settled by admin",
		zap.String("admin_id", adminID),
		zap.String("subscription_id", subscriptionID),
		zap.String("vendor_id", sub.VendorID),
		zap.String("status", string(status)),
	)
	return nil
}
