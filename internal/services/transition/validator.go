package transition

import (
	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
)

// This package is the single authority on status transitions. Callers decide
// WHY a change should happen; these functions decide only whether it MAY.
// They are pure: persisting an allowed change is the caller's responsibility.
//
// Re-proposing the current value is always an allowed no-op, so retried
// webhooks and repeated admin clicks converge instead of erroring.

// Transaction validates a proposed gateway transaction status change.
// Terminal statuses (success, failed, cancelled) never regress to a
// transitional status. Moving between two different terminal statuses
// requires the override capability, which only admin recovery tooling sets.
func Transaction(current, proposed models.TransactionStatus, override bool) error {
	if current == proposed {
		return nil
	}

	if current.IsTerminal() {
		if !proposed.IsTerminal() {
			// A completed payment can never become pending again,
			// not even by override.
			return reject(domain.ErrorCodeTerminalRegression,
				"terminal transaction status cannot regress to a transitional status",
				string(current), string(proposed))
		}
		if !override {
			return reject(domain.ErrorCodeTerminalRegression,
				"terminal transaction status can only change via admin override",
				string(current), string(proposed))
		}
		return nil
	}

	// Transitional to transitional (initiated -> pending) or to terminal
	return nil
}

// OrderStatus validates a proposed change to Order.Status. The order's other
// status axes participate: confirmation requires payment, and a fulfilled
// order is not silently cancellable.
func OrderStatus(order *models.Order, proposed models.OrderStatus, override bool) error {
	current := order.Status
	if current == proposed {
		return nil
	}

	if proposed == models.OrderStatusCancelled {
		if order.FulfillmentStatus == models.FulfillmentStatusFulfilled {
			// Cancelling a fulfilled order needs reversal logic that does
			// not exist here, so this holds even for overrides.
			return reject(domain.ErrorCodeFulfilledNotCancellable,
				"a fulfilled order cannot be cancelled",
				string(current), string(proposed))
		}
		return nil
	}

	switch {
	case current == models.OrderStatusPending && proposed == models.OrderStatusConfirmed:
		if order.PaymentStatus != models.PaymentStatusPaid && !override {
			return reject(domain.ErrorCodePaymentNotConfirmed,
				"order cannot be confirmed before payment is confirmed",
				string(current), string(proposed))
		}
		return nil

	case current == models.OrderStatusConfirmed && proposed == models.OrderStatusCompleted:
		return nil

	default:
		return reject(domain.ErrorCodeInvalidTransition,
			"order status transition is not allowed",
			string(current), string(proposed))
	}
}

// OrderPaymentStatus validates a proposed change to Order.PaymentStatus.
// paid and failed are settled outcomes: they swap only via admin override
// and never regress to pending.
func OrderPaymentStatus(current, proposed models.PaymentStatus, override bool) error {
	if current == proposed {
		return nil
	}

	if current == models.PaymentStatusPending {
		return nil
	}

	if proposed == models.PaymentStatusPending {
		return reject(domain.ErrorCodeTerminalRegression,
			"settled payment status cannot regress to pending",
			string(current), string(proposed))
	}

	if !override {
		return reject(domain.ErrorCodeTerminalRegression,
			"settled payment status can only change via admin override",
			string(current), string(proposed))
	}
	return nil
}

// OrderFulfillmentStatus validates a proposed change to
// Order.FulfillmentStatus. Fulfillment only happens after the order is
// confirmed or completed, and fulfilled/cancelled are final.
func OrderFulfillmentStatus(order *models.Order, proposed models.FulfillmentStatus) error {
	current := order.FulfillmentStatus
	if current == proposed {
		return nil
	}

	if current != models.FulfillmentStatusPending {
		return reject(domain.ErrorCodeInvalidTransition,
			"fulfillment status is final",
			string(current), string(proposed))
	}

	if proposed == models.FulfillmentStatusFulfilled {
		if order.Status != models.OrderStatusConfirmed && order.Status != models.OrderStatusCompleted {
			return reject(domain.ErrorCodeFulfillBeforeConfirmation,
				"order must be confirmed before fulfillment",
				string(current), string(proposed))
		}
	}
	return nil
}

func reject(code domain.ErrorCode, message, from, to string) error {
	return domain.NewDomainError(code, message).
		WithDetail("from", from).
		WithDetail("to", to)
}
