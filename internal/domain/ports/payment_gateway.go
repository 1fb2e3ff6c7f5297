package ports

import (
	"context"

	"github.com/dkoffi/marketplace-payments/internal/domain/models"
)

// VerificationResult represents the gateway's view of one payment attempt.
// Once the gateway has settled, repeated verification of the same
// transaction returns a consistent terminal result.
type VerificationResult struct {
	Success bool
	Status  models.TransactionStatus
	Message string
}

// PaymentVerifier queries the payment gateway for a transaction's current status
type PaymentVerifier interface {
	// Verify returns the gateway's current status for the transaction.
	// A network or gateway availability failure is returned as an error;
	// a settled-but-failed payment is a successful call with Success=false.
	Verify(ctx context.Context, transactionID string) (*VerificationResult, error)
}

// Fulfiller triggers digital delivery and downstream side effects for a
// confirmed, paid order. The effects themselves (delivery, vendor balance
// updates, notifications) happen outside this service.
type Fulfiller interface {
	Process(ctx context.Context, order *models.Order) error
}

// RunLocker provides mutual exclusion for reconciliation runs. Two runs must
// never process the same order set concurrently.
type RunLocker interface {
	// TryAcquire attempts to take the run lock without blocking.
	// On success it returns a release function and true.
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}
