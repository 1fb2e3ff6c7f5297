package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the current state of a gateway transaction
type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "initiated"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSuccess   TransactionStatus = "success"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition is expected
// from this status. Terminal statuses only change via an admin override.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess ||
		s == TransactionStatusFailed ||
		s == TransactionStatusCancelled
}

// GatewayTransaction is a gateway-side record of one payment attempt,
// correlated to an Order via ReferenceCode.
type GatewayTransaction struct {
	ID              string
	TransactionID   string // Gateway-assigned identifier
	ReferenceCode   string // Matches Order.ReferenceCode
	OrderID         string
	Gateway         string // Gateway name (e.g. "moneroo")
	Amount          decimal.Decimal
	Currency        string
	Status          TransactionStatus
	GatewayResponse string // Last raw status message reported by the gateway
	OverriddenBy    string // Admin ID when the status was forced, empty otherwise
	OverrideNote    string
	OverriddenAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
