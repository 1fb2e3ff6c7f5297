package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the current state of a vendor subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusConfirmed SubscriptionStatus = "confirmed"
	SubscriptionStatusRejected  SubscriptionStatus = "rejected"
)

// VendorSubscription represents a vendor's paid plan subscription.
// Approval happens either through the gateway confirmation path or by
// direct admin action, which bypasses gateway verification.
type VendorSubscription struct {
	ID            string
	VendorID      string
	PlanName      string
	Amount        decimal.Decimal
	Currency      string
	Status        SubscriptionStatus
	ReferenceCode string
	ApprovedBy    string // Admin ID when approved manually, empty otherwise
	ApprovalNote  string
	ApprovedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
