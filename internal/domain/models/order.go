package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the commercial state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus represents the financial state of an order
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// FulfillmentStatus represents the delivery state of an order
type FulfillmentStatus string

const (
	FulfillmentStatusPending   FulfillmentStatus = "pending"
	FulfillmentStatusFulfilled FulfillmentStatus = "fulfilled"
	FulfillmentStatusCancelled FulfillmentStatus = "cancelled"
)

// Order represents a customer's purchase, tracked independently along
// commercial (Status), financial (PaymentStatus), and delivery
// (FulfillmentStatus) axes.
type Order struct {
	ID                string
	OrderNumber       string // Human-readable, unique (e.g. ORD-20260829-4F2A1C)
	ReferenceCode     string // Customer-facing tracking code, also the gateway correlation key
	CustomerID        string
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	ShippingAmount    decimal.Decimal
	DiscountAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	Currency          string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	ConfirmedBy       string // Admin ID when confirmation was a manual override, empty otherwise
	ConfirmationNote  string
	ConfirmedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem is a denormalized snapshot of a product at time of purchase.
// Immutable after creation; never mutated when the live product changes.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	VendorID    string
	Price       decimal.Decimal
	Quantity    int32
	Total       decimal.Decimal
	CreatedAt   time.Time
}
