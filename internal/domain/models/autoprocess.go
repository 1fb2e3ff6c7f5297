package models

import "time"

// RunTrigger identifies what started a reconciliation run
type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerManual    RunTrigger = "manual"
)

// ProcessError records a single candidate's failure within a run
type ProcessError struct {
	OrderID string `json:"order_id"`
	Kind    string `json:"kind"` // Error code, e.g. GATEWAY_UNREACHABLE
	Message string `json:"message"`
}

// AutoProcessLog is an append-only audit record of one reconciliation run.
// Created once per run, never mutated or deleted.
type AutoProcessLog struct {
	ID              string
	Trigger         RunTrigger
	TriggeredBy     string // Admin ID for manual runs, "scheduler" otherwise
	ProcessedOrders int
	TotalOrders     int
	Unresolved      int
	ExecutionTime   time.Duration
	Errors          []ProcessError
	CreatedAt       time.Time
}
