package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Transition Errors (TRANSITION_*)
	ErrorCodePaymentNotConfirmed       ErrorCode = "TRANSITION_PAYMENT_NOT_CONFIRMED"
	ErrorCodeTerminalRegression        ErrorCode = "TRANSITION_TERMINAL_REGRESSION"
	ErrorCodeFulfillBeforeConfirmation ErrorCode = "TRANSITION_FULFILLMENT_BEFORE_CONFIRMATION"
	ErrorCodeFulfilledNotCancellable   ErrorCode = "TRANSITION_FULFILLED_NOT_CANCELLABLE"
	ErrorCodeInvalidTransition         ErrorCode = "TRANSITION_INVALID"

	// Lookup Errors (*_NOT_FOUND)
	ErrorCodeOrderNotFound        ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeTxnNotFound          ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeSubscriptionNotFound ErrorCode = "SUBSCRIPTION_NOT_FOUND"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayUnreachable     ErrorCode = "GATEWAY_UNREACHABLE"
	ErrorCodeGatewayReportedFailure ErrorCode = "GATEWAY_REPORTED_FAILURE"
	ErrorCodeGatewayInvalidResponse ErrorCode = "GATEWAY_INVALID_RESPONSE"

	// Data Integrity Errors (INTEGRITY_*)
	ErrorCodeIntegrityGap ErrorCode = "INTEGRITY_GAP"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Reconciliation Errors (RECON_*)
	ErrorCodeRunInProgress ErrorCode = "RECON_RUN_IN_PROGRESS"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsTransitionRejected checks if an error is a transition validator rejection
func IsTransitionRejected(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePaymentNotConfirmed ||
		code == ErrorCodeTerminalRegression ||
		code == ErrorCodeFulfillBeforeConfirmation ||
		code == ErrorCodeFulfilledNotCancellable ||
		code == ErrorCodeInvalidTransition
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeOrderNotFound ||
		code == ErrorCodeTxnNotFound ||
		code == ErrorCodeSubscriptionNotFound
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayUnreachable ||
		code == ErrorCodeGatewayReportedFailure ||
		code == ErrorCodeGatewayInvalidResponse
}

// Structured error instances
var (
	ErrOrderNotFound        = NewDomainError(ErrorCodeOrderNotFound, "order not found")
	ErrTxnNotFound          = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrSubscriptionNotFound = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")

	ErrGatewayUnreachable     = NewDomainError(ErrorCodeGatewayUnreachable, "payment gateway unreachable")
	ErrGatewayInvalidResponse = NewDomainError(ErrorCodeGatewayInvalidResponse, "invalid gateway response")

	ErrRunInProgress = NewDomainError(ErrorCodeRunInProgress, "a reconciliation run is already in progress")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
