package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/internal/services/reconciliation"
	"github.com/dkoffi/marketplace-payments/internal/services/recovery"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

// RecoveryService exposes the admin override commands; implemented by recovery.Service
type RecoveryService interface {
	ForceTransactionSuccess(ctx context.Context, adminID, transactionID, note string) (*recovery.ForceResult, error)
	ConfirmOrder(ctx context.Context, adminID, orderID string) error
	MarkOrderFulfilled(ctx context.Context, actorID, orderID string) error
	ApproveSubscription(ctx context.Context, adminID, subscriptionID, note string) error
	RejectSubscription(ctx context.Context, adminID, subscriptionID, note string) error
}

// Reconciler runs one reconciliation pass; implemented by reconciliation.Service
type Reconciler interface {
	Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.RunResult, error)
}

// RunLogLister lists recent run audit records; implemented by the log repository
type RunLogLister interface {
	ListRecent(ctx context.Context, db ports.DBTX, limit int32) ([]*models.AutoProcessLog, error)
}

// RecoveryHandler handles admin endpoints for manual payment recovery
type RecoveryHandler struct {
	recovery    RecoveryService
	recon       Reconciler
	logs        RunLogLister
	validate    *validator.Validate
	logger      *zap.Logger
	adminSecret string // Secret token for authenticating admin requests
}

// NewRecoveryHandler creates a new admin recovery handler
func NewRecoveryHandler(
	recoverySvc RecoveryService,
	recon Reconciler,
	logs RunLogLister,
	logger *zap.Logger,
	adminSecret string,
) *RecoveryHandler {
	return &RecoveryHandler{
		recovery:    recoverySvc,
		recon:       recon,
		logs:        logs,
		validate:    validator.New(),
		logger:      logger,
		adminSecret: adminSecret,
	}
}

// ForceSuccessRequest represents the request body for forcing a transaction to success
type ForceSuccessRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	Note          string `json:"note" validate:"required,min=4"`
}

// ConfirmOrderRequest represents the request body for manual order confirmation
type ConfirmOrderRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid4"`
}

// SubscriptionActionRequest represents the request body for subscription approval/rejection
type SubscriptionActionRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid4"`
	Note           string `json:"note"`
}

// ForceSuccess handles POST /admin/transactions/force-success.
// Used when the gateway dashboard shows a payment as settled but the local
// transaction never left a transitional state.
func (h *RecoveryHandler) ForceSuccess(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req ForceSuccessRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.recovery.ForceTransactionSuccess(r.Context(), adminID, req.TransactionID, req.Note)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"transaction_id": result.TransactionID,
		"order_id":       result.OrderID,
		"changed":        result.Changed,
	})
}

// ConfirmOrder handles POST /admin/orders/confirm
func (h *RecoveryHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req ConfirmOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.recovery.ConfirmOrder(r.Context(), adminID, req.OrderID); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"order_id": req.OrderID,
	})
}

// MarkOrderFulfilled handles POST /admin/orders/fulfill. Called by the
// fulfillment backend's callback, or by an operator when delivery happened
// out of band.
func (h *RecoveryHandler) MarkOrderFulfilled(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req ConfirmOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.recovery.MarkOrderFulfilled(r.Context(), adminID, req.OrderID); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"order_id": req.OrderID,
	})
}

// ApproveSubscription handles POST /admin/subscriptions/approve
func (h *RecoveryHandler) ApproveSubscription(w http.ResponseWriter, r *http.Request) {
	h.settleSubscription(w, r, h.recovery.ApproveSubscription)
}

// RejectSubscription handles POST /admin/subscriptions/reject
func (h *RecoveryHandler) RejectSubscription(w http.ResponseWriter, r *http.Request) {
	h.settleSubscription(w, r, h.recovery.RejectSubscription)
}

func (h *RecoveryHandler) settleSubscription(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, adminID, subscriptionID, note string) error) {
	adminID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req SubscriptionActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := action(r.Context(), adminID, req.SubscriptionID, req.Note); err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"subscription_id": req.SubscriptionID,
	})
}

// TriggerReconciliation handles POST /admin/reconcile for on-demand runs
func (h *RecoveryHandler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	result, err := h.recon.Run(r.Context(), reconciliation.RunOptions{
		Manual:      true,
		TriggeredBy: adminID,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusPartialContent
	}
	h.respondJSON(w, status, map[string]interface{}{
		"success":     len(result.Errors) == 0,
		"run_id":      result.RunID,
		"processed":   result.Processed,
		"total":       result.Total,
		"unresolved":  result.Unresolved,
		"errors":      result.Errors,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

// ListRuns handles GET /admin/reconcile/logs
func (h *RecoveryHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}

	runs, err := h.logs.ListRecent(r.Context(), nil, 50)
	if err != nil {
		h.logger.Error("Failed to list reconciliation runs", zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "failed to list runs",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"runs":      runs,
		"timestamp": timeutil.Now().Format(time.RFC3339),
	})
}

// authorize authenticates the request and extracts the acting admin identity.
// Every override must be attributable, so a missing X-Admin-ID is rejected.
func (h *RecoveryHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	secret := r.Header.Get("X-Admin-Secret")
	if secret == "" || secret != h.adminSecret {
		h.logger.Warn("Unauthorized admin request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("path", r.URL.Path),
		)
		h.respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   "unauthorized",
		})
		return "", false
	}

	adminID := r.Header.Get("X-Admin-ID")
	if adminID == "" {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "X-Admin-ID header is required",
		})
		return "", false
	}
	return adminID, true
}

func (h *RecoveryHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

// respondDomainError maps domain error codes onto HTTP status codes, passing
// the code, message and details through to the caller verbatim.
func (h *RecoveryHandler) respondDomainError(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)

	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFoundError(err):
		status = http.StatusNotFound
	case code == domain.ErrorCodeValidationFailed:
		status = http.StatusBadRequest
	case domain.IsTransitionRejected(err):
		status = http.StatusConflict
	case code == domain.ErrorCodeRunInProgress:
		status = http.StatusConflict
	case code == domain.ErrorCodeIntegrityGap:
		status = http.StatusConflict
	case domain.IsGatewayError(err):
		status = http.StatusBadGateway
	}

	body := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		body["code"] = string(domainErr.Code)
		body["message"] = domainErr.Message
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
	}

	h.respondJSON(w, status, body)
}

func (h *RecoveryHandler) respondJSON(w http.ResponseWriter, statusCode int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
