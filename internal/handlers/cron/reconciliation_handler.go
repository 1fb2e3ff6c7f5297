package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/internal/services/reconciliation"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

// Reconciler runs one reconciliation pass; implemented by reconciliation.Service
type Reconciler interface {
	Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.RunResult, error)
}

// StaleCounter reports the reconciliation backlog; implemented by the order repository
type StaleCounter interface {
	CountStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time) (int64, error)
}

// RunLogLister lists recent run audit records; implemented by the log repository
type RunLogLister interface {
	ListRecent(ctx context.Context, db ports.DBTX, limit int32) ([]*models.AutoProcessLog, error)
}

// ReconciliationHandler handles cron job endpoints for payment reconciliation
type ReconciliationHandler struct {
	recon      Reconciler
	orders     StaleCounter
	logs       RunLogLister
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests

	defaultStaleness time.Duration
	defaultBatchSize int32
}

// NewReconciliationHandler creates a new reconciliation cron handler
func NewReconciliationHandler(
	recon Reconciler,
	orders StaleCounter,
	logs RunLogLister,
	logger *zap.Logger,
	cronSecret string,
	defaultStaleness time.Duration,
	defaultBatchSize int32,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		recon:            recon,
		orders:           orders,
		logs:             logs,
		logger:           logger,
		cronSecret:       cronSecret,
		defaultStaleness: defaultStaleness,
		defaultBatchSize: defaultBatchSize,
	}
}

// ReconcileRequest represents the request body for a reconciliation run
type ReconcileRequest struct {
	StalenessMinutes *int `json:"staleness_minutes"` // Optional: minimum order age, defaults to configured value
	BatchSize        *int `json:"batch_size"`        // Optional: defaults to configured value
}

// ReconcileResponse represents the response from a reconciliation run
type ReconcileResponse struct {
	Success     bool                  `json:"success"`
	RunID       string                `json:"run_id"`
	Processed   int                   `json:"processed"`
	Total       int                   `json:"total"`
	Unresolved  int                   `json:"unresolved"`
	Errors      []models.ProcessError `json:"errors,omitempty"`
	DurationMS  int64                 `json:"duration_ms"`
	ProcessedAt string                `json:"processed_at"`
}

// Reconcile handles the POST /cron/reconcile endpoint.
// This endpoint is called by Cloud Scheduler to settle orders whose payment
// outcome is stale. Overlapping invocations are rejected with 409.
func (h *ReconciliationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Reconciliation cron job triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Parse request body (optional parameters)
	var req ReconcileRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to parse request body",
				zap.Error(err),
			)
			// Continue with defaults if parsing fails
		}
	}

	staleness := h.defaultStaleness
	if req.StalenessMinutes != nil {
		if *req.StalenessMinutes < 1 || *req.StalenessMinutes > 10080 {
			h.respondError(w, http.StatusBadRequest, "staleness_minutes must be between 1 and 10080")
			return
		}
		staleness = time.Duration(*req.StalenessMinutes) * time.Minute
	}

	batchSize := h.defaultBatchSize
	if req.BatchSize != nil {
		if *req.BatchSize < 1 || *req.BatchSize > 1000 {
			h.respondError(w, http.StatusBadRequest, "batch_size must be between 1 and 1000")
			return
		}
		batchSize = int32(*req.BatchSize)
	}

	result, err := h.recon.Run(r.Context(), reconciliation.RunOptions{
		Staleness:   staleness,
		BatchSize:   batchSize,
		TriggeredBy: "scheduler",
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeRunInProgress) {
			h.respondError(w, http.StatusConflict, "a reconciliation run is already in progress")
			return
		}
		h.logger.Error("Reconciliation run failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "reconciliation run failed")
		return
	}

	resp := ReconcileResponse{
		Success:     len(result.Errors) == 0,
		RunID:       result.RunID,
		Processed:   result.Processed,
		Total:       result.Total,
		Unresolved:  result.Unresolved,
		Errors:      result.Errors,
		DurationMS:  result.Duration.Milliseconds(),
		ProcessedAt: timeutil.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent) // 206 indicates partial success
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Stats handles GET /cron/reconcile/stats for monitoring the backlog
func (h *ReconciliationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.authenticateRequest(r) {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := r.Context()

	var stats struct {
		EligibleNow int64 `json:"eligible_now"` // Stale pending orders eligible for the next run
		RecentRuns  int   `json:"recent_runs"`
	}

	cutoff := timeutil.Now().Add(-h.defaultStaleness)
	eligible, err := h.orders.CountStalePendingPayment(ctx, nil, cutoff)
	if err != nil {
		h.logger.Error("Failed to count stale pending orders", zap.Error(err))
	} else {
		stats.EligibleNow = eligible
	}

	runs, err := h.logs.ListRecent(ctx, nil, 10)
	if err != nil {
		h.logger.Error("Failed to list recent runs", zap.Error(err))
	} else {
		stats.RecentRuns = len(runs)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]interface{}{
		"success":   true,
		"stats":     stats,
		"runs":      runs,
		"timestamp": timeutil.Now().Format(time.RFC3339),
	}

	json.NewEncoder(w).Encode(resp)
}

// HealthCheck handles GET /cron/reconcile/health for monitoring
func (h *ReconciliationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]interface{}{
		"status": "healthy",
		"time":   timeutil.Now().Format(time.RFC3339),
	}

	json.NewEncoder(w).Encode(resp)
}

// authenticateRequest verifies the cron request is authorized
func (h *ReconciliationHandler) authenticateRequest(r *http.Request) bool {
	// Check X-Cron-Secret header
	cronSecret := r.Header.Get("X-Cron-Secret")
	if cronSecret != "" && cronSecret == h.cronSecret {
		return true
	}

	// Check Authorization header (Bearer token)
	authHeader := r.Header.Get("Authorization")
	if authHeader == "Bearer "+h.cronSecret {
		return true
	}

	return false
}

// respondError sends an error response
func (h *ReconciliationHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
