package cron

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/internal/services/reconciliation"
)

const testCronSecret = "cron-secret"

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.RunResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.RunResult), args.Error(1)
}

type mockStaleCounter struct {
	mock.Mock
}

func (m *mockStaleCounter) CountStalePendingPayment(ctx context.Context, db ports.DBTX, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, db, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockRunLogLister struct {
	mock.Mock
}

func (m *mockRunLogLister) ListRecent(ctx context.Context, db ports.DBTX, limit int32) ([]*models.AutoProcessLog, error) {
	args := m.Called(ctx, db, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AutoProcessLog), args.Error(1)
}

func setupHandler() (*ReconciliationHandler, *mockReconciler, *mockStaleCounter, *mockRunLogLister) {
	recon := new(mockReconciler)
	orders := new(mockStaleCounter)
	logs := new(mockRunLogLister)
	h := NewReconciliationHandler(recon, orders, logs, zap.NewNop(), testCronSecret, time.Hour, 100)
	return h, recon, orders, logs
}

func cronRequest(method string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, "/cron/reconcile", &buf)
	if body != nil {
		req.ContentLength = int64(buf.Len())
	}
	req.Header.Set("X-Cron-Secret", testCronSecret)
	return req
}

func TestReconcile_CleanRun(t *testing.T) {
	h, recon, _, _ := setupHandler()

	recon.On("Run", mock.Anything, mock.MatchedBy(func(opts reconciliation.RunOptions) bool {
		return !opts.Manual && opts.TriggeredBy == "scheduler" &&
			opts.Staleness == time.Hour && opts.BatchSize == 100
	})).Return(&reconciliation.RunResult{RunID: "run-1", Processed: 4, Total: 4}, nil)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodPost, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.Processed)
	recon.AssertExpectations(t)
}

func TestReconcile_PartialFailureReturns206(t *testing.T) {
	h, recon, _, _ := setupHandler()

	recon.On("Run", mock.Anything, mock.Anything).Return(&reconciliation.RunResult{
		RunID:     "run-2",
		Processed: 3,
		Total:     5,
		Errors: []models.ProcessError{
			{OrderID: "o1", Kind: "GATEWAY_UNREACHABLE", Message: "timeout"},
		},
	}, nil)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodPost, nil))

	require.Equal(t, http.StatusPartialContent, rec.Code)

	var resp ReconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Len(t, resp.Errors, 1)
}

func TestReconcile_OverridesFromBody(t *testing.T) {
	h, recon, _, _ := setupHandler()

	staleness := 30
	batch := 10
	recon.On("Run", mock.Anything, mock.MatchedBy(func(opts reconciliation.RunOptions) bool {
		return opts.Staleness == 30*time.Minute && opts.BatchSize == 10
	})).Return(&reconciliation.RunResult{RunID: "run-3"}, nil)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodPost, ReconcileRequest{
		StalenessMinutes: &staleness,
		BatchSize:        &batch,
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	recon.AssertExpectations(t)
}

func TestReconcile_RejectsOutOfRangeBatchSize(t *testing.T) {
	h, recon, _, _ := setupHandler()

	batch := 5000
	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodPost, ReconcileRequest{BatchSize: &batch}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	recon.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestReconcile_ConflictWhenRunInProgress(t *testing.T) {
	h, recon, _, _ := setupHandler()

	recon.On("Run", mock.Anything, mock.Anything).Return(nil, domain.ErrRunInProgress)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodPost, nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReconcile_Unauthorized(t *testing.T) {
	h, recon, _, _ := setupHandler()

	req := cronRequest(http.MethodPost, nil)
	req.Header.Set("X-Cron-Secret", "wrong")

	rec := httptest.NewRecorder()
	h.Reconcile(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	recon.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestReconcile_BearerTokenAccepted(t *testing.T) {
	h, recon, _, _ := setupHandler()

	recon.On("Run", mock.Anything, mock.Anything).Return(&reconciliation.RunResult{RunID: "run-4"}, nil)

	req := cronRequest(http.MethodPost, nil)
	req.Header.Del("X-Cron-Secret")
	req.Header.Set("Authorization", "Bearer "+testCronSecret)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReconcile_MethodNotAllowed(t *testing.T) {
	h, _, _, _ := setupHandler()

	rec := httptest.NewRecorder()
	h.Reconcile(rec, cronRequest(http.MethodGet, nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStats(t *testing.T) {
	h, _, orders, logs := setupHandler()

	orders.On("CountStalePendingPayment", mock.Anything, nil, mock.Anything).Return(int64(7), nil)
	logs.On("ListRecent", mock.Anything, nil, int32(10)).
		Return([]*models.AutoProcessLog{{ID: "run-1"}, {ID: "run-2"}}, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, cronRequest(http.MethodGet, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	stats := resp["stats"].(map[string]interface{})
	assert.Equal(t, float64(7), stats["eligible_now"])
	assert.Equal(t, float64(2), stats["recent_runs"])
}

func TestHealthCheck(t *testing.T) {
	h, _, _, _ := setupHandler()

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/cron/reconcile/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
