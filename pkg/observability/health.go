package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

// HealthStatus is the JSON body served on the health endpoint
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker reports whether the service can do useful work. The database
// is the only hard dependency: reconciliation runs, admin overrides, and the
// run audit log are all database-bound. The payment gateway is deliberately
// not a health check — its availability fluctuates per run and is surfaced
// through run results and metrics instead of flapping liveness.
type HealthChecker struct {
	dbPool *pgxpool.Pool
}

// NewHealthChecker creates a health checker over the shared connection pool
func NewHealthChecker(dbPool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{
		dbPool: dbPool,
	}
}

// Check pings the database and reports overall status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	if h.dbPool != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.dbPool.Ping(dbCtx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: timeutil.Now(),
		Checks:    checks,
	}
}

// HealthHandler serves the health status, 503 when any check fails
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	}
}
