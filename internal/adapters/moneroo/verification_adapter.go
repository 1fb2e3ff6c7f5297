package moneroo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	adapterports "github.com/dkoffi/marketplace-payments/internal/adapters/ports"
	"github.com/dkoffi/marketplace-payments/internal/domain"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/pkg/resilience"
)

// VerificationConfig contains configuration for the Moneroo verification adapter
type VerificationConfig struct {
	BaseURL          string // e.g., "https://api.moneroo.io"
	APIKey           string
	Timeout          time.Duration
	MaxAttempts      int           // verification attempts per call, retried on transient failures
	BreakerThreshold int           // consecutive unreachable calls before the circuit opens
	BreakerCooldown  time.Duration // how long the circuit stays open
}

// DefaultVerificationConfig returns default configuration
func DefaultVerificationConfig(apiKey string) *VerificationConfig {
	return &VerificationConfig{
		BaseURL:          "https://api.moneroo.io",
		APIKey:           apiKey,
		Timeout:          30 * time.Second,
		MaxAttempts:      3,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// verificationAdapter implements the PaymentVerifier port against the Moneroo API
type verificationAdapter struct {
	config     *VerificationConfig
	httpClient adapterports.HTTPClient
	backoff    resilience.BackoffStrategy
	breaker    *resilience.CircuitBreaker
	logger     *zap.Logger
}

// NewVerificationAdapter creates a new Moneroo verification adapter
func NewVerificationAdapter(
	config *VerificationConfig,
	httpClient adapterports.HTTPClient,
	logger *zap.Logger,
) ports.PaymentVerifier {
	return &verificationAdapter{
		config:     config,
		httpClient: httpClient,
		backoff:    resilience.GatewayBackoff(),
		breaker:    resilience.NewCircuitBreaker(config.BreakerThreshold, config.BreakerCooldown),
		logger:     logger,
	}
}

// Moneroo API response structure
type monerooVerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID       string  `json:"id"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"data"`
}

// transientError marks a failure worth retrying within a single Verify call
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Verify queries Moneroo for the current status of a payment.
// Network failures and 5xx responses are retried with backoff before being
// reported as a gateway availability failure. Repeated availability failures
// open a circuit breaker so a down gateway fails fast instead of making the
// whole batch wait out retries.
func (a *verificationAdapter) Verify(ctx context.Context, transactionID string) (*ports.VerificationResult, error) {
	var result *ports.VerificationResult
	var permanentErr error

	err := a.breaker.Do(func() error {
		return resilience.Retry(ctx, a.config.MaxAttempts, a.backoff, func(ctx context.Context) error {
			r, err := a.verifyOnce(ctx, transactionID)
			if err != nil {
				var te *transientError
				if errors.As(err, &te) {
					return err
				}
				// Malformed or unexpected responses will not improve on retry
				permanentErr = err
				return nil
			}
			result = r
			return nil
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnreachable, "payment gateway circuit is open", err)
	}
	if err != nil {
		a.logger.Error("Moneroo verification unreachable after retries",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnreachable, "payment gateway is unreachable", err)
	}
	if permanentErr != nil {
		return nil, permanentErr
	}
	return result, nil
}

func (a *verificationAdapter) verifyOnce(ctx context.Context, transactionID string) (*ports.VerificationResult, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s/verify", a.config.BaseURL, transactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	startTime := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transientError{fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{fmt.Errorf("failed to read response body: %w", err)}
	}

	a.logger.Debug("Moneroo verify response",
		zap.String("transaction_id", transactionID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("elapsed", time.Since(startTime).String()),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &transientError{fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewDomainError(domain.ErrorCodeTxnNotFound, "transaction not found at gateway").
			WithDetail("transaction_id", transactionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("gateway returned status %d", resp.StatusCode),
			fmt.Errorf("body: %s", string(body)))
	}

	var verifyResp monerooVerifyResponse
	if err := json.Unmarshal(body, &verifyResp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "failed to parse gateway response", err)
	}

	status, ok := mapGatewayStatus(verifyResp.Data.Status)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayInvalidResponse,
			fmt.Sprintf("gateway reported unknown status %q", verifyResp.Data.Status))
	}

	return &ports.VerificationResult{
		Success: status == models.TransactionStatusSuccess,
		Status:  status,
		Message: verifyResp.Message,
	}, nil
}

// mapGatewayStatus translates Moneroo payment statuses into transaction statuses
func mapGatewayStatus(s string) (models.TransactionStatus, bool) {
	switch s {
	case "success", "paid":
		return models.TransactionStatusSuccess, true
	case "failed":
		return models.TransactionStatusFailed, true
	case "cancelled":
		return models.TransactionStatusCancelled, true
	case "pending":
		return models.TransactionStatusPending, true
	case "initiated":
		return models.TransactionStatusInitiated, true
	default:
		return "", false
	}
}
