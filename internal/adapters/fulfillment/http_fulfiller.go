package fulfillment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	adapterports "github.com/dkoffi/marketplace-payments/internal/adapters/ports"
	"github.com/dkoffi/marketplace-payments/internal/domain/models"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

// Config contains configuration for the HTTP fulfillment adapter
type Config struct {
	// Endpoint of the order processing function that performs digital
	// delivery, vendor balance updates and notifications
	Endpoint string

	// Secret used to sign request payloads
	Secret string

	Timeout time.Duration
}

// httpFulfiller implements the Fulfiller port by invoking the external
// order processing function over HTTP
type httpFulfiller struct {
	config     *Config
	httpClient adapterports.HTTPClient
	logger     *zap.Logger
}

// NewHTTPFulfiller creates a new HTTP fulfillment adapter
func NewHTTPFulfiller(config *Config, httpClient adapterports.HTTPClient, logger *zap.Logger) ports.Fulfiller {
	return &httpFulfiller{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

type fulfillmentRequest struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	ReferenceCode string `json:"reference_code"`
	CustomerID    string `json:"customer_id"`
	TotalAmount   string `json:"total_amount"`
	Currency      string `json:"currency"`
}

// Process triggers downstream fulfillment for a confirmed, paid order
func (f *httpFulfiller) Process(ctx context.Context, order *models.Order) error {
	payload, err := json.Marshal(fulfillmentRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		ReferenceCode: order.ReferenceCode,
		CustomerID:    order.CustomerID,
		TotalAmount:   order.TotalAmount.String(),
		Currency:      order.Currency,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal fulfillment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fulfillment-Signature", f.generateSignature(payload))
	req.Header.Set("X-Fulfillment-Timestamp", timeutil.Now().Format(time.RFC3339))

	startTime := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("Fulfillment request failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return fmt.Errorf("fulfillment request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	f.logger.Info("Fulfillment response",
		zap.String("order_id", order.ID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("elapsed", time.Since(startTime).String()),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fulfillment returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// generateSignature creates an HMAC-SHA256 signature of the payload
func (f *httpFulfiller) generateSignature(payload []byte) string {
	h := hmac.New(sha256.New, []byte(f.config.Secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
