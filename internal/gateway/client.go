// Package gateway wraps the hosted payment provider: it issues signed orders
// and verifies payment confirmations. The card-network side is opaque; the
// engine only relies on the order/verify contract.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicdesk/booking-engine/pkg/logging"
)

// ErrUnavailable wraps downstream provider failures (502-equivalent).
var ErrUnavailable = errors.New("gateway: provider unavailable")

// Order is the gateway-issued payment order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client is the payment-gateway collaborator contract.
type Client interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// HTTPClient talks to the hosted gateway's REST API with a bounded timeout.
type HTTPClient struct {
	baseURL string
	keyID   string
	secret  string
	http    *http.Client
	logger  *logging.Logger
}

// NewHTTPClient creates a gateway client. The timeout bounds every order
// request; on timeout the checkout stays PENDING and the expiry sweep cleans
// it up.
func NewHTTPClient(baseURL, keyID, secret string, timeout time.Duration, logger *logging.Logger) *HTTPClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		keyID:   keyID,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder requests a signed order from the provider.
func (c *HTTPClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gateway order request rejected",
			"status", resp.StatusCode,
			"receipt", receipt,
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(payload, 256))
	}

	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, fmt.Errorf("gateway: decode order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("gateway: order response missing id")
	}
	return &order, nil
}

// VerifySignature checks the provider's HMAC over (orderID, paymentID).
func (c *HTTPClient) VerifySignature(orderID, paymentID, signature string) bool {
	return verifySignature(c.secret, orderID, paymentID, signature)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
