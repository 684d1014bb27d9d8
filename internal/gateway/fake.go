package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FakeClient is a dev/test gateway that issues orders in memory. It MUST be
// gated by configuration (ALLOW_FAKE_GATEWAY) and never enabled in
// production.
type FakeClient struct {
	secret string

	mu     sync.Mutex
	orders map[string]*Order
	calls  int
}

// NewFakeClient creates a fake gateway signing with the given secret.
func NewFakeClient(secret string) *FakeClient {
	return &FakeClient{
		secret: secret,
		orders: make(map[string]*Order),
	}
}

// CreateOrder issues a new in-memory order.
func (f *FakeClient) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order := &Order{
		ID:       "order_" + uuid.NewString(),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	f.orders[order.ID] = order
	f.calls++
	return order, nil
}

// VerifySignature checks against the fake's secret.
func (f *FakeClient) VerifySignature(orderID, paymentID, signature string) bool {
	return verifySignature(f.secret, orderID, paymentID, signature)
}

// Sign produces a valid confirmation signature, for tests and the dev flow.
func (f *FakeClient) Sign(orderID, paymentID string) string {
	return Sign(f.secret, orderID, paymentID)
}

// OrderCount reports how many orders were issued.
func (f *FakeClient) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
