package razorpay

import (
	"context"
	"errors"
	"fmt"
)

// ErrGatewayTimeout means the gateway did not answer in time, or answered in a
// way that does not say whether the call took effect. The outcome is unknown
// and must be settled through webhooks.
var ErrGatewayTimeout = errors.New("payment gateway timed out")

// GatewayError is a definitive failure reported by the gateway.
type GatewayError struct {
	Op     string
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("razorpay %s failed: %s", e.Op, e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type RefundRequest struct {
	PaymentID string
	Amount    int64
	Notes     map[string]string
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Gateway is the slice of the payment provider the purchase workflow uses.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
}
