package razorpay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentRefunded = "payment.refunded"
	EventRefundProcessed = "refund.processed"
	EventRefundFailed    = "refund.failed"
)

// Notes is the free-form key/value bag attached to orders, payments and
// refunds. The API sends an empty array instead of an empty object and may
// send numbers as values, so decoding is lenient.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || data[0] == '[' {
		*n = Notes{}
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Notes, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*n = out
	return nil
}

// Uint reads a numeric note such as a course or student id
func (n Notes) Uint(key string) (uint, bool) {
	v, ok := n[key]
	if !ok || v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

type PaymentEntity struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Notes          Notes  `json:"notes"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	Notes     Notes  `json:"notes"`
}

// WebhookEvent is the envelope of a gateway callback
type WebhookEvent struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment,omitempty"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund,omitempty"`
	} `json:"payload"`
}

// ParseWebhookEvent decodes an already verified webhook body
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("decode webhook event: missing event type")
	}
	return &evt, nil
}

func (e *WebhookEvent) Payment() *PaymentEntity {
	if e.Payload.Payment == nil {
		return nil
	}
	return &e.Payload.Payment.Entity
}

func (e *WebhookEvent) Refund() *RefundEntity {
	if e.Payload.Refund == nil {
		return nil
	}
	return &e.Payload.Refund.Entity
}

// DedupKey identifies the delivery when the gateway did not send an event id
// header: the event type plus the id of the entity it is about.
func (e *WebhookEvent) DedupKey() string {
	switch {
	case e.Refund() != nil && e.Refund().ID != "":
		return e.Event + ":" + e.Refund().ID
	case e.Payment() != nil && e.Payment().ID != "":
		return e.Event + ":" + e.Payment().ID
	default:
		return fmt.Sprintf("%s:%d", e.Event, e.CreatedAt)
	}
}
