package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"strconv"
	"time"

	rzp "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/sahilchouksey/course-marketplace/utils/metrics"
)

// sdkTimeoutSlack keeps the SDK's own HTTP timeout behind the client timeout,
// so a slow gateway always surfaces as ErrGatewayTimeout.
const sdkTimeoutSlack = 5 * time.Second

// Client is the Gateway backed by the Razorpay REST API. It is built once per
// process and shared by every request.
type Client struct {
	api     *rzp.Client
	timeout time.Duration
	log     *slog.Logger
}

// NewClient creates a new Razorpay gateway client
func NewClient(keyID, keySecret string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api := rzp.NewClient(keyID, keySecret)
	api.SetTimeout(sdkTimeoutSeconds(timeout + sdkTimeoutSlack))
	return &Client{
		api:     api,
		timeout: timeout,
		log:     log,
	}
}

func sdkTimeoutSeconds(d time.Duration) int16 {
	secs := math.Ceil(d.Seconds())
	if secs > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(secs)
}

// CreateOrder registers an order for amount minor units
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    req.Notes,
	}

	body, err := c.call(ctx, "create_order", func() (map[string]interface{}, error) {
		return c.api.Order.Create(data, nil)
	})
	if err != nil {
		return nil, err
	}

	order := &Order{
		ID:       stringField(body, "id"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		return nil, &GatewayError{Op: "create_order", Reason: "response carried no order id"}
	}
	return order, nil
}

// Refund issues a refund of req.Amount minor units against a captured payment
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	data := map[string]interface{}{
		"speed": "optimum",
		"notes": req.Notes,
	}

	body, err := c.call(ctx, "refund", func() (map[string]interface{}, error) {
		return c.api.Payment.Refund(req.PaymentID, int(req.Amount), data, nil)
	})
	if err != nil {
		return nil, err
	}

	refund := &Refund{
		ID:        stringField(body, "id"),
		PaymentID: stringField(body, "payment_id"),
		Amount:    int64Field(body, "amount"),
		Status:    stringField(body, "status"),
	}
	if refund.Status == "failed" {
		return nil, &GatewayError{Op: "refund", Reason: "refund rejected by gateway"}
	}
	return refund, nil
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs one SDK request under the client timeout. The SDK is blocking and
// has no context support, so a timed out request keeps running in the
// background and its late result is dropped.
func (c *Client) call(ctx context.Context, op string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		body, err := fn()
		done <- callResult{body: body, err: err}
	}()

	select {
	case res := <-done:
		metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if res.err != nil {
			err := classify(op, res.err)
			if errors.Is(err, ErrGatewayTimeout) {
				c.log.Error("razorpay call outcome unknown", slog.String("op", op), slog.Any("error", res.err))
			} else {
				c.log.Warn("razorpay call failed", slog.String("op", op), slog.Any("error", res.err))
			}
			return nil, err
		}
		return res.body, nil
	case <-ctx.Done():
		metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		c.log.Error("razorpay call timed out", slog.String("op", op), slog.Duration("timeout", c.timeout))
		return nil, ErrGatewayTimeout
	}
}

// classify separates definitive rejections from failures after which the
// gateway may still have applied the request. Only a rejection the gateway
// described, or a connection that was never dialed, is definitive.
func classify(op string, err error) error {
	var (
		opErr     *net.OpError
		netErr    net.Error
		urlErr    *url.Error
		serverErr *rzperrors.ServerError
		badReq    *rzperrors.BadRequestError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return &GatewayError{Op: op, Reason: err.Error(), Err: err}
	case errors.As(err, &netErr) && netErr.Timeout(),
		errors.As(err, &urlErr),
		errors.As(err, &serverErr),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return fmt.Errorf("%w: %s: %v", ErrGatewayTimeout, op, err)
	case errors.As(err, &badReq) && badReq.Message == "":
		// 4xx/5xx without a readable error body
		return fmt.Errorf("%w: %s: unreadable error response", ErrGatewayTimeout, op)
	}
	return &GatewayError{Op: op, Reason: err.Error(), Err: err}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
