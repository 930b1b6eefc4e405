package webhook

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	webhooks *services.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive handles POST /api/v1/payments/webhook. The body is verified as raw
// bytes; any non-2xx answer makes the gateway redeliver.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	if len(body) == 0 {
		return response.BadRequest(c, "Empty webhook body")
	}

	result, err := h.webhooks.Reconcile(
		c.UserContext(),
		body,
		c.Get(razorpay.SignatureHeader),
		c.Get(razorpay.EventIDHeader),
	)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}
