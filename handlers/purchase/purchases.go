package purchase

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/middleware"
	"github.com/sahilchouksey/course-marketplace/utils/response"
	"github.com/sahilchouksey/course-marketplace/utils/validation"
)

// PurchaseHandler serves checkout, refunds and the student's purchase reads
type PurchaseHandler struct {
	purchases *services.PurchaseService
	validator *validation.Validator
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(purchases *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		validator: validation.NewValidator(),
	}
}

// CreateOrderRequest carries the total the client expects to pay, in paise.
// Amount is decoded by parseAmount so malformed values map to InvalidAmount.
type CreateOrderRequest struct {
	CourseID uint            `json:"course_id" validate:"required"`
	Amount   json.RawMessage `json:"amount"`
}

// ConfirmRequest is the checkout callback payload from the gateway widget
type ConfirmRequest struct {
	CourseID  uint   `json:"course_id" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required,max=100,gateway_id"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=100,gateway_id"`
	Signature string `json:"razorpay_signature" validate:"required,max=256"`
}

type CheckAccessRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

// CreateOrder handles POST /api/v1/payments/orders
func (h *PurchaseHandler) CreateOrder(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return response.FromError(c, err)
	}

	order, err := h.purchases.CreateOrder(c.UserContext(), caller, services.CreateOrderInput{
		CourseID: req.CourseID,
		Amount:   amount,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, order)
}

// ConfirmPurchase handles POST /api/v1/payments/confirm. Repeating a
// successful confirmation returns the same purchase with 200.
func (h *PurchaseHandler) ConfirmPurchase(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.purchases.ConfirmPurchase(c.UserContext(), caller, services.ConfirmInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		CourseID:  req.CourseID,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	if result.AlreadyRecorded {
		return response.SuccessWithMessage(c, "Purchase already recorded", result)
	}
	return response.Created(c, result)
}

// RequestRefund handles POST /api/v1/purchases/:id/refund
func (h *PurchaseHandler) RequestRefund(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid purchase ID")
	}

	result, err := h.purchases.RequestRefund(c.UserContext(), caller, uint(id))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Refund processed", result)
}

// History handles GET /api/v1/purchases/history
func (h *PurchaseHandler) History(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit := response.PageParams(c)
	purchases, total, err := h.purchases.PurchaseHistory(c.UserContext(), caller, page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, purchases, response.CalculatePagination(page, limit, total))
}

// GetByOrderID handles GET /api/v1/purchases/order/:orderId
func (h *PurchaseHandler) GetByOrderID(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	orderID := c.Params("orderId")
	if orderID == "" {
		return response.BadRequest(c, "Order ID is required")
	}

	purchase, err := h.purchases.GetByOrderID(c.UserContext(), caller, orderID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, purchase)
}

// CheckAccess handles POST /api/v1/purchases/check-access
func (h *PurchaseHandler) CheckAccess(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CheckAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	hasAccess, err := h.purchases.HasAccess(c.UserContext(), caller, req.CourseID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"course_id":  req.CourseID,
		"has_access": hasAccess,
	})
}

// parseAmount reads a whole number of paise sent as a JSON number or a
// numeric string. Sign is left to the service.
func parseAmount(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		text = strings.TrimSpace(quoted)
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, &services.ServiceError{
			Kind:    services.KindInvalidAmount,
			Message: "amount must be a whole number of paise",
			Err:     err,
		}
	}
	return n, nil
}
