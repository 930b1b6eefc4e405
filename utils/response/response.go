package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope every endpoint answers with
type Response struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message,omitempty"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// ErrorDetail carries a stable machine-readable code. Details is set for
// errors the client must act on differently, e.g. "state_changed".
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
}

type PaginatedResponse struct {
	Success    bool           `json:"success"`
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

func Success(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMessage(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Created returns 201 for a newly written resource
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{
		Success: true,
		Data:    data,
	})
}

// Error writes a failure envelope tagged with the request id
func Error(c *fiber.Ctx, statusCode int, detail ErrorDetail) error {
	return c.Status(statusCode).JSON(Response{
		Success:   false,
		Error:     &detail,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, ErrorDetail{Code: "BAD_REQUEST", Message: message})
}

func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Unauthorized access"
	}
	return Error(c, fiber.StatusUnauthorized, ErrorDetail{Code: "UNAUTHENTICATED", Message: message})
}

// ValidationError returns 422 with the validator's field messages as details
func ValidationError(c *fiber.Ctx, err error) error {
	return Error(c, fiber.StatusUnprocessableEntity, ErrorDetail{
		Code:    "VALIDATION_ERROR",
		Message: "Validation failed",
		Details: err.Error(),
	})
}

func InternalServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return Error(c, fiber.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR", Message: message})
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return Error(c, fiber.StatusServiceUnavailable, ErrorDetail{Code: "SERVICE_UNAVAILABLE", Message: message})
}

func Paginated(c *fiber.Ctx, data interface{}, pagination PaginationMeta) error {
	return c.Status(fiber.StatusOK).JSON(PaginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: pagination,
	})
}

// PageParams reads ?page= and ?limit= and clamps them to 1..100 (default 10)
func PageParams(c *fiber.Ctx) (page, limit int) {
	meta := CalculatePagination(c.QueryInt("page", 1), c.QueryInt("limit", 10), 0)
	return meta.CurrentPage, meta.PerPage
}

// CalculatePagination clamps page and limit and derives the page count
func CalculatePagination(page, limit int, total int64) PaginationMeta {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	totalPages := int(total / int64(limit))
	if total%int64(limit) > 0 {
		totalPages++
	}

	return PaginationMeta{
		CurrentPage: page,
		PerPage:     limit,
		Total:       total,
		TotalPages:  totalPages,
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}
