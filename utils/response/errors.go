package response

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/services"
)

var kindStatus = map[services.Kind]int{
	services.KindInvalidAmount:       fiber.StatusBadRequest,
	services.KindInvalidPrice:        fiber.StatusBadRequest,
	services.KindInvalidRequest:      fiber.StatusBadRequest,
	services.KindPaymentNotVerified:  fiber.StatusBadRequest,
	services.KindCourseNotFound:      fiber.StatusNotFound,
	services.KindPurchaseNotFound:    fiber.StatusNotFound,
	services.KindUnauthorized:        fiber.StatusForbidden,
	services.KindAlreadyRefunded:     fiber.StatusConflict,
	services.KindRefundWindowExpired: fiber.StatusForbidden,
	services.KindRefundFailed:        fiber.StatusBadGateway,
	services.KindGatewayError:        fiber.StatusBadGateway,
	services.KindPersistenceError:    fiber.StatusInternalServerError,
	services.KindUnavailable:         fiber.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for a service error kind
func StatusFor(kind services.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// FromError writes a service error using its kind as the error code. Wrapped
// causes are never exposed to the client.
func FromError(c *fiber.Ctx, err error) error {
	var se *services.ServiceError
	if !errors.As(err, &se) {
		return InternalServerError(c, "")
	}
	detail := ErrorDetail{Code: string(se.Kind), Message: se.Message}
	if se.StateChanged {
		detail.Details = "state_changed"
	}
	return Error(c, StatusFor(se.Kind), detail)
}
