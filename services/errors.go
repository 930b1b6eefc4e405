package services

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable error code returned to clients
type Kind string

const (
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
	KindInvalidPrice        Kind = "INVALID_PRICE"
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindPaymentNotVerified  Kind = "PAYMENT_NOT_VERIFIED"
	KindCourseNotFound      Kind = "COURSE_NOT_FOUND"
	KindPurchaseNotFound    Kind = "PURCHASE_NOT_FOUND"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindAlreadyRefunded     Kind = "ALREADY_REFUNDED"
	KindRefundWindowExpired Kind = "REFUND_WINDOW_EXPIRED"
	KindRefundFailed        Kind = "REFUND_FAILED"
	KindGatewayError        Kind = "GATEWAY_ERROR"
	KindPersistenceError    Kind = "PERSISTENCE_ERROR"
	KindUnavailable         Kind = "UNAVAILABLE"
)

// ServiceError is returned by every service operation that fails.
// StateChanged is set when the failed call still mutated the ledger, which
// only happens when an expired refund request marks a purchase non-refundable.
type ServiceError struct {
	Kind         Kind
	Message      string
	StateChanged bool
	Err          error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError of the same kind, so errors.Is(err, ErrAlreadyRefunded) works
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidAmount       = &ServiceError{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrInvalidPrice        = &ServiceError{Kind: KindInvalidPrice, Message: "invalid course price"}
	ErrInvalidRequest      = &ServiceError{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrPaymentNotVerified  = &ServiceError{Kind: KindPaymentNotVerified, Message: "payment not verified"}
	ErrCourseNotFound      = &ServiceError{Kind: KindCourseNotFound, Message: "course not found"}
	ErrPurchaseNotFound    = &ServiceError{Kind: KindPurchaseNotFound, Message: "purchase not found"}
	ErrUnauthorized        = &ServiceError{Kind: KindUnauthorized, Message: "not allowed"}
	ErrAlreadyRefunded     = &ServiceError{Kind: KindAlreadyRefunded, Message: "purchase already refunded"}
	ErrRefundWindowExpired = &ServiceError{Kind: KindRefundWindowExpired, Message: "refund window expired"}
	ErrRefundFailed        = &ServiceError{Kind: KindRefundFailed, Message: "refund failed"}
	ErrGateway             = &ServiceError{Kind: KindGatewayError, Message: "payment gateway error"}
	ErrPersistence         = &ServiceError{Kind: KindPersistenceError, Message: "persistence error"}
	ErrUnavailable         = &ServiceError{Kind: KindUnavailable, Message: "service unavailable"}
)

func newError(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind of a service error, or "" for anything else
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
