package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// gatewayID matches Razorpay order and payment identifiers such as order_Nf3kA91xQ
var gatewayID = regexp.MustCompile(`^[a-z]+_[A-Za-z0-9]+$`)

// Validator wraps the go-playground validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("gateway_id", func(fl validator.FieldLevel) bool {
		return gatewayID.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// ValidateStruct validates a struct using struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// FormatValidationErrors converts validation errors to a user-friendly format
func FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			switch e.Tag() {
			case "required":
				errors[field] = fmt.Sprintf("%s is required", e.Field())
			case "min":
				errors[field] = fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
			case "max":
				errors[field] = fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
			case "gt":
				errors[field] = fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
			case "gateway_id":
				errors[field] = fmt.Sprintf("%s is not a gateway identifier", e.Field())
			case "oneof":
				errors[field] = fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
			default:
				errors[field] = fmt.Sprintf("%s is invalid", e.Field())
			}
		}
	}

	return errors
}

// SanitizeString removes potentially dangerous characters
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Trim whitespace
	s = strings.TrimSpace(s)
	return s
}
