package services

import (
	"fmt"

	"github.com/sahilchouksey/course-marketplace/model"
)

// Identity is the caller as asserted by the authentication layer
type Identity struct {
	UserID uint       `json:"user_id"`
	Role   model.Role `json:"role"`
}

// require rejects callers whose role is not one of roles
func (id Identity) require(roles ...model.Role) error {
	if id.UserID == 0 {
		return newError(KindUnauthorized, "caller is not authenticated", nil)
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return newError(KindUnauthorized, fmt.Sprintf("role %q may not perform this operation", id.Role), nil)
}

func (id Identity) is(role model.Role) bool {
	return id.UserID != 0 && id.Role == role
}
