package model

import (
	"fmt"
	"strings"
)

// Role is the caller role asserted by the identity layer
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// ParseRole accepts only the three marketplace roles
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	return string(r)
}
