package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/auth"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// parse returns the access token claims, or the message to reject the request with
func (m *AuthMiddleware) parse(c *fiber.Ctx) (*auth.Claims, string) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, "Missing authorization token"
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "Invalid authorization format"
	}

	claims, err := m.jwtManager.ValidateToken(parts[1])
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, "Token has expired"
		}
		return nil, "Invalid token"
	}
	if claims.TokenType != "access" {
		return nil, "Invalid token type"
	}
	return claims, ""
}

func store(c *fiber.Ctx, claims *auth.Claims) {
	c.Locals("user_id", claims.UserID)
	c.Locals("user_role", model.Role(claims.Role))
	c.Locals("claims", claims)
	c.Locals("token_jti", claims.ID)
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, reason := m.parse(c)
		if claims == nil {
			return response.Unauthorized(c, reason)
		}
		store(c, claims)
		return c.Next()
	}
}

// Optional is middleware that allows requests with or without a token
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims, _ := m.parse(c); claims != nil {
			store(c, claims)
		}
		return c.Next()
	}
}

// RequireRole is middleware that requires specific user role. It must run
// after Required.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := GetUserRole(c)
		if !ok {
			return response.FromError(c, &services.ServiceError{Kind: services.KindUnauthorized, Message: "Access denied"})
		}
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return response.FromError(c, &services.ServiceError{Kind: services.KindUnauthorized, Message: "Insufficient permissions"})
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	userID := c.Locals("user_id")
	if userID == nil {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}

// GetUserRole extracts user role from context
func GetUserRole(c *fiber.Ctx) (model.Role, bool) {
	role := c.Locals("user_role")
	if role == nil {
		return "", false
	}
	r, ok := role.(model.Role)
	return r, ok
}

// GetIdentity returns the authenticated caller as the services see it
func GetIdentity(c *fiber.Ctx) (services.Identity, bool) {
	id, ok := GetUserID(c)
	if !ok || id == 0 {
		return services.Identity{}, false
	}
	role, ok := GetUserRole(c)
	if !ok {
		return services.Identity{}, false
	}
	return services.Identity{UserID: id, Role: role}, true
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims := c.Locals("claims")
	if claims == nil {
		return nil, false
	}
	claimsData, ok := claims.(*auth.Claims)
	return claimsData, ok
}
