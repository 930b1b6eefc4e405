package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/auth"
	"github.com/sahilchouksey/course-marketplace/utils/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) (*fiber.App, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager(auth.JWTConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"})
	m := NewAuthMiddleware(jwtManager)

	app := fiber.New()
	app.Get("/me", m.Required(), func(c *fiber.Ctx) error {
		id, ok := GetIdentity(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(id)
	})
	app.Get("/admin", m.Required(), m.RequireRole(model.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/maybe", m.Optional(), func(c *fiber.Ctx) error {
		if _, ok := GetIdentity(c); ok {
			return c.SendString("known")
		}
		return c.SendString("anonymous")
	})
	return app, jwtManager
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequired(t *testing.T) {
	app, jwtManager := newApp(t)
	token, _, err := jwtManager.GenerateAccessToken(7, model.RoleStudent)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/me", token))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "garbage"))

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Token "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app, jwtManager := newApp(t)
	student, _, _ := jwtManager.GenerateAccessToken(7, model.RoleStudent)
	admin, _, _ := jwtManager.GenerateAccessToken(1, model.RoleAdmin)

	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", student))
	assert.Equal(t, fiber.StatusNoContent, get(t, app, "/admin", admin))

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+student)
	resp, err := app.Test(req)
	require.NoError(t, err)
	var env response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotNil(t, env.Error)
	assert.Equal(t, string(services.KindUnauthorized), env.Error.Code)
}

func TestOptional(t *testing.T) {
	app, jwtManager := newApp(t)
	token, _, _ := jwtManager.GenerateAccessToken(7, model.RoleInstructor)

	for _, tc := range []struct {
		token string
		want  string
	}{{token, "known"}, {"", "anonymous"}, {"bad", "anonymous"}} {
		req := httptest.NewRequest("GET", "/maybe", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		buf := make([]byte, 16)
		n, _ := resp.Body.Read(buf)
		assert.Equal(t, tc.want, string(buf[:n]))
	}
}
