package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePagination(t *testing.T) {
	tests := []struct {
		name        string
		page, limit int
		total       int64
		want        PaginationMeta
	}{
		{"defaults", 0, 0, 0, PaginationMeta{CurrentPage: 1, PerPage: 10}},
		{"partial last page", 2, 10, 25, PaginationMeta{CurrentPage: 2, PerPage: 10, Total: 25, TotalPages: 3}},
		{"exact pages", 1, 5, 10, PaginationMeta{CurrentPage: 1, PerPage: 5, Total: 10, TotalPages: 2}},
		{"limit capped", 1, 500, 150, PaginationMeta{CurrentPage: 1, PerPage: 100, Total: 150, TotalPages: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculatePagination(tt.page, tt.limit, tt.total))
		})
	}
}

func TestPageParams(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		page, limit := PageParams(c)
		return c.JSON(fiber.Map{"page": page, "limit": limit})
	})

	cases := map[string][2]int{
		"/":                   {1, 10},
		"/?page=3&limit=20":   {3, 20},
		"/?page=-1&limit=999": {1, 100},
		"/?page=abc":          {1, 10},
	}
	for target, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		var got struct{ Page, Limit int }
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, want[0], got.Page, target)
		assert.Equal(t, want[1], got.Limit, target)
	}
}

func TestError_CarriesRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Get("/", func(c *fiber.Ctx) error { return BadRequest(c, "nope") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var out Response
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "req-123", out.RequestID)
	assert.Equal(t, "BAD_REQUEST", out.Error.Code)
}
