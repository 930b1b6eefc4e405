package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

// HandleCheckHealth reports liveness and whether the database answers
func HandleCheckHealth(store database.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.HealthCheck(); err != nil {
			return response.ServiceUnavailable(c, "Database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
