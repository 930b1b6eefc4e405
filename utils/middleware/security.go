package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

// SecurityConfig holds security middleware configuration
type SecurityConfig struct {
	AllowedOrigins    string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// RateLimitExempt lists exact paths the limiter skips, e.g. gateway callbacks.
	RateLimitExempt []string
	Production      bool
	Logger          *slog.Logger
}

// SetupSecurity applies all security middleware
func SetupSecurity(app *fiber.App, config SecurityConfig) {
	app.Use(requestid.New())

	if config.Logger != nil {
		app.Use(requestLogger(config.Logger))
	}

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !config.Production,
	}))

	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "no-referrer",
	}))

	// Credentials are only allowed with an explicit origin list.
	origins := normalizeOrigins(config.AllowedOrigins)
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	if config.RateLimitRequests > 0 {
		exempt := make(map[string]struct{}, len(config.RateLimitExempt))
		for _, p := range config.RateLimitExempt {
			exempt[p] = struct{}{}
		}
		app.Use(limiter.New(limiter.Config{
			Max:        config.RateLimitRequests,
			Expiration: config.RateLimitWindow,
			Next: func(c *fiber.Ctx) bool {
				_, skip := exempt[c.Path()]
				return skip
			},
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return response.Error(c, fiber.StatusTooManyRequests, response.ErrorDetail{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many requests. Please try again later.",
				})
			},
		}))
	}
}

// requestLogger writes one structured line per request
func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		rid, _ := c.Locals("requestid").(string)
		log.Log(c.UserContext(), level, "http request",
			slog.String("request_id", rid),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
		)
		return err
	}
}

func normalizeOrigins(origins string) string {
	parts := strings.Split(origins, ",")
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "*"
	}
	return strings.Join(kept, ",")
}
