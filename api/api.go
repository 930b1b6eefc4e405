package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
	log           *slog.Logger
}

func NewAPIServer(listenAddress string, log *slog.Logger) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "course-marketplace",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimit:    1 << 20,
			ErrorHandler: errorHandler,
		}),
		listenAddress: listenAddress,
		log:           log,
	}
}

// errorHandler keeps fiber's own errors (404 routes, oversized bodies) in the API envelope
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return response.Error(c, code, response.ErrorDetail{Code: "HTTP_ERROR", Message: err.Error()})
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	s.log.Info("starting API server", slog.String("address", s.listenAddress))
	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
