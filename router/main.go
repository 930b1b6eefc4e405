package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/handlers"
	course_handlers "github.com/sahilchouksey/course-marketplace/handlers/course"
	purchase_handlers "github.com/sahilchouksey/course-marketplace/handlers/purchase"
	revenue_handlers "github.com/sahilchouksey/course-marketplace/handlers/revenue"
	webhook_handlers "github.com/sahilchouksey/course-marketplace/handlers/webhook"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/auth"
	"github.com/sahilchouksey/course-marketplace/utils/middleware"
)

// Dependencies is everything the route table needs, built once at startup
type Dependencies struct {
	Store      database.Storage
	JWTManager *auth.JWTManager
	Security   middleware.SecurityConfig

	Catalog   *services.CatalogService
	Purchases *services.PurchaseService
	Webhooks  *services.WebhookService
	Revenue   *services.RevenueService
	Exporter  *services.ReportExporter
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	authMiddleware := middleware.NewAuthMiddleware(deps.JWTManager)

	courseHandler := course_handlers.NewCourseHandler(deps.Catalog)
	purchaseHandler := purchase_handlers.NewPurchaseHandler(deps.Purchases)
	webhookHandler := webhook_handlers.NewWebhookHandler(deps.Webhooks)
	revenueHandler := revenue_handlers.NewRevenueHandler(deps.Revenue, deps.Exporter)

	// Apply security middleware
	middleware.SetupSecurity(app, deps.Security)

	// Health check and metrics (public)
	app.Get("/ping", handlers.HandleCheckHealth(deps.Store))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	student := authMiddleware.RequireRole(model.RoleStudent)
	instructor := authMiddleware.RequireRole(model.RoleInstructor)
	admin := authMiddleware.RequireRole(model.RoleAdmin)

	// Courses routes
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)                                              // Public: List published courses
	courses.Get("/mine", authMiddleware.Required(), instructor, courseHandler.ListMyCourses) // Instructor: Own courses in any status
	courses.Get("/:id", authMiddleware.Optional(), courseHandler.GetCourse)                  // Public: Get course by ID
	courses.Post("/", authMiddleware.Required(), instructor, courseHandler.CreateCourse)     // Instructor: Create course
	courses.Put("/:id", authMiddleware.Required(), instructor, courseHandler.UpdateCourse)   // Instructor: Update own course
	courses.Patch("/:id/status", authMiddleware.Required(), admin, courseHandler.SetStatus)  // Admin only: Moderate course

	// Payments routes. The webhook authenticates by gateway signature, not JWT.
	payments := api.Group("/payments")
	payments.Post("/webhook", webhookHandler.Receive)
	payments.Post("/orders", authMiddleware.Required(), student, purchaseHandler.CreateOrder)
	payments.Post("/confirm", authMiddleware.Required(), student, purchaseHandler.ConfirmPurchase)

	// Purchases routes (protected)
	purchases := api.Group("/purchases", authMiddleware.Required())
	purchases.Get("/history", student, purchaseHandler.History)
	purchases.Post("/check-access", student, purchaseHandler.CheckAccess)
	purchases.Get("/order/:orderId", purchaseHandler.GetByOrderID) // Student (own) or admin
	purchases.Post("/:id/refund", student, purchaseHandler.RequestRefund)

	// Revenue routes (protected)
	revenue := api.Group("/revenue", authMiddleware.Required())
	revenue.Get("/instructor", instructor, revenueHandler.Instructor)
	revenue.Get("/admin", admin, revenueHandler.Admin)
	revenue.Get("/admin/courses", admin, revenueHandler.CourseSummary)
	revenue.Get("/admin/courses/:courseId/purchases", admin, revenueHandler.CoursePurchases)
	revenue.Post("/admin/export", admin, revenueHandler.Export)
}
