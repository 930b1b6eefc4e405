package revenue

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/middleware"
	"github.com/sahilchouksey/course-marketplace/utils/response"
)

// RevenueHandler serves the instructor and admin dashboards
type RevenueHandler struct {
	revenue  *services.RevenueService
	exporter *services.ReportExporter
}

// NewRevenueHandler creates a new revenue handler
func NewRevenueHandler(revenue *services.RevenueService, exporter *services.ReportExporter) *RevenueHandler {
	return &RevenueHandler{revenue: revenue, exporter: exporter}
}

// Instructor handles GET /api/v1/revenue/instructor?period=
func (h *RevenueHandler) Instructor(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	report, err := h.revenue.InstructorRevenue(c.UserContext(), caller, c.Query("period"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, report)
}

// Admin handles GET /api/v1/revenue/admin?top=
func (h *RevenueHandler) Admin(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	summary, err := h.revenue.AdminSummary(c.UserContext(), caller, c.QueryInt("top", 0))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, summary)
}

// Export handles POST /api/v1/revenue/admin/export
func (h *RevenueHandler) Export(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	result, err := h.exporter.ExportLedger(c.UserContext(), caller)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, result)
}

// CourseSummary handles GET /api/v1/revenue/admin/courses
func (h *RevenueHandler) CourseSummary(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, limit := response.PageParams(c)
	rows, total, err := h.revenue.CourseSummary(c.UserContext(), caller, page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, rows, response.CalculatePagination(page, limit, total))
}

// CoursePurchases handles GET /api/v1/revenue/admin/courses/:courseId/purchases
func (h *RevenueHandler) CoursePurchases(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	courseID, err := c.ParamsInt("courseId")
	if err != nil || courseID <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	page, limit := response.PageParams(c)
	purchases, total, err := h.revenue.PurchasesByCourse(c.UserContext(), caller, uint(courseID), page, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paginated(c, purchases, response.CalculatePagination(page, limit, total))
}
