package course

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/utils/middleware"
	"github.com/sahilchouksey/course-marketplace/utils/response"
	"github.com/sahilchouksey/course-marketplace/utils/validation"
)

// CourseHandler handles course-related requests
type CourseHandler struct {
	catalog   *services.CatalogService
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(catalog *services.CatalogService) *CourseHandler {
	return &CourseHandler{
		catalog:   catalog,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the request body for creating a course.
// Price is in paise.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	Category    string `json:"category" validate:"omitempty,max=100"`
	Level       string `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Language    string `json:"language" validate:"omitempty,max=50"`
	Price       int64  `json:"price"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
	Level       *string `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Language    *string `json:"language" validate:"omitempty,max=50"`
	Price       *int64  `json:"price"`
}

// SetStatusRequest is the admin moderation body
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending published rejected"`
	Note   string `json:"note" validate:"omitempty,max=1000"`
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	page, limit := response.PageParams(c)
	courses, total, err := h.catalog.ListPublished(c.UserContext(), services.ListCoursesParams{
		Page:     page,
		Limit:    limit,
		Search:   validation.SanitizeString(c.Query("search")),
		Category: c.Query("category"),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// ListMyCourses handles GET /api/v1/courses/mine
func (h *CourseHandler) ListMyCourses(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	courses, err := h.catalog.ListByInstructor(c.UserContext(), caller)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, courses)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	var caller *services.Identity
	if identity, ok := middleware.GetIdentity(c); ok {
		caller = &identity
	}

	course, err := h.catalog.GetCourse(c.UserContext(), caller, uint(id))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	course, err := h.catalog.CreateCourse(c.UserContext(), caller, services.CourseInput{
		Title:       validation.SanitizeString(req.Title),
		Description: validation.SanitizeString(req.Description),
		Category:    validation.SanitizeString(req.Category),
		Level:       req.Level,
		Language:    validation.SanitizeString(req.Language),
		Price:       req.Price,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	course, err := h.catalog.UpdateCourse(c.UserContext(), caller, uint(id), services.CourseUpdate{
		Title:       sanitized(req.Title),
		Description: sanitized(req.Description),
		Category:    sanitized(req.Category),
		Level:       req.Level,
		Language:    sanitized(req.Language),
		Price:       req.Price,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Course updated and sent for review", course)
}

// SetStatus handles PATCH /api/v1/courses/:id/status
func (h *CourseHandler) SetStatus(c *fiber.Ctx) error {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid course ID")
	}

	var req SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	course, err := h.catalog.SetStatus(c.UserContext(), caller, uint(id), model.CourseStatus(req.Status), validation.SanitizeString(req.Note))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, course)
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	v := validation.SanitizeString(*s)
	return &v
}
