package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sahilchouksey/course-marketplace/model"
	"gorm.io/gorm"
)

// CourseSnapshot is what the purchase workflow needs from the catalog
type CourseSnapshot struct {
	CourseID     uint
	Title        string
	Price        int64
	InstructorID uint
	Published    bool
}

// Catalog resolves the current catalog entry for a course
type Catalog interface {
	GetCoursePrice(ctx context.Context, courseID uint) (*CourseSnapshot, error)
}

// CatalogService manages courses: instructor authoring, admin moderation and
// public listing. It also serves as the Catalog for purchases.
type CatalogService struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB, log *slog.Logger) *CatalogService {
	return &CatalogService{db: db, log: log}
}

type CourseInput struct {
	Title       string
	Description string
	Category    string
	Level       string
	Language    string
	Price       int64
}

type CourseUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Level       *string
	Language    *string
	Price       *int64
}

type ListCoursesParams struct {
	Page     int
	Limit    int
	Search   string
	Category string
}

// GetCoursePrice implements Catalog
func (s *CatalogService) GetCoursePrice(ctx context.Context, courseID uint) (*CourseSnapshot, error) {
	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &CourseSnapshot{
		CourseID:     course.ID,
		Title:        course.Title,
		Price:        course.Price,
		InstructorID: course.InstructorID,
		Published:    course.IsPublished(),
	}, nil
}

// ListPublished returns one page of courses visible to everyone
func (s *CatalogService) ListPublished(ctx context.Context, params ListCoursesParams) ([]model.Course, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Course{}).Where("status = ?", model.CourseStatusPublished)

	if params.Search != "" {
		like := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to count courses", err)
	}

	var courses []model.Course
	err := query.Order("created_at DESC").
		Limit(params.Limit).
		Offset((params.Page - 1) * params.Limit).
		Find(&courses).Error
	if err != nil {
		return nil, 0, newError(KindPersistenceError, "failed to fetch courses", err)
	}
	return courses, total, nil
}

// ListByInstructor returns every course the instructor authored, in any status
func (s *CatalogService) ListByInstructor(ctx context.Context, caller Identity) ([]model.Course, error) {
	if err := caller.require(model.RoleInstructor); err != nil {
		return nil, err
	}

	var courses []model.Course
	err := s.db.WithContext(ctx).
		Where("instructor_id = ?", caller.UserID).
		Order("created_at DESC").
		Find(&courses).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to fetch courses", err)
	}
	return courses, nil
}

// GetCourse returns a published course, or an unpublished one to its author or an admin
func (s *CatalogService) GetCourse(ctx context.Context, caller *Identity, courseID uint) (*model.Course, error) {
	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.IsPublished() {
		return course, nil
	}
	if caller != nil && (caller.is(model.RoleAdmin) || (caller.is(model.RoleInstructor) && caller.UserID == course.InstructorID)) {
		return course, nil
	}
	return nil, ErrCourseNotFound
}

// CreateCourse adds a course owned by the calling instructor. New courses
// wait for moderation before they can be bought.
func (s *CatalogService) CreateCourse(ctx context.Context, caller Identity, in CourseInput) (*model.Course, error) {
	if err := caller.require(model.RoleInstructor); err != nil {
		return nil, err
	}
	if in.Price <= 0 {
		return nil, newError(KindInvalidPrice, "course price must be positive", nil)
	}

	course := &model.Course{
		InstructorID: caller.UserID,
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Level:        in.Level,
		Language:     in.Language,
		Price:        in.Price,
		Status:       model.CourseStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		return nil, newError(KindPersistenceError, "failed to create course", err)
	}

	s.log.Info("course created", slog.Uint64("course_id", uint64(course.ID)), slog.Uint64("instructor_id", uint64(caller.UserID)))
	return course, nil
}

// UpdateCourse edits a course the caller owns and sends it back to moderation.
// Existing purchases keep the price they were bought at.
func (s *CatalogService) UpdateCourse(ctx context.Context, caller Identity, courseID uint, in CourseUpdate) (*model.Course, error) {
	if err := caller.require(model.RoleInstructor); err != nil {
		return nil, err
	}

	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != caller.UserID {
		return nil, newError(KindUnauthorized, "only the course author may edit it", nil)
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Category != nil {
		updates["category"] = *in.Category
	}
	if in.Level != nil {
		updates["level"] = *in.Level
	}
	if in.Language != nil {
		updates["language"] = *in.Language
	}
	if in.Price != nil {
		if *in.Price <= 0 {
			return nil, newError(KindInvalidPrice, "course price must be positive", nil)
		}
		updates["price"] = *in.Price
	}
	if len(updates) == 0 {
		return course, nil
	}
	updates["status"] = model.CourseStatusPending
	updates["review_note"] = ""

	if err := s.db.WithContext(ctx).Model(course).Updates(updates).Error; err != nil {
		return nil, newError(KindPersistenceError, "failed to update course", err)
	}
	return s.find(ctx, courseID)
}

// SetStatus is the admin moderation action
func (s *CatalogService) SetStatus(ctx context.Context, caller Identity, courseID uint, status model.CourseStatus, note string) (*model.Course, error) {
	if err := caller.require(model.RoleAdmin); err != nil {
		return nil, err
	}
	switch status {
	case model.CourseStatusPending, model.CourseStatusPublished, model.CourseStatusRejected:
	default:
		return nil, newError(KindInvalidRequest, "unknown course status", nil)
	}

	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(course).Updates(map[string]interface{}{
		"status":      status,
		"review_note": note,
	}).Error
	if err != nil {
		return nil, newError(KindPersistenceError, "failed to update course status", err)
	}

	s.log.Info("course moderated",
		slog.Uint64("course_id", uint64(courseID)),
		slog.String("status", string(status)),
		slog.Uint64("admin_id", uint64(caller.UserID)),
	)
	return s.find(ctx, courseID)
}

func (s *CatalogService) find(ctx context.Context, courseID uint) (*model.Course, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, newError(KindPersistenceError, "failed to load course", err)
	}
	return &course, nil
}
