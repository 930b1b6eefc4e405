package database

import (
	"fmt"
	"log/slog"

	"github.com/sahilchouksey/course-marketplace/model"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, log *slog.Logger) *Seeder {
	return &Seeder{db: db, log: log}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll(instructorID uint) error {
	s.log.Info("starting database seeding")

	if err := s.SeedCourses(instructorID); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	s.log.Info("database seeding completed")
	return nil
}

// SeedCourses creates a published sample catalog owned by instructorID.
// Prices are in paise.
func (s *Seeder) SeedCourses(instructorID uint) error {
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		s.log.Info("courses already exist, skipping", slog.Int64("count", count))
		return nil
	}

	courses := []model.Course{
		{
			InstructorID: instructorID,
			Title:        "Go for Backend Engineers",
			Description:  "Build production HTTP services with Go, from routing to persistence.",
			Category:     "Development",
			Level:        "intermediate",
			Language:     "English",
			Price:        149900,
			Status:       model.CourseStatusPublished,
		},
		{
			InstructorID: instructorID,
			Title:        "PostgreSQL Fundamentals",
			Description:  "Schemas, indexes, transactions and query plans.",
			Category:     "Databases",
			Level:        "beginner",
			Language:     "English",
			Price:        99900,
			Status:       model.CourseStatusPublished,
		},
		{
			InstructorID: instructorID,
			Title:        "Payments Integration in Practice",
			Description:  "Orders, signatures, webhooks and refunds with a real gateway.",
			Category:     "Development",
			Level:        "advanced",
			Language:     "English",
			Price:        199900,
			Status:       model.CourseStatusPublished,
		},
		{
			InstructorID: instructorID,
			Title:        "Data Structures Crash Course",
			Description:  "Arrays to graphs in one weekend.",
			Category:     "Computer Science",
			Level:        "beginner",
			Language:     "Hindi",
			Price:        49900,
			Status:       model.CourseStatusPending,
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	s.log.Info("created courses", slog.Int("count", len(courses)))
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB, log *slog.Logger, instructorID uint) error {
	return NewSeeder(db, log).SeedAll(instructorID)
}
