package model

import (
	"time"

	"gorm.io/gorm"
)

type CourseStatus string

const (
	CourseStatusPending   CourseStatus = "pending"
	CourseStatusPublished CourseStatus = "published"
	CourseStatusRejected  CourseStatus = "rejected"
)

// Course is a catalog entry authored by an instructor. Price is in minor
// units (paise) and is what the purchase workflow snapshots at checkout.
type Course struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	InstructorID uint           `gorm:"not null;index" json:"instructor_id"`
	Title        string         `gorm:"type:varchar(255);not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Category     string         `gorm:"type:varchar(100);index" json:"category"`
	Level        string         `gorm:"type:varchar(50)" json:"level"`
	Language     string         `gorm:"type:varchar(50)" json:"language"`
	Price        int64          `gorm:"not null" json:"price"`
	Status       CourseStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewNote   string         `gorm:"type:text" json:"review_note,omitempty"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}

func (c *Course) IsPublished() bool {
	return c.Status == CourseStatusPublished
}
