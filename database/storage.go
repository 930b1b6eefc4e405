package database

import "gorm.io/gorm"

// Storage defines the interface that the database layer must satisfy
type Storage interface {
	// Lifecycle methods
	Init() error
	Close() error
	HealthCheck() error

	// GORM DB access
	GetDB() *gorm.DB
}
