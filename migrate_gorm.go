// migrate_gorm.go - Run this file to apply GORM migrations without starting the API
// Usage: go run migrate_gorm.go

//go:build ignore

package main

import (
	"log"

	"github.com/sahilchouksey/course-marketplace/config"
	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/utils"
)

func main() {
	log.Println("=== GORM Migration ===")

	// Load environment variables
	if err := config.LoadENV(); err != nil {
		log.Fatal("Failed to load environment variables:", err)
	}
	cfg, err := config.Get()
	if err != nil {
		log.Fatal("Failed to read configuration:", err)
	}

	// Initialize GORM connection
	store, err := database.StartGORM(cfg, utils.NewLogger(cfg.GoEnv))
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer store.Close()

	// Run migrations
	if err := store.Init(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Health check
	if err := store.HealthCheck(); err != nil {
		log.Fatal("Database health check failed:", err)
	}

	log.Println("All migrations completed. Tables:")
	for _, table := range []string{"courses", "purchases", "payment_orders", "webhook_events", "cron_job_logs"} {
		log.Println("  -", table)
	}
}
