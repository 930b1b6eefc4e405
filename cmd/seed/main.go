package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/course-marketplace/config"
	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/utils"
)

func main() {
	instructorID := flag.Uint("instructor", 1, "user id that will own the seeded courses")
	flag.Parse()

	// Load environment variables
	if err := config.LoadENV(); err != nil {
		log.Println("Warning: .env file not loaded, using system environment variables")
	}
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	// Initialize database connection using GORM
	store, err := database.StartGORM(cfg, utils.NewLogger(cfg.GoEnv))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("Course Marketplace - Catalog Seeding")
	fmt.Println(separator)

	if err := database.RunSeeds(store.GetDB(), utils.NewLogger(cfg.GoEnv), uint(*instructorID)); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	fmt.Println(separator)
	fmt.Printf("Seeded published courses owned by instructor %d\n", *instructorID)
	fmt.Println(separator)
}
