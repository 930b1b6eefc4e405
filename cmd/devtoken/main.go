// Command devtoken mints an access token for local testing against the API.
//
//	go run ./cmd/devtoken -user 100 -role student
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sahilchouksey/course-marketplace/config"
	"github.com/sahilchouksey/course-marketplace/model"
	"github.com/sahilchouksey/course-marketplace/utils/auth"
)

func main() {
	userID := flag.Uint("user", 0, "user id to embed in the token")
	roleFlag := flag.String("role", "student", "student, instructor or admin")
	flag.Parse()

	if err := config.LoadENV(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}
	cfg, err := config.Get()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("devtoken refuses to run with GO_ENV=production")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *userID == 0 {
		log.Fatal("-user is required")
	}

	role, err := model.ParseRole(*roleFlag)
	if err != nil {
		log.Fatal(err)
	}

	jwtManager := auth.NewJWTManager(auth.JWTConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiry, Issuer: cfg.JWT.Issuer})
	token, _, err := jwtManager.GenerateAccessToken(uint(*userID), role)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
