package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/prepdeck/prepdeck-backend/internal/config"
	"github.com/prepdeck/prepdeck-backend/internal/service"
)

// mint-token issues a signed user JWT for local development and the e2e
// suite. Real tokens come from the account system.
func main() {
	var userID int
	flag.IntVar(&userID, "user", 1, "User ID to embed in the token")
	flag.Parse()

	cfg := config.Load()
	authService := service.NewAuthService(cfg)

	token, err := authService.GenerateToken(userID)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Println(token)
}
