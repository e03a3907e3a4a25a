// scripts/generate_password.go prints a bcrypt hash for seeding accounts by hand
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/your-org/meatshop-backend/internal/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/generate_password.go <password>")
	}

	password := os.Args[1]
	if err := auth.ValidatePassword(password); err != nil {
		log.Fatalf("Password rejected: %v", err)
	}

	cost := bcrypt.DefaultCost
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil {
		cost = v
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		log.Fatal("Error generating hash:", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		log.Fatal("Hash verification failed:", err)
	}

	fmt.Println(string(hash))
}
