// seed inserts a development account for local testing.
// Idempotent: skips the insert if the dev account (dev@example.com) already exists.
package main

import (
	"context"
	"log"

	"credential-authority/internal/account/domain"
	accountrepo "credential-authority/internal/account/repository"
	"credential-authority/internal/config"
	"credential-authority/internal/db"
	"credential-authority/internal/security"
)

const (
	devAccountEmail = "dev@example.com"
	devPassword     = "password123"
	devAccountID    = "dev-account-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; set it in the environment or .env")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := accountrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := repo.Get(ctx, domain.Filter{Email: devAccountEmail})
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	acc, err := repo.Create(ctx, &domain.Account{
		ID:           devAccountID,
		Email:        devAccountEmail,
		FullName:     "Dev User",
		PasswordHash: hash,
		IsVerified:   true,
	})
	if err != nil {
		log.Fatalf("create dev account: %v", err)
	}
	log.Printf("Seeded verified account %s (%s / %s)", acc.ID, devAccountEmail, devPassword)
}
