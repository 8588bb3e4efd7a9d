// seed inserts the reference data a fresh database needs: the three client
// categories and an ADMIN account. Rerunning it is harmless.
//
// Usage: go run ./cmd/seed [-admin-login admin] [-admin-password ...]
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"boutique-credit/internal/authz"
	"boutique-credit/internal/config"
	"boutique-credit/internal/core"
	"boutique-credit/internal/db"
)

func main() {
	login := flag.String("admin-login", envOr("SEED_ADMIN_LOGIN", "admin"), "login of the ADMIN account")
	password := flag.String("admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "password of the ADMIN account")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("BOUTIQUE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	log.Println("Seeding categories...")
	categories, err := core.NewCategoryService(pool).SeedCategories(ctx)
	if err != nil {
		log.Fatalf("Failed to seed categories: %v", err)
	}
	for _, c := range categories {
		log.Printf("  %d %s", c.ID, c.Label)
	}

	if *password == "" {
		log.Println("No admin password given, skipping ADMIN account.")
		return
	}

	log.Printf("Creating ADMIN account %q...", *login)
	users := core.NewUserService(pool)
	u, err := users.CreateUser(ctx, *login, *password, authz.RoleAdmin, nil)
	switch {
	case core.KindOf(err) == core.KindConflict:
		log.Printf("Account %q already exists, left unchanged.", *login)
	case err != nil:
		log.Fatalf("Failed to create admin: %v", err)
	default:
		log.Printf("Created user %d.", u.ID)
	}

	log.Println("Seed complete.")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
