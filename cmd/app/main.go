// app is the shop-counter CLI: list and act on dettes, clients and articles
// without going through the HTTP API.
//
// Usage: go run ./cmd/app dettes pending
package main

import (
	"context"
	"log"
	"os"

	"boutique-credit/internal/adapters/cli"
	"boutique-credit/internal/ai"
	"boutique-credit/internal/app"
	"boutique-credit/internal/config"
	"boutique-credit/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("BOUTIQUE_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	svc := app.NewFromPool(pool, app.Wiring{
		CapMode:        cfg.CapMode(),
		RelaunchWindow: cfg.Credit.RelaunchWindow,
		Drafter:        ai.NewDrafter(cfg.AI.APIKey, cfg.AI.Model),
	})

	root := cli.NewRootCmd(svc, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("Error: %v", err)
		pool.Close()
		os.Exit(1)
	}
}
