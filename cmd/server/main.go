package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	webAdapter "boutique-credit/internal/adapters/web"
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
	if cfg.Server.JWTSecret == "" {
		log.Fatal("config: JWT_SECRET is required to sign session tokens")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	drafter := ai.NewDrafter(cfg.AI.APIKey, cfg.AI.Model)
	if !drafter.Enabled() {
		log.Println("Warning: OPENAI_API_KEY is not set, reminders use the built-in template")
	}

	svc := app.NewFromPool(pool, app.Wiring{
		CapMode:        cfg.CapMode(),
		RelaunchWindow: cfg.Credit.RelaunchWindow,
		Drafter:        drafter,
	})

	handler := webAdapter.NewHandler(svc, cfg.Server)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server starting on :%s (cap mode %s)", cfg.Server.Port, cfg.CapMode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}
}
