// migrate applies migrations/NNN_description.sql files in order, once each.
// Applied files are recorded in schema_migrations with a sha256 checksum; an
// edited file that was already applied aborts the run.
//
// Usage: go run ./cmd/migrate [-dir migrations]
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"boutique-credit/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migratorLockID = 7462839

func main() {
	dir := flag.String("dir", "migrations", "directory holding NNN_description.sql files")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("BOUTIQUE_CONFIG"))
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}

	ctx := context.Background()
	pool, err := connectDB(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("[CONNECT] %v", err)
	}
	defer pool.Close()

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		log.Fatalf("[LOCK] %v", err)
	}
	defer conn.Release()

	if err := setupSchemaMigrations(ctx, pool); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	files, err := discoverMigrations(*dir)
	if err != nil {
		log.Fatalf("[DISCOVER] %v", err)
	}

	for _, filename := range files {
		if err := applyMigration(ctx, pool, *dir, filename); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
	}

	log.Println("[DONE] All migrations processed.")
}

func connectDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("[CONNECT] success")
	return pool, nil
}

// acquireLock holds a session advisory lock for the lifetime of the returned
// connection so two migrators never run concurrently.
func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migratorLockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("another migrator is currently running")
	}

	log.Println("[LOCK] success")
	return conn, nil
}

func setupSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func discoverMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var filenames []string
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := extractVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate version %s: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)
	return filenames, nil
}

func extractVersion(filename string) (string, error) {
	version, _, ok := strings.Cut(filename, "_")
	if !ok || version == "" {
		return "", fmt.Errorf("invalid migration filename %s, expected NNN_description.sql", filename)
	}
	return version, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir, filename string) error {
	version, err := extractVersion(filename)
	if err != nil {
		return err
	}
	sqlBytes, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", filename, err)
	}
	sum := sha256.Sum256(sqlBytes)
	checksum := hex.EncodeToString(sum[:])

	var existing string
	err = pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", version).Scan(&existing)
	switch {
	case err == nil:
		if existing != checksum {
			return fmt.Errorf("checksum mismatch for %s: recorded %s, file %s", filename, existing, checksum)
		}
		log.Printf("[SKIP] %s", filename)
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to query schema_migrations for %s: %w", filename, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", filename, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", filename, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		version, filename, checksum); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction for %s: %w", filename, err)
	}

	log.Printf("[APPLY] %s", filename)
	return nil
}
