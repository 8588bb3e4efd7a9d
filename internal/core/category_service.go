package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CategoryService exposes the fixed set of client credit tiers.
type CategoryService interface {
	// SeedCategories inserts Gold, Silver and Bronze if absent. Safe to call repeatedly.
	SeedCategories(ctx context.Context) ([]Category, error)
	GetCategories(ctx context.Context) ([]Category, error)
	GetCategoryByLabel(ctx context.Context, label string) (*Category, error)
}

type categoryService struct {
	pool *pgxpool.Pool
}

func NewCategoryService(pool *pgxpool.Pool) CategoryService {
	return &categoryService{pool: pool}
}

func (s *categoryService) SeedCategories(ctx context.Context) ([]Category, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO categories (label) VALUES ($1), ($2), ($3)
		ON CONFLICT (label) DO NOTHING
	`, CategoryGold, CategorySilver, CategoryBronze)
	if err != nil {
		return nil, fmt.Errorf("failed to seed categories: %w", err)
	}
	return s.GetCategories(ctx)
}

func (s *categoryService) GetCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, label FROM categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Label); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *categoryService) GetCategoryByLabel(ctx context.Context, label string) (*Category, error) {
	return categoryByLabel(ctx, s.pool, label)
}

func categoryByLabel(ctx context.Context, q pgxQuerier, label string) (*Category, error) {
	var c Category
	err := q.QueryRow(ctx, "SELECT id, label FROM categories WHERE label = $1", label).Scan(&c.ID, &c.Label)
	if err != nil {
		return nil, wrapNotFound(err, "category", label)
	}
	return &c, nil
}
