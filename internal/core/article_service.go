package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ArticleService manages the article catalog and its stock levels.
type ArticleService interface {
	// Standalone operations (manage their own transactions).
	CreateArticle(ctx context.Context, label string, unitPrice decimal.Decimal, stock int) (*Article, error)
	GetArticles(ctx context.Context, inStockOnly bool) ([]Article, error)
	GetArticle(ctx context.Context, id int) (*Article, error)
	GetArticlesByIDs(ctx context.Context, ids []int) ([]Article, error)
	FindArticleByLabel(ctx context.Context, label string) (*Article, error)
	// Restock increments stock by qty (qty > 0).
	Restock(ctx context.Context, id, qty int) (*Article, error)

	// TX-scoped operations: work within a caller-provided transaction.
	// Used by DetteService to keep stock checks atomic with dette state transitions.

	// GetArticlesByIDsTx reads articles inside tx, locking them FOR SHARE so stock
	// cannot change under a pricing/availability check.
	GetArticlesByIDsTx(ctx context.Context, tx pgx.Tx, ids []int) ([]Article, error)
	// GetArticlesByIDsForUpdateTx reads articles inside tx, locking them FOR UPDATE
	// in id order. Use it when the same tx will decrement their stock.
	GetArticlesByIDsForUpdateTx(ctx context.Context, tx pgx.Tx, ids []int) ([]Article, error)
	// DecrementStockTx removes qty units using a conditional update.
	// Fails with InsufficientStock when fewer than qty units remain.
	DecrementStockTx(ctx context.Context, tx pgx.Tx, id, qty int) (*Article, error)
}

type articleService struct {
	pool *pgxpool.Pool
}

func NewArticleService(pool *pgxpool.Pool) ArticleService {
	return &articleService{pool: pool}
}

const articleColumns = `id, label, unit_price, stock_quantity, created_at, updated_at`

func scanArticle(row pgx.Row, a *Article) error {
	return row.Scan(&a.ID, &a.Label, &a.UnitPrice, &a.StockQuantity, &a.CreatedAt, &a.UpdatedAt)
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *articleService) CreateArticle(ctx context.Context, label string, unitPrice decimal.Decimal, stock int) (*Article, error) {
	if label == "" {
		return nil, invalidInput("article label is required")
	}
	if unitPrice.IsNegative() {
		return nil, invalidInput("unit price must not be negative")
	}
	if stock < 0 {
		return nil, invalidInput("stock quantity must not be negative")
	}

	var a Article
	err := scanArticle(s.pool.QueryRow(ctx, `
		INSERT INTO articles (label, unit_price, stock_quantity)
		VALUES ($1, $2, $3)
		RETURNING `+articleColumns,
		label, unitPrice, stock,
	), &a)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("article %q already exists", label)
		}
		return nil, fmt.Errorf("failed to create article: %w", err)
	}
	return &a, nil
}

func (s *articleService) GetArticles(ctx context.Context, inStockOnly bool) ([]Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	if inStockOnly {
		query += ` WHERE stock_quantity > 0`
	}
	query += ` ORDER BY label`
	return queryArticles(ctx, s.pool, query)
}

func (s *articleService) GetArticle(ctx context.Context, id int) (*Article, error) {
	var a Article
	err := scanArticle(s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id), &a)
	if err != nil {
		return nil, wrapNotFound(err, "article", id)
	}
	return &a, nil
}

func (s *articleService) GetArticlesByIDs(ctx context.Context, ids []int) ([]Article, error) {
	return queryArticles(ctx, s.pool,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1) ORDER BY id`, ids)
}

func (s *articleService) FindArticleByLabel(ctx context.Context, label string) (*Article, error) {
	var a Article
	err := scanArticle(s.pool.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE lower(label) = lower($1)`, label), &a)
	if err != nil {
		return nil, wrapNotFound(err, "article", fmt.Sprintf("%q", label))
	}
	return &a, nil
}

func (s *articleService) Restock(ctx context.Context, id, qty int) (*Article, error) {
	if qty <= 0 {
		return nil, invalidInput("restock quantity must be positive")
	}
	var a Article
	err := scanArticle(s.pool.QueryRow(ctx, `
		UPDATE articles
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+articleColumns,
		qty, id,
	), &a)
	if err != nil {
		return nil, wrapNotFound(err, "article", id)
	}
	return &a, nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *articleService) GetArticlesByIDsTx(ctx context.Context, tx pgx.Tx, ids []int) ([]Article, error) {
	return queryArticles(ctx, tx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1) ORDER BY id FOR SHARE`, ids)
}

func (s *articleService) GetArticlesByIDsForUpdateTx(ctx context.Context, tx pgx.Tx, ids []int) ([]Article, error) {
	return queryArticles(ctx, tx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

func (s *articleService) DecrementStockTx(ctx context.Context, tx pgx.Tx, id, qty int) (*Article, error) {
	if qty <= 0 {
		return nil, invalidInput("decrement quantity must be positive")
	}

	var a Article
	err := scanArticle(tx.QueryRow(ctx, `
		UPDATE articles
		SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		WHERE id = $2 AND stock_quantity >= $1
		RETURNING `+articleColumns,
		qty, id,
	), &a)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to decrement stock for article %d: %w", id, err)
	}

	// Zero rows: either the article is gone or there is not enough stock.
	var label string
	var available int
	err = tx.QueryRow(ctx, "SELECT label, stock_quantity FROM articles WHERE id = $1", id).Scan(&label, &available)
	if err != nil {
		return nil, wrapNotFound(err, "article", id)
	}
	return nil, Errorf(KindInsufficientStock,
		"insufficient quantity for article: %s. Available stock: %d", label, available)
}

func queryArticles(ctx context.Context, q pgxRowQuerier, sql string, args ...any) ([]Article, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		if err := scanArticle(rows, &a); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
