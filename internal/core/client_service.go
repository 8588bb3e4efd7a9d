package core

import (
	"context"
	"fmt"
	"strings"

	"boutique-credit/internal/authz"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ClientInput is used when creating a client. CategoryID defaults to Bronze.
// If Account is set, a CLIENT user is created in the same transaction.
type ClientInput struct {
	LastName       string
	FirstName      string
	Phone          string
	Address        string
	PhotoRef       string
	CategoryID     *int
	MaxOutstanding *decimal.Decimal
	Account        *AccountInput
}

// AccountInput carries credentials for a user created alongside a client.
type AccountInput struct {
	Login    string
	Password string
}

// ClientUpdate holds the fields to change; nil means unchanged.
type ClientUpdate struct {
	LastName       *string
	FirstName      *string
	Phone          *string
	Address        *string
	PhotoRef       *string
	CategoryID     *int
	MaxOutstanding *decimal.Decimal
}

// ClientService manages clients and their credit standing.
type ClientService interface {
	CreateClient(ctx context.Context, in ClientInput) (*Client, error)
	UpdateClient(ctx context.Context, id int, upd ClientUpdate) (*Client, error)
	GetClient(ctx context.Context, id int) (*Client, error)
	// GetClients lists clients. hasUser filters on whether a user account is linked.
	GetClients(ctx context.Context, hasUser *bool) ([]Client, error)
	GetClientByPhone(ctx context.Context, phone string) (*Client, error)
	// GetDebtors lists clients with outstanding (non-cancelled) dettes, largest balance first.
	GetDebtors(ctx context.Context) ([]Debtor, error)
	// DeleteClient removes the client's users, dettes (lines and payments first),
	// notifications, then the client, in one transaction.
	DeleteClient(ctx context.Context, id int) error

	// CreditSnapshotTx locks the client row FOR UPDATE and loads what the credit
	// policy needs. Concurrent requests for the same client serialize here.
	CreditSnapshotTx(ctx context.Context, tx pgx.Tx, clientID int) (*CreditSnapshot, error)
}

type clientService struct {
	pool *pgxpool.Pool
}

func NewClientService(pool *pgxpool.Pool) ClientService {
	return &clientService{pool: pool}
}

const clientSelect = `
	SELECT c.id, c.last_name, c.first_name, c.phone, c.address, c.photo_ref,
	       c.category_id, cat.label, c.max_outstanding,
	       COALESCE(d.total_due, 0), COALESCE(d.max_due, 0),
	       (SELECT u.login FROM users u WHERE u.client_id = c.id ORDER BY u.id LIMIT 1),
	       c.created_at, c.updated_at
	FROM clients c
	JOIN categories cat ON cat.id = c.category_id
	LEFT JOIN (
		SELECT client_id, SUM(amount_due) AS total_due, MAX(amount_due) AS max_due
		FROM dettes
		GROUP BY client_id
	) d ON d.client_id = c.id`

func scanClient(row pgx.Row, c *Client) error {
	return row.Scan(&c.ID, &c.LastName, &c.FirstName, &c.Phone, &c.Address, &c.PhotoRef,
		&c.CategoryID, &c.CategoryLabel, &c.MaxOutstanding,
		&c.TotalDue, &c.MaxDue, &c.UserLogin,
		&c.CreatedAt, &c.UpdatedAt)
}

// ── Master Data ──────────────────────────────────────────────────────────────

func (s *clientService) CreateClient(ctx context.Context, in ClientInput) (*Client, error) {
	in.LastName = strings.TrimSpace(in.LastName)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.LastName == "" || in.FirstName == "" || in.Phone == "" {
		return nil, invalidInput("last name, first name and phone are required")
	}
	if in.MaxOutstanding != nil && in.MaxOutstanding.IsNegative() {
		return nil, invalidInput("max outstanding must not be negative")
	}
	if in.Account != nil && (in.Account.Login == "" || in.Account.Password == "") {
		return nil, invalidInput("login and password are required for a client account")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var categoryID int
	if in.CategoryID != nil {
		err = tx.QueryRow(ctx, "SELECT id FROM categories WHERE id = $1", *in.CategoryID).Scan(&categoryID)
		if err != nil {
			return nil, wrapNotFound(err, "category", *in.CategoryID)
		}
	} else {
		bronze, err := categoryByLabel(ctx, tx, CategoryBronze)
		if err != nil {
			return nil, err
		}
		categoryID = bronze.ID
	}

	var clientID int
	err = tx.QueryRow(ctx, `
		INSERT INTO clients (last_name, first_name, phone, address, photo_ref, category_id, max_outstanding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, in.LastName, in.FirstName, in.Phone, in.Address, in.PhotoRef, categoryID, in.MaxOutstanding).Scan(&clientID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("a client with phone %s already exists", in.Phone)
		}
		return nil, fmt.Errorf("failed to insert client: %w", err)
	}

	if in.Account != nil {
		if _, err := insertUser(ctx, tx, in.Account.Login, in.Account.Password, authz.RoleClient, &clientID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit client creation: %w", err)
	}

	return s.GetClient(ctx, clientID)
}

func (s *clientService) UpdateClient(ctx context.Context, id int, upd ClientUpdate) (*Client, error) {
	if upd.MaxOutstanding != nil && upd.MaxOutstanding.IsNegative() {
		return nil, invalidInput("max outstanding must not be negative")
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.Address != nil {
		add("address", *upd.Address)
	}
	if upd.PhotoRef != nil {
		add("photo_ref", *upd.PhotoRef)
	}
	if upd.CategoryID != nil {
		var exists bool
		if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)", *upd.CategoryID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to verify category: %w", err)
		}
		if !exists {
			return nil, notFound("category %d not found", *upd.CategoryID)
		}
		add("category_id", *upd.CategoryID)
	}
	if upd.MaxOutstanding != nil {
		add("max_outstanding", *upd.MaxOutstanding)
	}

	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE clients SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("a client with phone %s already exists", *upd.Phone)
		}
		return nil, fmt.Errorf("failed to update client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("client %d not found", id)
	}
	return s.GetClient(ctx, id)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *clientService) GetClient(ctx context.Context, id int) (*Client, error) {
	var c Client
	if err := scanClient(s.pool.QueryRow(ctx, clientSelect+" WHERE c.id = $1", id), &c); err != nil {
		return nil, wrapNotFound(err, "client", id)
	}
	return &c, nil
}

func (s *clientService) GetClientByPhone(ctx context.Context, phone string) (*Client, error) {
	var c Client
	if err := scanClient(s.pool.QueryRow(ctx, clientSelect+" WHERE c.phone = $1", phone), &c); err != nil {
		return nil, wrapNotFound(err, "client with phone", phone)
	}
	return &c, nil
}

func (s *clientService) GetClients(ctx context.Context, hasUser *bool) ([]Client, error) {
	query := clientSelect
	if hasUser != nil {
		cond := "EXISTS"
		if !*hasUser {
			cond = "NOT EXISTS"
		}
		query += " WHERE " + cond + " (SELECT 1 FROM users u WHERE u.client_id = c.id)"
	}
	query += " ORDER BY c.last_name, c.first_name, c.id"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		if err := scanClient(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *clientService) GetDebtors(ctx context.Context) ([]Debtor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.last_name, c.first_name, c.phone,
		       SUM(d.amount_due), MAX(d.id), MAX(d.created_at)
		FROM clients c
		JOIN dettes d ON d.client_id = c.id
		GROUP BY c.id
		HAVING SUM(d.amount_due) > 0
		ORDER BY SUM(d.amount_due) DESC, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query debtors: %w", err)
	}
	defer rows.Close()

	var debtors []Debtor
	for rows.Next() {
		var d Debtor
		if err := rows.Scan(&d.ClientID, &d.LastName, &d.FirstName, &d.Phone,
			&d.TotalDue, &d.LatestDetteID, &d.LatestDetteDate); err != nil {
			return nil, fmt.Errorf("failed to scan debtor: %w", err)
		}
		debtors = append(debtors, d)
	}
	return debtors, rows.Err()
}

// ── Deletion ─────────────────────────────────────────────────────────────────

func (s *clientService) DeleteClient(ctx context.Context, id int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int
	if err := tx.QueryRow(ctx, "SELECT id FROM clients WHERE id = $1 FOR UPDATE", id).Scan(&locked); err != nil {
		return wrapNotFound(err, "client", id)
	}

	steps := []struct {
		what string
		sql  string
	}{
		{"users", "DELETE FROM users WHERE client_id = $1"},
		{"dette lines", "DELETE FROM dette_lines WHERE dette_id IN (SELECT id FROM dettes WHERE client_id = $1)"},
		{"payments", "DELETE FROM payments WHERE dette_id IN (SELECT id FROM dettes WHERE client_id = $1)"},
		{"dettes", "DELETE FROM dettes WHERE client_id = $1"},
		{"notifications", "DELETE FROM notifications WHERE client_id = $1"},
		{"client", "DELETE FROM clients WHERE id = $1"},
	}
	for _, step := range steps {
		if _, err := tx.Exec(ctx, step.sql, id); err != nil {
			return fmt.Errorf("failed to delete %s of client %d: %w", step.what, id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit client deletion: %w", err)
	}
	return nil
}

// ── TX-scoped operations ─────────────────────────────────────────────────────

func (s *clientService) CreditSnapshotTx(ctx context.Context, tx pgx.Tx, clientID int) (*CreditSnapshot, error) {
	snap := &CreditSnapshot{ClientID: clientID}
	err := tx.QueryRow(ctx, `
		SELECT cat.label, c.max_outstanding
		FROM clients c
		JOIN categories cat ON cat.id = c.category_id
		WHERE c.id = $1
		FOR UPDATE OF c
	`, clientID).Scan(&snap.CategoryLabel, &snap.MaxOutstanding)
	if err != nil {
		return nil, wrapNotFound(err, "client", clientID)
	}

	rows, err := tx.Query(ctx,
		"SELECT amount_due FROM dettes WHERE client_id = $1 ORDER BY id", clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding dettes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var due decimal.Decimal
		if err := rows.Scan(&due); err != nil {
			return nil, fmt.Errorf("failed to scan amount due: %w", err)
		}
		snap.AmountsDue = append(snap.AmountsDue, due)
	}
	return snap, rows.Err()
}
