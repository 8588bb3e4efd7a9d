package core

import (
	"context"
	"fmt"
)

const detteSelect = `
	SELECT d.id, d.client_id, d.total_amount, d.amount_paid, d.amount_due,
	       d.status, d.cancelled_at, d.created_at, d.updated_at
	FROM dettes d`

func (s *detteService) GetDette(ctx context.Context, id int) (*Dette, error) {
	var d Dette
	err := s.pool.QueryRow(ctx, detteSelect+" WHERE d.id = $1", id).Scan(
		&d.ID, &d.ClientID, &d.TotalAmount, &d.AmountPaid, &d.AmountDue,
		&d.Status, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, wrapNotFound(err, "dette", id)
	}

	lines, err := fetchLinesQ(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	d.Lines = lines

	summary, err := fetchClientSummary(ctx, s.pool, d.ClientID)
	if err != nil {
		return nil, err
	}
	d.Client = summary
	return &d, nil
}

func (s *detteService) GetDettes(ctx context.Context, status *string) ([]Dette, error) {
	query := detteSelect
	args := []any{}
	if status != nil {
		if !validStatus(*status) {
			return nil, invalidInput("unknown status %q", *status)
		}
		query += " WHERE d.status = $1"
		args = append(args, *status)
	}
	query += " ORDER BY d.id DESC"
	return s.queryDettes(ctx, query, args...)
}

func (s *detteService) GetDettesByClient(ctx context.Context, clientID int) ([]Dette, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)", clientID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to verify client %d: %w", clientID, err)
	}
	if !exists {
		return nil, notFound("client %d not found", clientID)
	}
	return s.queryDettes(ctx, detteSelect+" WHERE d.client_id = $1 ORDER BY d.id DESC", clientID)
}

func (s *detteService) GetPendingDemandes(ctx context.Context) ([]Dette, error) {
	return s.queryDettes(ctx, detteSelect+" WHERE d.status = $1 ORDER BY d.created_at, d.id", StatusInCours)
}

func (s *detteService) queryDettes(ctx context.Context, query string, args ...any) ([]Dette, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dettes: %w", err)
	}
	defer rows.Close()

	var dettes []Dette
	for rows.Next() {
		var d Dette
		if err := rows.Scan(
			&d.ID, &d.ClientID, &d.TotalAmount, &d.AmountPaid, &d.AmountDue,
			&d.Status, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dette: %w", err)
		}
		dettes = append(dettes, d)
	}
	return dettes, rows.Err()
}

// fetchLinesQ loads a dette's lines joined with current catalog data,
// ordered by article id.
func fetchLinesQ(ctx context.Context, q pgxRowQuerier, detteID int) ([]DetteLine, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.dette_id, l.article_id, a.label, l.quantity, l.unit_price,
		       a.unit_price, a.stock_quantity
		FROM dette_lines l
		JOIN articles a ON a.id = l.article_id
		WHERE l.dette_id = $1
		ORDER BY l.article_id
	`, detteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dette lines: %w", err)
	}
	defer rows.Close()

	var lines []DetteLine
	for rows.Next() {
		var l DetteLine
		if err := rows.Scan(&l.ID, &l.DetteID, &l.ArticleID, &l.ArticleLabel, &l.Quantity, &l.UnitPrice,
			&l.CatalogPrice, &l.StockAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan dette line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func fetchClientSummary(ctx context.Context, q pgxQuerier, clientID int) (*ClientSummary, error) {
	var c ClientSummary
	err := q.QueryRow(ctx, `
		SELECT c.id, c.last_name, c.first_name, c.phone, c.photo_ref,
		       (SELECT u.login FROM users u WHERE u.client_id = c.id ORDER BY u.id LIMIT 1)
		FROM clients c
		WHERE c.id = $1
	`, clientID).Scan(&c.ID, &c.LastName, &c.FirstName, &c.Phone, &c.PhotoRef, &c.UserLogin)
	if err != nil {
		return nil, wrapNotFound(err, "client", clientID)
	}
	return &c, nil
}
