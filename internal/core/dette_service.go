package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DefaultRelaunchWindow is how long after cancellation a dette may be relaunched.
const DefaultRelaunchWindow = 48 * time.Hour

// notifyTimeout bounds a single fire-and-forget notification delivery.
const notifyTimeout = 5 * time.Second

// DetteService drives the dette lifecycle: credit policy, pricing, stock, payments.
type DetteService interface {
	// Lifecycle

	// SubmitDemande creates an IN_COURS request after the credit policy and stock
	// checks pass. Stock is not touched until the request is accepted.
	SubmitDemande(ctx context.Context, clientID int, lines []LineInput) (*Dette, error)
	// CreateDette records a sale on credit directly in ACCEPTE, debiting stock in
	// the same transaction. It is the staff entry point and skips the credit policy.
	CreateDette(ctx context.Context, clientID int, lines []LineInput) (*Dette, error)
	// UpdateStatus transitions IN_COURS → ACCEPTE (debits stock) or IN_COURS → ANNULE.
	UpdateStatus(ctx context.Context, id int, status string) (*Dette, error)
	// Relaunch moves an ANNULE dette back to IN_COURS within the relaunch window.
	Relaunch(ctx context.Context, id int) (*Dette, error)
	// CancelClientDemande cancels the client's most recent IN_COURS request.
	CancelClientDemande(ctx context.Context, clientID int) (*Dette, error)
	RegisterPayment(ctx context.Context, id int, amount decimal.Decimal) (*Dette, error)
	// DeleteDette removes lines, payments, then the dette, in one transaction.
	DeleteDette(ctx context.Context, id int) error

	// Queries
	GetDette(ctx context.Context, id int) (*Dette, error)
	GetDettes(ctx context.Context, status *string) ([]Dette, error)
	GetDettesByClient(ctx context.Context, clientID int) ([]Dette, error)
	// GetPendingDemandes lists IN_COURS requests, oldest first.
	GetPendingDemandes(ctx context.Context) ([]Dette, error)
	// GetPayments lists a dette's payments in ascending date order.
	GetPayments(ctx context.Context, id int) ([]Payment, error)
}

// DetteOption configures a DetteService.
type DetteOption func(*detteService)

// WithClock overrides the time source used for cancellation stamps, payment dates
// and the relaunch window check.
func WithClock(now func() time.Time) DetteOption {
	return func(s *detteService) { s.now = now }
}

// WithRelaunchWindow overrides DefaultRelaunchWindow.
func WithRelaunchWindow(d time.Duration) DetteOption {
	return func(s *detteService) {
		if d > 0 {
			s.relaunchWindow = d
		}
	}
}

type detteService struct {
	pool           *pgxpool.Pool
	articles       ArticleService
	clients        ClientService
	policy         *CreditPolicy
	notifier       Notifier
	now            func() time.Time
	relaunchWindow time.Duration
}

// NewDetteService wires the workflow. notifier may be nil to disable notifications.
func NewDetteService(pool *pgxpool.Pool, articles ArticleService, clients ClientService,
	policy *CreditPolicy, notifier Notifier, opts ...DetteOption) DetteService {
	if policy == nil {
		policy = NewCreditPolicy(CapModeLenient)
	}
	s := &detteService{
		pool:           pool,
		articles:       articles,
		clients:        clients,
		policy:         policy,
		notifier:       notifier,
		now:            time.Now,
		relaunchWindow: DefaultRelaunchWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validStatus reports whether status is a known dette status.
func validStatus(status string) bool {
	switch status {
	case StatusInCours, StatusAccepte, StatusAnnule:
		return true
	}
	return false
}

// ── Pricing & Stock ──────────────────────────────────────────────────────────

// pricedLine is a requested line resolved against the catalog.
type pricedLine struct {
	articleID int
	label     string
	quantity  int
	unitPrice decimal.Decimal
	available int
}

// normalizeLines drops lines without an article id or a positive quantity and
// merges duplicate article ids. The result is ordered by article id so stock
// rows are always locked in the same order.
func normalizeLines(clientID int, lines []LineInput) ([]LineInput, error) {
	if clientID <= 0 {
		return nil, invalidInput("client id is required")
	}
	merged := make(map[int]int)
	for _, l := range lines {
		if l.ArticleID <= 0 || l.Quantity <= 0 {
			continue
		}
		merged[l.ArticleID] += l.Quantity
	}
	if len(merged) == 0 {
		return nil, invalidInput("no valid articles provided")
	}

	out := make([]LineInput, 0, len(merged))
	for id, qty := range merged {
		out = append(out, LineInput{ArticleID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticleID < out[j].ArticleID })
	return out, nil
}

// priceLinesTx fetches every referenced article in one batch and computes the
// total from catalog prices. forUpdate takes row locks the tx can later
// upgrade to stock decrements without deadlocking a concurrent debit.
func (s *detteService) priceLinesTx(ctx context.Context, tx pgx.Tx, lines []LineInput, forUpdate bool) ([]pricedLine, decimal.Decimal, error) {
	ids := make([]int, len(lines))
	for i, l := range lines {
		ids[i] = l.ArticleID
	}

	fetch := s.articles.GetArticlesByIDsTx
	if forUpdate {
		fetch = s.articles.GetArticlesByIDsForUpdateTx
	}
	found, err := fetch(ctx, tx, ids)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if len(found) < len(ids) {
		byID := make(map[int]bool, len(found))
		for _, a := range found {
			byID[a.ID] = true
		}
		var missing []int
		for _, id := range ids {
			if !byID[id] {
				missing = append(missing, id)
			}
		}
		return nil, decimal.Zero, notFound("not all articles found (missing ids %v)", missing)
	}

	byID := make(map[int]Article, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	total := decimal.Zero
	priced := make([]pricedLine, len(lines))
	for i, l := range lines {
		a := byID[l.ArticleID]
		priced[i] = pricedLine{
			articleID: a.ID,
			label:     a.Label,
			quantity:  l.Quantity,
			unitPrice: a.UnitPrice,
			available: a.StockQuantity,
		}
		total = total.Add(a.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return priced, total, nil
}

func checkStock(lines []pricedLine) error {
	for _, l := range lines {
		if l.quantity > l.available {
			return Errorf(KindInsufficientStock,
				"insufficient quantity for article: %s. Available stock: %d", l.label, l.available)
		}
	}
	return nil
}

func (s *detteService) insertDetteTx(ctx context.Context, tx pgx.Tx, clientID int, status string, total decimal.Decimal, lines []pricedLine) (int, error) {
	now := s.now()
	var id int
	err := tx.QueryRow(ctx, `
		INSERT INTO dettes (client_id, total_amount, amount_paid, amount_due, status, created_at, updated_at)
		VALUES ($1, $2, 0, $2, $3, $4, $4)
		RETURNING id
	`, clientID, total, status, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert dette: %w", err)
	}

	for _, l := range lines {
		_, err = tx.Exec(ctx, `
			INSERT INTO dette_lines (dette_id, article_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
		`, id, l.articleID, l.quantity, l.unitPrice)
		if err != nil {
			return 0, fmt.Errorf("failed to insert dette line for article %d: %w", l.articleID, err)
		}
	}
	return id, nil
}

// debitStockTx decrements stock for every line; any shortfall aborts the caller's tx.
func (s *detteService) debitStockTx(ctx context.Context, tx pgx.Tx, lines []DetteLine) error {
	for _, l := range lines {
		if _, err := s.articles.DecrementStockTx(ctx, tx, l.ArticleID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ── Dette Lifecycle ──────────────────────────────────────────────────────────

func (s *detteService) SubmitDemande(ctx context.Context, clientID int, lines []LineInput) (*Dette, error) {
	lines, err := normalizeLines(clientID, lines)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	snap, err := s.clients.CreditSnapshotTx(ctx, tx, clientID)
	if err != nil {
		return nil, err
	}
	// Tier rules on existing debt come before any catalog lookup.
	if err := s.policy.Check(*snap, decimal.Zero); err != nil {
		return nil, err
	}

	priced, total, err := s.priceLinesTx(ctx, tx, lines, false)
	if err != nil {
		return nil, err
	}
	if s.policy.Mode() == CapModeStrict {
		if err := s.policy.Check(*snap, total); err != nil {
			return nil, err
		}
	}
	if err := checkStock(priced); err != nil {
		return nil, err
	}

	id, err := s.insertDetteTx(ctx, tx, clientID, StatusInCours, total, priced)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dette request: %w", err)
	}

	s.notify(clientID, fmt.Sprintf("Your credit request #%d for %s has been submitted.", id, total.StringFixed(2)))
	return s.GetDette(ctx, id)
}

func (s *detteService) CreateDette(ctx context.Context, clientID int, lines []LineInput) (*Dette, error) {
	lines, err := normalizeLines(clientID, lines)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int
	if err := tx.QueryRow(ctx, "SELECT id FROM clients WHERE id = $1 FOR UPDATE", clientID).Scan(&locked); err != nil {
		return nil, wrapNotFound(err, "client", clientID)
	}

	priced, total, err := s.priceLinesTx(ctx, tx, lines, true)
	if err != nil {
		return nil, err
	}
	if err := checkStock(priced); err != nil {
		return nil, err
	}

	id, err := s.insertDetteTx(ctx, tx, clientID, StatusAccepte, total, priced)
	if err != nil {
		return nil, err
	}
	debit := make([]DetteLine, len(priced))
	for i, l := range priced {
		debit[i] = DetteLine{ArticleID: l.articleID, Quantity: l.quantity}
	}
	if err := s.debitStockTx(ctx, tx, debit); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dette creation: %w", err)
	}

	s.notify(clientID, fmt.Sprintf("A new dette #%d of %s has been recorded on your account.", id, total.StringFixed(2)))
	return s.GetDette(ctx, id)
}

func (s *detteService) UpdateStatus(ctx context.Context, id int, status string) (*Dette, error) {
	if !validStatus(status) {
		return nil, invalidInput("unknown status %q", status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	clientID, current, _, err := lockDetteTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case current == StatusAccepte:
		return nil, conflict("dette %d is already accepted and cannot change status", id)
	case current == status:
		return nil, conflict("dette %d is already %s", id, status)
	case current == StatusAnnule:
		return nil, conflict("dette %d is cancelled; relaunch it to reopen the request", id)
	}

	// current is IN_COURS from here on.
	now := s.now()
	switch status {
	case StatusAccepte:
		lines, err := fetchLinesQ(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := s.debitStockTx(ctx, tx, lines); err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			"UPDATE dettes SET status = $1, cancelled_at = NULL, updated_at = $2 WHERE id = $3",
			StatusAccepte, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to accept dette %d: %w", id, err)
		}
	case StatusAnnule:
		_, err = tx.Exec(ctx,
			"UPDATE dettes SET status = $1, cancelled_at = $2, updated_at = $2 WHERE id = $3",
			StatusAnnule, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel dette %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	if status == StatusAccepte {
		s.notify(clientID, fmt.Sprintf("Your credit request #%d has been accepted.", id))
	} else {
		s.notify(clientID, fmt.Sprintf("Your credit request #%d has been cancelled. You may relaunch it within %s.", id, formatWindow(s.relaunchWindow)))
	}
	return s.GetDette(ctx, id)
}

func (s *detteService) Relaunch(ctx context.Context, id int) (*Dette, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	clientID, status, cancelledAt, err := lockDetteTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if status != StatusAnnule {
		return nil, conflict("dette %d must be cancelled to be relaunched (status is %s)", id, status)
	}
	if cancelledAt == nil {
		return nil, fmt.Errorf("dette %d is cancelled but has no cancellation time", id)
	}

	now := s.now()
	deadline := cancelledAt.Add(s.relaunchWindow)
	if !now.Before(deadline) {
		return nil, Errorf(KindExpiredWindow,
			"the %s window to relaunch dette %d ended at %s", formatWindow(s.relaunchWindow), id, deadline.Format(time.RFC3339))
	}

	_, err = tx.Exec(ctx,
		"UPDATE dettes SET status = $1, cancelled_at = NULL, updated_at = $2 WHERE id = $3",
		StatusInCours, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to relaunch dette %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit relaunch: %w", err)
	}

	s.notify(clientID, fmt.Sprintf("Your credit request #%d has been relaunched.", id))
	return s.GetDette(ctx, id)
}

func (s *detteService) CancelClientDemande(ctx context.Context, clientID int) (*Dette, error) {
	var id int
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM dettes
		WHERE client_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, clientID, StatusInCours).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("no pending request for client %d", clientID)
		}
		return nil, fmt.Errorf("failed to find pending request for client %d: %w", clientID, err)
	}
	return s.UpdateStatus(ctx, id, StatusAnnule)
}

// ── Payments ─────────────────────────────────────────────────────────────────

func (s *detteService) RegisterPayment(ctx context.Context, id int, amount decimal.Decimal) (*Dette, error) {
	if !amount.IsPositive() {
		return nil, invalidInput("payment amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, invalidInput("payment amount must have at most 2 decimal places")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var clientID int
	var total, paid, due decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT client_id, total_amount, amount_paid, amount_due FROM dettes WHERE id = $1 FOR UPDATE",
		id,
	).Scan(&clientID, &total, &paid, &due)
	if err != nil {
		return nil, wrapNotFound(err, "dette", id)
	}
	if amount.GreaterThan(due) {
		return nil, invalidInput("payment of %s exceeds the remaining amount due (%s)", amount.StringFixed(2), due.StringFixed(2))
	}

	paid = paid.Add(amount)
	due = total.Sub(paid)
	now := s.now()

	_, err = tx.Exec(ctx,
		"UPDATE dettes SET amount_paid = $1, amount_due = $2, updated_at = $3 WHERE id = $4",
		paid, due, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment to dette %d: %w", id, err)
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO payments (dette_id, amount, paid_at) VALUES ($1, $2, $3)",
		id, amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment for dette %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	s.notify(clientID, fmt.Sprintf("Payment of %s received for dette #%d. Remaining: %s.",
		amount.StringFixed(2), id, due.StringFixed(2)))
	return s.GetDette(ctx, id)
}

func (s *detteService) GetPayments(ctx context.Context, id int) ([]Payment, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM dettes WHERE id = $1)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to verify dette %d: %w", id, err)
	}
	if !exists {
		return nil, notFound("dette %d not found", id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, dette_id, amount, paid_at
		FROM payments
		WHERE dette_id = $1
		ORDER BY paid_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DetteID, &p.Amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ── Deletion ─────────────────────────────────────────────────────────────────

func (s *detteService) DeleteDette(ctx context.Context, id int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, _, _, err := lockDetteTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM dette_lines WHERE dette_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete lines of dette %d: %w", id, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM payments WHERE dette_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete payments of dette %d: %w", id, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM dettes WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete dette %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dette deletion: %w", err)
	}
	return nil
}

// ── Side effects ─────────────────────────────────────────────────────────────

// notify delivers a message in the background. Failures are logged only.
func (s *detteService) notify(clientID int, message string) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, clientID, message); err != nil {
			log.Printf("notification to client %d failed: %v", clientID, err)
		}
	}()
}

// formatWindow renders whole-day durations as days ("2 days"), anything else as a Duration.
func formatWindow(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d == day:
		return "1 day"
	case d > 0 && d%day == 0:
		return fmt.Sprintf("%d days", d/day)
	default:
		return d.String()
	}
}

// lockDetteTx locks a dette row and returns its client, status and cancellation time.
func lockDetteTx(ctx context.Context, tx pgx.Tx, id int) (clientID int, status string, cancelledAt *time.Time, err error) {
	err = tx.QueryRow(ctx,
		"SELECT client_id, status, cancelled_at FROM dettes WHERE id = $1 FOR UPDATE",
		id,
	).Scan(&clientID, &status, &cancelledAt)
	if err != nil {
		return 0, "", nil, wrapNotFound(err, "dette", id)
	}
	return clientID, status, cancelledAt, nil
}
