package core_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"boutique-credit/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed. RESTART IDENTITY keeps ids predictable:
	// clients 1=Gold 2=Silver(cap 100000) 3=Bronze; articles 1=Riz 2=Huile 3=Sucre 4=Sac.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE payments, dette_lines, dettes, notifications, users, clients, articles, categories
		RESTART IDENTITY CASCADE;

		INSERT INTO categories (label) VALUES ('Gold'), ('Silver'), ('Bronze');

		INSERT INTO clients (last_name, first_name, phone, address, category_id, max_outstanding) VALUES
		('Diop',   'Awa',    '770000001', 'Dakar',  1, NULL),
		('Fall',   'Moussa', '770000002', 'Thies',  2, 100000),
		('Ndiaye', 'Fatou',  '770000003', 'Louga',  3, NULL);

		INSERT INTO articles (label, unit_price, stock_quantity) VALUES
		('Riz',   500.00,  10),
		('Huile', 1500.00, 5),
		('Sucre', 750.00,  20),
		('Sac',   5000.00, 50);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notifications on a channel.
type recordingNotifier struct {
	ch chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan string, 64)}
}

func (n *recordingNotifier) Notify(_ context.Context, _ int, message string) error {
	select {
	case n.ch <- message:
	default:
	}
	return nil
}

func (n *recordingNotifier) wait(t *testing.T, contains string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-n.ch:
			if strings.Contains(msg, contains) {
				return
			}
		case <-deadline:
			t.Fatalf("no notification containing %q received", contains)
		}
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, int, string) error {
	return errors.New("smtp down")
}

type detteFixture struct {
	pool     *pgxpool.Pool
	articles core.ArticleService
	clients  core.ClientService
	dettes   core.DetteService
	notes    *recordingNotifier
	clock    *testClock
	ctx      context.Context
}

func setupDetteFixture(t *testing.T, mode core.CapMode) *detteFixture {
	t.Helper()
	pool := setupTestDB(t)
	t.Cleanup(pool.Close)

	f := &detteFixture{
		pool:     pool,
		articles: core.NewArticleService(pool),
		clients:  core.NewClientService(pool),
		notes:    newRecordingNotifier(),
		clock:    &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		ctx:      context.Background(),
	}
	f.dettes = core.NewDetteService(pool, f.articles, f.clients, core.NewCreditPolicy(mode), f.notes,
		core.WithClock(f.clock.Now))
	return f
}

func (f *detteFixture) stock(t *testing.T, articleID int) int {
	t.Helper()
	a, err := f.articles.GetArticle(f.ctx, articleID)
	if err != nil {
		t.Fatalf("GetArticle(%d) failed: %v", articleID, err)
	}
	return a.StockQuantity
}

func (f *detteFixture) count(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(f.ctx, sql, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func expectKind(t *testing.T, err error, want core.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := core.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func assertBalanced(t *testing.T, d *core.Dette) {
	t.Helper()
	if !d.AmountDue.Equal(d.TotalAmount.Sub(d.AmountPaid)) {
		t.Errorf("dette %d: amount_due %s != total %s - paid %s", d.ID, d.AmountDue, d.TotalAmount, d.AmountPaid)
	}
	if d.AmountDue.IsNegative() {
		t.Errorf("dette %d: amount_due is negative: %s", d.ID, d.AmountDue)
	}
}

// ── Demande creation ─────────────────────────────────────────────────────────

func TestDette_SubmitDemande_PricesFromCatalog(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{
		{ArticleID: 1, Quantity: 2},
		{ArticleID: 3, Quantity: 4},
		{ArticleID: 1, Quantity: 1},
		{ArticleID: 2, Quantity: 0}, // dropped
	})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if d.Status != core.StatusInCours {
		t.Errorf("Expected IN_COURS, got %s", d.Status)
	}
	// 3 × 500 + 4 × 750 = 4500
	if !d.TotalAmount.Equal(decimal.NewFromInt(4500)) {
		t.Errorf("Expected total 4500, got %s", d.TotalAmount)
	}
	if !d.AmountDue.Equal(d.TotalAmount) || !d.AmountPaid.IsZero() {
		t.Errorf("Expected due == total and paid == 0, got due=%s paid=%s", d.AmountDue, d.AmountPaid)
	}
	assertBalanced(t, d)

	if len(d.Lines) != 2 {
		t.Fatalf("Expected 2 merged lines, got %d", len(d.Lines))
	}
	if d.Lines[0].ArticleID != 1 || d.Lines[0].Quantity != 3 || !d.Lines[0].UnitPrice.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Unexpected first line: %+v", d.Lines[0])
	}
	if d.Client == nil || d.Client.Phone != "770000001" {
		t.Errorf("Expected client summary for client 1, got %+v", d.Client)
	}

	if got := f.stock(t, 1); got != 10 {
		t.Errorf("Stock must not change at request time: article 1 stock %d", got)
	}
	if got := f.stock(t, 3); got != 20 {
		t.Errorf("Stock must not change at request time: article 3 stock %d", got)
	}

	f.notes.wait(t, "submitted")
}

func TestDette_SubmitDemande_InvalidInput(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	_, err := f.dettes.SubmitDemande(f.ctx, 1, nil)
	expectKind(t, err, core.KindInvalidInput)

	_, err = f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 0}, {ArticleID: 0, Quantity: 3}})
	expectKind(t, err, core.KindInvalidInput)

	_, err = f.dettes.SubmitDemande(f.ctx, 0, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	expectKind(t, err, core.KindInvalidInput)

	if n := f.count(t, "SELECT COUNT(*) FROM dettes"); n != 0 {
		t.Errorf("Expected no dettes after invalid input, got %d", n)
	}
}

func TestDette_SubmitDemande_NotFound(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	_, err := f.dettes.SubmitDemande(f.ctx, 99, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	expectKind(t, err, core.KindNotFound)

	_, err = f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}, {ArticleID: 99, Quantity: 1}})
	expectKind(t, err, core.KindNotFound)

	if n := f.count(t, "SELECT COUNT(*) FROM dettes"); n != 0 {
		t.Errorf("Expected no dettes after NotFound, got %d", n)
	}
}

func TestDette_StockReservedOnlyOnAcceptance(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	// Article 1 has stock 10: 12 is rejected, stock unchanged, nothing created.
	_, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 12}})
	expectKind(t, err, core.KindInsufficientStock)
	msg := core.MessageOf(err)
	if !strings.Contains(msg, "Riz") || !strings.Contains(msg, "10") {
		t.Errorf("InsufficientStock message should name article and availability, got %q", msg)
	}
	if got := f.stock(t, 1); got != 10 {
		t.Errorf("Expected stock 10 after rejected request, got %d", got)
	}
	if n := f.count(t, "SELECT COUNT(*) FROM dette_lines"); n != 0 {
		t.Errorf("Expected no dette lines after rejected request, got %d", n)
	}

	// Exactly the available quantity succeeds and leaves stock alone.
	d, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 10}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if got := f.stock(t, 1); got != 10 {
		t.Errorf("Expected stock 10 until acceptance, got %d", got)
	}

	d, err = f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAccepte)
	if err != nil {
		t.Fatalf("UpdateStatus(ACCEPTE) failed: %v", err)
	}
	if d.Status != core.StatusAccepte {
		t.Errorf("Expected ACCEPTE, got %s", d.Status)
	}
	if got := f.stock(t, 1); got != 0 {
		t.Errorf("Expected stock 0 after acceptance, got %d", got)
	}
	f.notes.wait(t, "accepted")
}

func TestDette_AcceptIsAllOrNothing(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{
		{ArticleID: 1, Quantity: 5},
		{ArticleID: 2, Quantity: 5},
	})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}

	// Stock of article 2 drops below the requested quantity after submission.
	if _, err := f.pool.Exec(f.ctx, "UPDATE articles SET stock_quantity = 3 WHERE id = 2"); err != nil {
		t.Fatalf("Failed to reduce stock: %v", err)
	}

	_, err = f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAccepte)
	expectKind(t, err, core.KindInsufficientStock)

	if got := f.stock(t, 1); got != 10 {
		t.Errorf("Article 1 stock must be untouched after failed accept, got %d", got)
	}
	if got := f.stock(t, 2); got != 3 {
		t.Errorf("Article 2 stock must be untouched after failed accept, got %d", got)
	}
	after, err := f.dettes.GetDette(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDette failed: %v", err)
	}
	if after.Status != core.StatusInCours {
		t.Errorf("Status must remain IN_COURS after failed accept, got %s", after.Status)
	}
}

func TestDette_ConcurrentAcceptsDoNotOversell(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	a, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 6}})
	if err != nil {
		t.Fatalf("SubmitDemande a failed: %v", err)
	}
	b, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 1, Quantity: 6}})
	if err != nil {
		t.Fatalf("SubmitDemande b failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int{a.ID, b.ID} {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			_, errs[i] = f.dettes.UpdateStatus(f.ctx, id, core.StatusAccepte)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if core.KindOf(err) != core.KindInsufficientStock {
			t.Errorf("Unexpected error kind: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one acceptance to succeed, got %d", succeeded)
	}
	if got := f.stock(t, 1); got != 4 {
		t.Errorf("Expected stock 4 after one acceptance, got %d", got)
	}
}

func TestDette_ConcurrentCreateDetteDoesNotOversell(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, clientID := range []int{1, 2} {
		wg.Add(1)
		go func(i, clientID int) {
			defer wg.Done()
			_, errs[i] = f.dettes.CreateDette(f.ctx, clientID, []core.LineInput{
				{ArticleID: 1, Quantity: 6},
				{ArticleID: 3, Quantity: 1},
			})
		}(i, clientID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if core.KindOf(err) != core.KindInsufficientStock {
			t.Errorf("Unexpected error kind: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one creation to succeed, got %d", succeeded)
	}
	if got := f.stock(t, 1); got != 4 {
		t.Errorf("Expected stock 4 after one creation, got %d", got)
	}
	if got := f.stock(t, 3); got != 19 {
		t.Errorf("Expected stock 19 after one creation, got %d", got)
	}
	if n := f.count(t, "SELECT COUNT(*) FROM dettes"); n != 1 {
		t.Errorf("Expected one dette, got %d", n)
	}
}

func TestDette_CreateDette_DirectlyAccepted(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.CreateDette(f.ctx, 3, []core.LineInput{{ArticleID: 2, Quantity: 2}})
	if err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}
	if d.Status != core.StatusAccepte {
		t.Errorf("Expected ACCEPTE, got %s", d.Status)
	}
	if !d.TotalAmount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Expected total 3000, got %s", d.TotalAmount)
	}
	if got := f.stock(t, 2); got != 3 {
		t.Errorf("Expected stock 3 after direct creation, got %d", got)
	}

	_, err = f.dettes.CreateDette(f.ctx, 3, []core.LineInput{{ArticleID: 2, Quantity: 4}})
	expectKind(t, err, core.KindInsufficientStock)
	if got := f.stock(t, 2); got != 3 {
		t.Errorf("Expected stock 3 after rejected creation, got %d", got)
	}
}

// ── Credit policy ────────────────────────────────────────────────────────────

func TestDette_BronzeBlockedWhileUnpaid(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	existing, err := f.dettes.CreateDette(f.ctx, 3, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}

	_, err = f.dettes.SubmitDemande(f.ctx, 3, []core.LineInput{{ArticleID: 3, Quantity: 1}})
	expectKind(t, err, core.KindPolicyViolation)

	if _, err := f.dettes.RegisterPayment(f.ctx, existing.ID, existing.AmountDue); err != nil {
		t.Fatalf("RegisterPayment failed: %v", err)
	}

	if _, err := f.dettes.SubmitDemande(f.ctx, 3, []core.LineInput{{ArticleID: 3, Quantity: 1}}); err != nil {
		t.Fatalf("Bronze client with settled dettes should be allowed, got %v", err)
	}
}

func seedSilverDebt(t *testing.T, f *detteFixture) {
	t.Helper()
	_, err := f.pool.Exec(f.ctx, `
		INSERT INTO dettes (client_id, total_amount, amount_paid, amount_due, status)
		VALUES (2, 90000, 0, 90000, 'ACCEPTE')
	`)
	if err != nil {
		t.Fatalf("Failed to seed silver debt: %v", err)
	}
}

func TestDette_SilverCap_Strict(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeStrict)
	seedSilverDebt(t, f)

	// 4 × 5000 = 20000 → 90000 + 20000 >= 100000
	_, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 4, Quantity: 4}})
	expectKind(t, err, core.KindPolicyViolation)
	if !strings.Contains(core.MessageOf(err), "100000") {
		t.Errorf("PolicyViolation should cite the limit, got %q", core.MessageOf(err))
	}

	d, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 4, Quantity: 1}})
	if err != nil {
		t.Fatalf("5000 request under the cap should succeed, got %v", err)
	}
	if d.Status != core.StatusInCours {
		t.Errorf("Expected IN_COURS, got %s", d.Status)
	}
	if !d.TotalAmount.Equal(decimal.NewFromInt(5000)) || !d.AmountDue.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected total = due = 5000, got total=%s due=%s", d.TotalAmount, d.AmountDue)
	}
}

func TestDette_SilverCap_LenientDefault(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)
	seedSilverDebt(t, f)

	// Existing 90000 < 100000, so the lenient check lets 20000 through.
	if _, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 4, Quantity: 4}}); err != nil {
		t.Fatalf("Lenient mode should accept the request, got %v", err)
	}

	// Now 110000 >= 100000.
	_, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 4, Quantity: 1}})
	expectKind(t, err, core.KindPolicyViolation)
}

func TestDette_CancelledRequestsStillCountAsDebt(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.SubmitDemande(f.ctx, 3, []core.LineInput{{ArticleID: 1, Quantity: 2}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if _, err := f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAnnule); err != nil {
		t.Fatalf("UpdateStatus(ANNULE) failed: %v", err)
	}

	// The cancelled request keeps amount_due = 1000, so Bronze stays blocked.
	_, err = f.dettes.SubmitDemande(f.ctx, 3, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	expectKind(t, err, core.KindPolicyViolation)
}

func TestDette_CancelledRequestsCountTowardSilverCap(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	// 20 x 5000 = 100000, exactly the Silver cap once cancelled.
	d, err := f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 4, Quantity: 20}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if _, err := f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAnnule); err != nil {
		t.Fatalf("UpdateStatus(ANNULE) failed: %v", err)
	}

	_, err = f.dettes.SubmitDemande(f.ctx, 2, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	expectKind(t, err, core.KindPolicyViolation)
}

// ── State machine ────────────────────────────────────────────────────────────

func TestDette_TransitionRules(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	accepted, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if _, err := f.dettes.UpdateStatus(f.ctx, accepted.ID, core.StatusAccepte); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	_, err = f.dettes.UpdateStatus(f.ctx, accepted.ID, core.StatusAnnule)
	expectKind(t, err, core.KindConflict)
	_, err = f.dettes.UpdateStatus(f.ctx, accepted.ID, core.StatusInCours)
	expectKind(t, err, core.KindConflict)
	_, err = f.dettes.Relaunch(f.ctx, accepted.ID)
	expectKind(t, err, core.KindConflict)

	cancelled, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	d, err := f.dettes.UpdateStatus(f.ctx, cancelled.ID, core.StatusAnnule)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if d.CancelledAt == nil || !d.CancelledAt.Equal(f.clock.Now()) {
		t.Errorf("Expected cancelled_at = %v, got %v", f.clock.Now(), d.CancelledAt)
	}
	_, err = f.dettes.UpdateStatus(f.ctx, cancelled.ID, core.StatusAccepte)
	expectKind(t, err, core.KindConflict)

	_, err = f.dettes.UpdateStatus(f.ctx, cancelled.ID, "PAYE")
	expectKind(t, err, core.KindInvalidInput)

	_, err = f.dettes.UpdateStatus(f.ctx, 9999, core.StatusAccepte)
	expectKind(t, err, core.KindNotFound)

	if got := f.stock(t, 1); got != 9 {
		t.Errorf("Only the accepted request should debit stock, got %d", got)
	}
}

func TestDette_RelaunchWindow(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}

	_, err = f.dettes.Relaunch(f.ctx, d.ID)
	expectKind(t, err, core.KindConflict)

	if _, err := f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAnnule); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// cancelledAt + 1 day: allowed.
	f.clock.Advance(24 * time.Hour)
	d, err = f.dettes.Relaunch(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("Relaunch at +1 day failed: %v", err)
	}
	if d.Status != core.StatusInCours || d.CancelledAt != nil {
		t.Errorf("Expected IN_COURS with no cancellation time, got %s %v", d.Status, d.CancelledAt)
	}
	f.notes.wait(t, "relaunched")

	// Cancel again, then try at cancelledAt + 3 days: expired.
	if _, err := f.dettes.UpdateStatus(f.ctx, d.ID, core.StatusAnnule); err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}
	f.clock.Advance(72 * time.Hour)
	_, err = f.dettes.Relaunch(f.ctx, d.ID)
	expectKind(t, err, core.KindExpiredWindow)

	after, err := f.dettes.GetDette(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDette failed: %v", err)
	}
	if after.Status != core.StatusAnnule {
		t.Errorf("Expired relaunch must leave status ANNULE, got %s", after.Status)
	}

	_, err = f.dettes.Relaunch(f.ctx, 9999)
	expectKind(t, err, core.KindNotFound)
}

func TestDette_CancelClientDemande(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	_, err := f.dettes.CancelClientDemande(f.ctx, 1)
	expectKind(t, err, core.KindNotFound)

	d, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	cancelled, err := f.dettes.CancelClientDemande(f.ctx, 1)
	if err != nil {
		t.Fatalf("CancelClientDemande failed: %v", err)
	}
	if cancelled.ID != d.ID || cancelled.Status != core.StatusAnnule {
		t.Errorf("Expected dette %d ANNULE, got %d %s", d.ID, cancelled.ID, cancelled.Status)
	}

	pending, err := f.dettes.GetPendingDemandes(f.ctx)
	if err != nil {
		t.Fatalf("GetPendingDemandes failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending demandes, got %d", len(pending))
	}
}

// ── Payments ─────────────────────────────────────────────────────────────────

func TestDette_Payments(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	// 2 × 1500 = 3000
	d, err := f.dettes.CreateDette(f.ctx, 1, []core.LineInput{{ArticleID: 2, Quantity: 2}})
	if err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}

	d, err = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if !d.AmountPaid.Equal(decimal.NewFromInt(1000)) || !d.AmountDue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected paid 1000 due 2000, got paid %s due %s", d.AmountPaid, d.AmountDue)
	}
	assertBalanced(t, d)
	f.notes.wait(t, "Payment of 1000.00")

	// Overpayment is rejected outright and changes nothing.
	_, err = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.NewFromInt(2001))
	expectKind(t, err, core.KindInvalidInput)
	unchanged, err := f.dettes.GetDette(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDette failed: %v", err)
	}
	if !unchanged.AmountDue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Rejected payment must not change amount_due, got %s", unchanged.AmountDue)
	}

	_, err = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.Zero)
	expectKind(t, err, core.KindInvalidInput)
	_, err = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.RequireFromString("0.001"))
	expectKind(t, err, core.KindInvalidInput)
	_, err = f.dettes.RegisterPayment(f.ctx, 9999, decimal.NewFromInt(10))
	expectKind(t, err, core.KindNotFound)

	f.clock.Advance(time.Hour)
	d, err = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("settling payment failed: %v", err)
	}
	if !d.AmountDue.IsZero() {
		t.Errorf("Expected amount_due 0, got %s", d.AmountDue)
	}
	assertBalanced(t, d)

	payments, err := f.dettes.GetPayments(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetPayments failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(payments))
	}
	if payments[0].PaidAt.After(payments[1].PaidAt) {
		t.Errorf("Payments must be in ascending date order: %v then %v", payments[0].PaidAt, payments[1].PaidAt)
	}
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(d.AmountPaid) || sum.GreaterThan(d.TotalAmount) {
		t.Errorf("Payments sum %s must equal paid %s and not exceed total %s", sum, d.AmountPaid, d.TotalAmount)
	}

	_, err = f.dettes.GetPayments(f.ctx, 9999)
	expectKind(t, err, core.KindNotFound)
}

func TestDette_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.CreateDette(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 2}}) // 1000
	if err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.dettes.RegisterPayment(f.ctx, d.ID, decimal.NewFromInt(300))
		}()
	}
	wg.Wait()

	after, err := f.dettes.GetDette(f.ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDette failed: %v", err)
	}
	assertBalanced(t, after)
	if !after.AmountPaid.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected exactly three 300 payments to fit, paid %s", after.AmountPaid)
	}
}

// ── Deletion & side effects ──────────────────────────────────────────────────

func TestDette_DeleteRemovesLinesThenDette(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	d, err := f.dettes.CreateDette(f.ctx, 1, []core.LineInput{
		{ArticleID: 1, Quantity: 1},
		{ArticleID: 2, Quantity: 1},
		{ArticleID: 3, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}
	if len(d.Lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(d.Lines))
	}
	if _, err := f.dettes.RegisterPayment(f.ctx, d.ID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("RegisterPayment failed: %v", err)
	}

	if err := f.dettes.DeleteDette(f.ctx, d.ID); err != nil {
		t.Fatalf("DeleteDette failed: %v", err)
	}
	if n := f.count(t, "SELECT COUNT(*) FROM dette_lines WHERE dette_id = $1", d.ID); n != 0 {
		t.Errorf("Expected 0 lines after delete, got %d", n)
	}
	if n := f.count(t, "SELECT COUNT(*) FROM payments WHERE dette_id = $1", d.ID); n != 0 {
		t.Errorf("Expected 0 payments after delete, got %d", n)
	}

	_, err = f.dettes.GetDette(f.ctx, d.ID)
	expectKind(t, err, core.KindNotFound)
	expectKind(t, f.dettes.DeleteDette(f.ctx, d.ID), core.KindNotFound)
}

func TestDette_NotificationFailureDoesNotRollBack(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	articles := core.NewArticleService(pool)
	dettes := core.NewDetteService(pool, articles, core.NewClientService(pool),
		core.NewCreditPolicy(core.CapModeLenient), failingNotifier{})

	d, err := dettes.SubmitDemande(ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 2}})
	if err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	d, err = dettes.UpdateStatus(ctx, d.ID, core.StatusAccepte)
	if err != nil {
		t.Fatalf("UpdateStatus failed despite notifier error: %v", err)
	}
	if d.Status != core.StatusAccepte {
		t.Errorf("Expected ACCEPTE, got %s", d.Status)
	}
	a, err := articles.GetArticle(ctx, 1)
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if a.StockQuantity != 8 {
		t.Errorf("Expected stock 8, got %d", a.StockQuantity)
	}
}

func TestDette_Queries(t *testing.T) {
	f := setupDetteFixture(t, core.CapModeLenient)

	if _, err := f.dettes.SubmitDemande(f.ctx, 1, []core.LineInput{{ArticleID: 1, Quantity: 1}}); err != nil {
		t.Fatalf("SubmitDemande failed: %v", err)
	}
	if _, err := f.dettes.CreateDette(f.ctx, 2, []core.LineInput{{ArticleID: 3, Quantity: 1}}); err != nil {
		t.Fatalf("CreateDette failed: %v", err)
	}

	all, err := f.dettes.GetDettes(f.ctx, nil)
	if err != nil {
		t.Fatalf("GetDettes failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 dettes, got %d", len(all))
	}

	status := core.StatusAccepte
	accepted, err := f.dettes.GetDettes(f.ctx, &status)
	if err != nil {
		t.Fatalf("GetDettes(ACCEPTE) failed: %v", err)
	}
	if len(accepted) != 1 || accepted[0].ClientID != 2 {
		t.Errorf("Expected one ACCEPTE dette for client 2, got %+v", accepted)
	}

	bad := "UNKNOWN"
	_, err = f.dettes.GetDettes(f.ctx, &bad)
	expectKind(t, err, core.KindInvalidInput)

	byClient, err := f.dettes.GetDettesByClient(f.ctx, 1)
	if err != nil {
		t.Fatalf("GetDettesByClient failed: %v", err)
	}
	if len(byClient) != 1 || byClient[0].Status != core.StatusInCours {
		t.Errorf("Expected one IN_COURS dette for client 1, got %+v", byClient)
	}
	_, err = f.dettes.GetDettesByClient(f.ctx, 99)
	expectKind(t, err, core.KindNotFound)

	pending, err := f.dettes.GetPendingDemandes(f.ctx)
	if err != nil {
		t.Fatalf("GetPendingDemandes failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending demande, got %d", len(pending))
	}
}
