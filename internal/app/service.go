package app

import (
	"context"

	"boutique-credit/internal/core"

	"github.com/shopspring/decimal"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// ── Auth & users ─────────────────────────────────────────────────────────

	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, login, password string) (*UserSession, error)
	GetUser(ctx context.Context, userID int) (*core.User, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*core.User, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (*core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	// ListUsersByRole fails with NotFound when no user holds the role.
	ListUsersByRole(ctx context.Context, role string) ([]core.User, error)

	// ── Dettes ───────────────────────────────────────────────────────────────

	// SubmitDemande validates the client's credit standing and the requested
	// lines, then records an IN_COURS request. Stock is not touched.
	SubmitDemande(ctx context.Context, req DetteRequest) (*core.Dette, error)
	// CreateDette records an already accepted dette and debits stock.
	CreateDette(ctx context.Context, req DetteRequest) (*core.Dette, error)
	GetDette(ctx context.Context, id int) (*core.Dette, error)
	ListDettes(ctx context.Context, status *string) ([]core.Dette, error)
	ListPendingDemandes(ctx context.Context) ([]core.Dette, error)
	ListClientDettes(ctx context.Context, clientID int) ([]core.Dette, error)
	// UpdateDetteStatus accepts (debiting stock atomically) or cancels a request.
	UpdateDetteStatus(ctx context.Context, id int, status string) (*core.Dette, error)
	// RelaunchDette revives a cancelled request inside the relaunch window.
	RelaunchDette(ctx context.Context, id int) (*core.Dette, error)
	// CancelClientDemande cancels the client's most recent pending request.
	CancelClientDemande(ctx context.Context, clientID int) (*core.Dette, error)
	RegisterPayment(ctx context.Context, id int, amount decimal.Decimal) (*core.Dette, error)
	ListPayments(ctx context.Context, id int) ([]core.Payment, error)
	DeleteDette(ctx context.Context, id int) error

	// ── Clients ──────────────────────────────────────────────────────────────

	CreateClient(ctx context.Context, req CreateClientRequest) (*core.Client, error)
	UpdateClient(ctx context.Context, id int, upd core.ClientUpdate) (*core.Client, error)
	GetClient(ctx context.Context, id int) (*core.Client, error)
	GetClientByPhone(ctx context.Context, phone string) (*core.Client, error)
	ListClients(ctx context.Context, hasUser *bool) ([]core.Client, error)
	ListDebtors(ctx context.Context) ([]core.Debtor, error)
	DeleteClient(ctx context.Context, id int) error
	// SendReminder drafts a payment reminder for a client with outstanding
	// debt and stores it as a notification.
	SendReminder(ctx context.Context, clientID int) (*ReminderResult, error)

	// ── Catalog ──────────────────────────────────────────────────────────────

	CreateArticle(ctx context.Context, req CreateArticleRequest) (*core.Article, error)
	GetArticle(ctx context.Context, id int) (*core.Article, error)
	ListArticles(ctx context.Context, inStockOnly bool) ([]core.Article, error)
	FindArticle(ctx context.Context, label string) (*core.Article, error)
	RestockArticle(ctx context.Context, id, qty int) (*core.Article, error)
	SeedCategories(ctx context.Context) ([]core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)

	// ── Notifications ────────────────────────────────────────────────────────

	SendNotification(ctx context.Context, clientID int, message string) (*core.Notification, error)
	ListNotifications(ctx context.Context, clientID int) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, id int) (*core.Notification, error)
}
