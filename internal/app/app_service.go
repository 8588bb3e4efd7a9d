package app

import (
	"context"
	"fmt"
	"strings"

	"boutique-credit/internal/ai"
	"boutique-credit/internal/authz"
	"boutique-credit/internal/core"

	"github.com/shopspring/decimal"
)

// ReminderDrafter writes the text of a payment reminder.
type ReminderDrafter interface {
	DraftReminder(ctx context.Context, in ai.ReminderInput) *ai.Reminder
}

type appService struct {
	dettes        core.DetteService
	clients       core.ClientService
	articles      core.ArticleService
	categories    core.CategoryService
	users         core.UserService
	notifications core.NotificationService
	drafter       ReminderDrafter
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	dettes core.DetteService,
	clients core.ClientService,
	articles core.ArticleService,
	categories core.CategoryService,
	users core.UserService,
	notifications core.NotificationService,
	drafter ReminderDrafter,
) ApplicationService {
	return &appService{
		dettes:        dettes,
		clients:       clients,
		articles:      articles,
		categories:    categories,
		users:         users,
		notifications: notifications,
		drafter:       drafter,
	}
}

// ── Auth & users ─────────────────────────────────────────────────────────────

func (s *appService) AuthenticateUser(ctx context.Context, login, password string) (*UserSession, error) {
	u, err := s.users.Authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}
	return &UserSession{UserID: u.ID, Login: u.Login, Role: u.Role, ClientID: u.ClientID}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*core.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *appService) CreateUser(ctx context.Context, req CreateUserRequest) (*core.User, error) {
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		return nil, core.Errorf(core.KindInvalidInput, "%v", err)
	}
	if role == authz.RoleClient && req.ClientID == nil {
		return nil, core.Errorf(core.KindInvalidInput, "a CLIENT user must be linked to a client")
	}
	return s.users.CreateUser(ctx, req.Login, req.Password, role, req.ClientID)
}

func (s *appService) UpdateUser(ctx context.Context, req UpdateUserRequest) (*core.User, error) {
	return s.users.UpdateUser(ctx, req.UserID, req.Login, req.Password)
}

func (s *appService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.users.GetUsers(ctx)
}

func (s *appService) ListUsersByRole(ctx context.Context, role string) ([]core.User, error) {
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return nil, core.Errorf(core.KindInvalidInput, "%v", err)
	}
	return s.users.GetUsersByRole(ctx, parsed)
}

// ── Dettes ───────────────────────────────────────────────────────────────────

func toLineInputs(lines []DetteLineRequest) []core.LineInput {
	out := make([]core.LineInput, len(lines))
	for i, l := range lines {
		out[i] = core.LineInput{ArticleID: l.ArticleID, Quantity: l.Quantity}
	}
	return out
}

func (s *appService) SubmitDemande(ctx context.Context, req DetteRequest) (*core.Dette, error) {
	return s.dettes.SubmitDemande(ctx, req.ClientID, toLineInputs(req.Lines))
}

func (s *appService) CreateDette(ctx context.Context, req DetteRequest) (*core.Dette, error) {
	return s.dettes.CreateDette(ctx, req.ClientID, toLineInputs(req.Lines))
}

func (s *appService) GetDette(ctx context.Context, id int) (*core.Dette, error) {
	return s.dettes.GetDette(ctx, id)
}

func (s *appService) ListDettes(ctx context.Context, status *string) ([]core.Dette, error) {
	if status != nil {
		upper := strings.ToUpper(strings.TrimSpace(*status))
		status = &upper
	}
	return s.dettes.GetDettes(ctx, status)
}

func (s *appService) ListPendingDemandes(ctx context.Context) ([]core.Dette, error) {
	return s.dettes.GetPendingDemandes(ctx)
}

func (s *appService) ListClientDettes(ctx context.Context, clientID int) ([]core.Dette, error) {
	return s.dettes.GetDettesByClient(ctx, clientID)
}

func (s *appService) UpdateDetteStatus(ctx context.Context, id int, status string) (*core.Dette, error) {
	return s.dettes.UpdateStatus(ctx, id, strings.ToUpper(strings.TrimSpace(status)))
}

func (s *appService) RelaunchDette(ctx context.Context, id int) (*core.Dette, error) {
	return s.dettes.Relaunch(ctx, id)
}

func (s *appService) CancelClientDemande(ctx context.Context, clientID int) (*core.Dette, error) {
	return s.dettes.CancelClientDemande(ctx, clientID)
}

func (s *appService) RegisterPayment(ctx context.Context, id int, amount decimal.Decimal) (*core.Dette, error) {
	return s.dettes.RegisterPayment(ctx, id, amount)
}

func (s *appService) ListPayments(ctx context.Context, id int) ([]core.Payment, error) {
	return s.dettes.GetPayments(ctx, id)
}

func (s *appService) DeleteDette(ctx context.Context, id int) error {
	return s.dettes.DeleteDette(ctx, id)
}

// ── Clients ──────────────────────────────────────────────────────────────────

func (s *appService) CreateClient(ctx context.Context, req CreateClientRequest) (*core.Client, error) {
	in := core.ClientInput{
		LastName:       req.LastName,
		FirstName:      req.FirstName,
		Phone:          req.Phone,
		Address:        req.Address,
		PhotoRef:       req.PhotoRef,
		CategoryID:     req.CategoryID,
		MaxOutstanding: req.MaxOutstanding,
	}
	if req.Login != "" || req.Password != "" {
		in.Account = &core.AccountInput{Login: req.Login, Password: req.Password}
	}
	return s.clients.CreateClient(ctx, in)
}

func (s *appService) UpdateClient(ctx context.Context, id int, upd core.ClientUpdate) (*core.Client, error) {
	return s.clients.UpdateClient(ctx, id, upd)
}

func (s *appService) GetClient(ctx context.Context, id int) (*core.Client, error) {
	return s.clients.GetClient(ctx, id)
}

func (s *appService) GetClientByPhone(ctx context.Context, phone string) (*core.Client, error) {
	return s.clients.GetClientByPhone(ctx, phone)
}

func (s *appService) ListClients(ctx context.Context, hasUser *bool) ([]core.Client, error) {
	return s.clients.GetClients(ctx, hasUser)
}

func (s *appService) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	return s.clients.GetDebtors(ctx)
}

func (s *appService) DeleteClient(ctx context.Context, id int) error {
	return s.clients.DeleteClient(ctx, id)
}

func (s *appService) SendReminder(ctx context.Context, clientID int) (*ReminderResult, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	dettes, err := s.dettes.GetDettesByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	in := ai.ReminderInput{
		ClientName: strings.TrimSpace(client.FirstName + " " + client.LastName),
		Category:   client.CategoryLabel,
		TotalDue:   decimal.Zero,
	}
	for _, d := range dettes {
		if !d.AmountDue.IsPositive() {
			continue
		}
		in.TotalDue = in.TotalDue.Add(d.AmountDue)
		in.OpenDettes++
		if in.OldestDetteID == 0 || d.CreatedAt.Before(in.OldestDetteDate) {
			in.OldestDetteID = d.ID
			in.OldestDetteDate = d.CreatedAt
		}
	}
	if in.OpenDettes == 0 {
		return nil, core.Errorf(core.KindInvalidInput, "client %d has no outstanding debt", clientID)
	}

	reminder := s.drafter.DraftReminder(ctx, in)
	n, err := s.notifications.CreateNotification(ctx, clientID, reminder.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to store reminder: %w", err)
	}
	return &ReminderResult{Notification: n, Tone: reminder.Tone, Source: reminder.Source}, nil
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) CreateArticle(ctx context.Context, req CreateArticleRequest) (*core.Article, error) {
	return s.articles.CreateArticle(ctx, strings.TrimSpace(req.Label), req.UnitPrice, req.StockQuantity)
}

func (s *appService) GetArticle(ctx context.Context, id int) (*core.Article, error) {
	return s.articles.GetArticle(ctx, id)
}

func (s *appService) ListArticles(ctx context.Context, inStockOnly bool) ([]core.Article, error) {
	return s.articles.GetArticles(ctx, inStockOnly)
}

func (s *appService) FindArticle(ctx context.Context, label string) (*core.Article, error) {
	return s.articles.FindArticleByLabel(ctx, strings.TrimSpace(label))
}

func (s *appService) RestockArticle(ctx context.Context, id, qty int) (*core.Article, error) {
	return s.articles.Restock(ctx, id, qty)
}

func (s *appService) SeedCategories(ctx context.Context) ([]core.Category, error) {
	return s.categories.SeedCategories(ctx)
}

func (s *appService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.categories.GetCategories(ctx)
}

// ── Notifications ────────────────────────────────────────────────────────────

func (s *appService) SendNotification(ctx context.Context, clientID int, message string) (*core.Notification, error) {
	return s.notifications.CreateNotification(ctx, clientID, strings.TrimSpace(message))
}

func (s *appService) ListNotifications(ctx context.Context, clientID int) ([]core.Notification, error) {
	return s.notifications.GetNotifications(ctx, clientID)
}

func (s *appService) MarkNotificationRead(ctx context.Context, id int) (*core.Notification, error) {
	return s.notifications.MarkAsRead(ctx, id)
}
