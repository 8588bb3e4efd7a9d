package app

import (
	"time"

	"boutique-credit/internal/ai"
	"boutique-credit/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Wiring carries the settings the core services take from configuration.
type Wiring struct {
	CapMode        core.CapMode
	RelaunchWindow time.Duration
	Drafter        ReminderDrafter
}

// NewFromPool builds every core service on pool and returns the assembled
// ApplicationService. Dette notifications go through the notification store.
// A nil Drafter falls back to template reminders.
func NewFromPool(pool *pgxpool.Pool, w Wiring) ApplicationService {
	articles := core.NewArticleService(pool)
	clients := core.NewClientService(pool)
	categories := core.NewCategoryService(pool)
	users := core.NewUserService(pool)
	notifications := core.NewNotificationService(pool)

	var opts []core.DetteOption
	if w.RelaunchWindow > 0 {
		opts = append(opts, core.WithRelaunchWindow(w.RelaunchWindow))
	}
	dettes := core.NewDetteService(pool, articles, clients, core.NewCreditPolicy(w.CapMode), notifications, opts...)

	drafter := w.Drafter
	if drafter == nil {
		drafter = ai.NewDrafter("", "")
	}

	return NewAppService(dettes, clients, articles, categories, users, notifications, drafter)
}
