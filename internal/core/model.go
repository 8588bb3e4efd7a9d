package core

import (
	"time"

	"boutique-credit/internal/authz"

	"github.com/shopspring/decimal"
)

// Dette status values. A dette moves through:
//
//	IN_COURS → ACCEPTE (stock debited, terminal)
//	IN_COURS → ANNULE  → IN_COURS (relance, within the relaunch window)
const (
	StatusInCours = "IN_COURS"
	StatusAccepte = "ACCEPTE"
	StatusAnnule  = "ANNULE"
)

// Category labels seeded at install time.
const (
	CategoryGold   = "Gold"
	CategorySilver = "Silver"
	CategoryBronze = "Bronze"
)

// Category is a client credit tier.
type Category struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Client is a shop customer who may buy on credit.
// MaxOutstanding is only consulted for capped tiers; nil means no cap.
type Client struct {
	ID             int              `json:"id"`
	LastName       string           `json:"last_name"`
	FirstName      string           `json:"first_name"`
	Phone          string           `json:"phone"`
	Address        string           `json:"address"`
	PhotoRef       string           `json:"photo_ref"`
	CategoryID     int              `json:"category_id"`
	CategoryLabel  string           `json:"category"` // joined from categories
	MaxOutstanding *decimal.Decimal `json:"max_outstanding,omitempty"`
	TotalDue       decimal.Decimal  `json:"total_due"`       // sum(amount_due) over the client's dettes
	MaxDue         decimal.Decimal  `json:"max_due"`         // max(amount_due) over the client's dettes
	UserLogin      *string          `json:"user,omitempty"`  // first linked user, if any
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Debtor summarises a client that has at least one dette.
type Debtor struct {
	ClientID        int             `json:"client_id"`
	LastName        string          `json:"last_name"`
	FirstName       string          `json:"first_name"`
	Phone           string          `json:"phone"`
	TotalDue        decimal.Decimal `json:"total_due"`
	LatestDetteID   int             `json:"latest_dette_id"`
	LatestDetteDate time.Time       `json:"latest_dette_date"`
}

// Article is a catalog item.
type Article struct {
	ID            int             `json:"id"`
	Label         string          `json:"label"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Dette is a purchase-on-credit record.
// Invariant: AmountDue == TotalAmount - AmountPaid and AmountDue >= 0.
type Dette struct {
	ID          int             `json:"id"`
	ClientID    int             `json:"client_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	Status      string          `json:"status"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	Lines       []DetteLine     `json:"lines,omitempty"`
	Client      *ClientSummary  `json:"client,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DetteLine is the frozen contribution of one article to a dette.
type DetteLine struct {
	ID             int             `json:"id"`
	DetteID        int             `json:"dette_id"`
	ArticleID      int             `json:"article_id"`
	ArticleLabel   string          `json:"label"`          // joined from articles
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`     // sale price frozen at creation
	CatalogPrice   decimal.Decimal `json:"catalog_price"`  // current articles.unit_price
	StockAvailable int             `json:"stock_quantity"` // current articles.stock_quantity
}

// ClientSummary is the client projection embedded in dette detail views.
type ClientSummary struct {
	ID        int     `json:"id"`
	LastName  string  `json:"last_name"`
	FirstName string  `json:"first_name"`
	Phone     string  `json:"phone"`
	PhotoRef  string  `json:"photo_ref"`
	UserLogin *string `json:"user"`
}

// LineInput is one requested line on a new dette.
type LineInput struct {
	ArticleID int `json:"article_id"`
	Quantity  int `json:"quantity"`
}

// Payment is an append-only record of money applied to a dette.
type Payment struct {
	ID      int             `json:"id"`
	DetteID int             `json:"dette_id"`
	Amount  decimal.Decimal `json:"amount"`
	PaidAt  time.Time       `json:"paid_at"`
}

// Notification is a message addressed to a client.
type Notification struct {
	ID        int       `json:"id"`
	ClientID  int       `json:"client_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an authenticated account. ClientID links CLIENT users to their client record.
type User struct {
	ID           int        `json:"id"`
	Login        string     `json:"login"`
	PasswordHash string     `json:"-"`
	Role         authz.Role `json:"role"`
	ClientID     *int       `json:"client_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
